// Package notify tells anonymous authors what happened to their message.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Notifier delivers a rejection notice to an author.
type Notifier interface {
	NotifyRejected(ctx context.Context, to, content, reason string) error
}

// Noop drops every notice.
type Noop struct{}

func (Noop) NotifyRejected(context.Context, string, string, string) error { return nil }

// Async sends notices in the background so a slow mail server never holds
// up a review. Failures are logged and counted, never returned.
type Async struct {
	inner   Notifier
	timeout time.Duration
	sem     chan struct{}
}

func NewAsync(inner Notifier, timeout time.Duration, concurrency int) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Async{inner: inner, timeout: timeout, sem: make(chan struct{}, concurrency)}
}

// NotifyRejected schedules the notice and returns immediately. When all
// senders are busy the notice is dropped.
func (a *Async) NotifyRejected(_ context.Context, to, content, reason string) error {
	if to == "" {
		return nil
	}
	select {
	case a.sem <- struct{}{}:
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		log.Warn().Str("to", to).Msg("notification dropped, all senders busy")
		return nil
	}

	go func() {
		defer func() { <-a.sem }()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.inner.NotifyRejected(ctx, to, content, reason); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("to", to).Msg("failed to send rejection notice")
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}()
	return nil
}

func rejectionBody(content, reason string) string {
	return fmt.Sprintf("Your message was not approved for the wall.\r\n\r\nReason: %s\r\n\r\nYour message:\r\n%s\r\n", reason, content)
}
