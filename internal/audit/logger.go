// Package audit writes the append-only trail of privileged actions.
//
// A write never fails the action being audited. Each record is attempted
// once with a bounded timeout; on failure it is logged on the secondary
// channel and parked in a retry queue that Run drains in the background.
// Records carry their id from creation, so a retry of a write that did land
// is absorbed by the store.
package audit

import (
	"context"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/metrics"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWriteTimeout  = 2 * time.Second
	DefaultRetryInterval = 5 * time.Second
	DefaultQueueSize     = 1024

	retryBatchSize = 64
)

type Config struct {
	WriteTimeout  time.Duration
	RetryInterval time.Duration
	QueueSize     int
}

type Logger struct {
	store         repository.AuditRecords
	timeout       time.Duration
	retryInterval time.Duration
	queue         *retryQueue
	logger        zerolog.Logger
	now           func() time.Time
}

func NewLogger(store repository.AuditRecords, cfg Config) *Logger {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Logger{
		store:         store,
		timeout:       cfg.WriteTimeout,
		retryInterval: cfg.RetryInterval,
		queue:         newRetryQueue(cfg.QueueSize),
		logger:        log.With().Str("component", "audit").Logger(),
		now:           time.Now,
	}
}

// Write records action. meta is redacted before it leaves this call.
func (l *Logger) Write(ctx context.Context, action string, actor *uuid.UUID, meta map[string]any) {
	rec := models.AuditRecord{
		ID:          uuid.New(),
		Action:      action,
		ActorUserID: actor,
		Meta:        Redact(meta),
		CreatedAt:   l.now().UTC(),
	}

	if err := l.append(rec); err != nil {
		l.logger.Warn().Err(err).
			Str("audit_id", rec.ID.String()).
			Str("action", action).
			Interface("meta", rec.Meta).
			Msg("audit write failed, queued for retry")
		metrics.AuditWritesTotal.WithLabelValues("queued").Inc()
		l.enqueue(rec)
		return
	}
	metrics.AuditWritesTotal.WithLabelValues("ok").Inc()
}

// append runs on its own context: the write must neither join a caller
// transaction nor die with a cancelled request.
func (l *Logger) append(rec models.AuditRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.store.Append(ctx, &rec)
}

func (l *Logger) enqueue(rec models.AuditRecord) {
	if l.queue.push(rec) {
		metrics.AuditDroppedTotal.Inc()
		l.logger.Error().Msg("audit retry queue full, dropped oldest record")
	}
	metrics.AuditRetryQueueDepth.Set(float64(l.queue.len()))
}

// Pending returns the number of records waiting for retry.
func (l *Logger) Pending() int {
	return l.queue.len()
}

// Flush retries every queued record once. Records that fail again go back
// on the queue. It returns the number still pending.
func (l *Logger) Flush() int {
	batch := l.queue.popBatch(l.queue.len())
	for _, rec := range batch {
		if err := l.append(rec); err != nil {
			metrics.AuditWritesTotal.WithLabelValues("failed").Inc()
			l.enqueue(rec)
			continue
		}
		metrics.AuditWritesTotal.WithLabelValues("retried").Inc()
	}
	metrics.AuditRetryQueueDepth.Set(float64(l.queue.len()))
	return l.queue.len()
}

// Run drains the retry queue until ctx is done, then makes one last pass.
func (l *Logger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if n := l.Flush(); n > 0 {
				l.logger.Error().Int("pending", n).Msg("audit records left unwritten at shutdown")
			}
			return
		case <-ticker.C:
			for _, rec := range l.queue.popBatch(retryBatchSize) {
				if err := l.append(rec); err != nil {
					metrics.AuditWritesTotal.WithLabelValues("failed").Inc()
					l.enqueue(rec)
					continue
				}
				metrics.AuditWritesTotal.WithLabelValues("retried").Inc()
			}
			metrics.AuditRetryQueueDepth.Set(float64(l.queue.len()))
		}
	}
}
