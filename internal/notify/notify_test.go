package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu    sync.Mutex
	sent  []string
	err   error
	block chan struct{}
}

func (r *recorder) NotifyRejected(ctx context.Context, to, content, reason string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, to+"|"+reason)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestAsyncDelivers(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, time.Second, 2)

	assert.NoError(t, a.NotifyRejected(context.Background(), "a@example.edu", "hi", "off topic"))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a@example.edu|off topic", rec.sent[0])
}

func TestAsyncSwallowsFailures(t *testing.T) {
	rec := &recorder{err: errors.New("smtp down")}
	a := NewAsync(rec, time.Second, 1)

	assert.NoError(t, a.NotifyRejected(context.Background(), "a@example.edu", "hi", "spam"))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAsyncSkipsEmptyRecipient(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, time.Second, 1)

	assert.NoError(t, a.NotifyRejected(context.Background(), "", "hi", "spam"))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestAsyncDropsWhenBusy(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	a := NewAsync(rec, time.Second, 1)

	assert.NoError(t, a.NotifyRejected(context.Background(), "first@example.edu", "hi", "r"))
	assert.NoError(t, a.NotifyRejected(context.Background(), "second@example.edu", "hi", "r"))
	close(rec.block)

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestSMTPCompose(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.edu", Port: 587, From: "wall@example.edu"})
	msg := s.compose("a@example.edu", rejectedSubject, rejectionBody("my post", "spam"), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	assert.Contains(t, msg, "From: Confession Wall <wall@example.edu>\r\n")
	assert.Contains(t, msg, "To: a@example.edu\r\n")
	assert.Contains(t, msg, "Subject: "+rejectedSubject+"\r\n")
	assert.Contains(t, msg, "@example.edu>\r\n")
	assert.True(t, strings.HasSuffix(msg, "Your message:\r\nmy post\r\n"))
	assert.Contains(t, msg, "Reason: spam")
}

func TestSMTPDisabled(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{})
	assert.False(t, s.Enabled())
	assert.NoError(t, s.NotifyRejected(context.Background(), "a@example.edu", "x", "y"))
}
