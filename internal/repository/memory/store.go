// Package memory implements the repositories in process memory. It backs the
// service tests and the "memory" store driver used for local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/google/uuid"
)

type txKey struct{}

// state is everything a transaction may roll back.
type state struct {
	users      map[uuid.UUID]models.User
	messages   map[uuid.UUID]models.Message
	bans       map[int64]models.BanEntry
	audit      []models.AuditRecord
	auditIDs   map[uuid.UUID]struct{}
	nextBanID  int64
	publishSeq int64
}

func newState() state {
	return state{
		users:    make(map[uuid.UUID]models.User),
		messages: make(map[uuid.UUID]models.Message),
		bans:     make(map[int64]models.BanEntry),
		auditIDs: make(map[uuid.UUID]struct{}),
	}
}

func (s state) clone() state {
	c := state{
		users:      make(map[uuid.UUID]models.User, len(s.users)),
		messages:   make(map[uuid.UUID]models.Message, len(s.messages)),
		bans:       make(map[int64]models.BanEntry, len(s.bans)),
		audit:      append([]models.AuditRecord(nil), s.audit...),
		auditIDs:   make(map[uuid.UUID]struct{}, len(s.auditIDs)),
		nextBanID:  s.nextBanID,
		publishSeq: s.publishSeq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.messages {
		c.messages[k] = v
	}
	for k, v := range s.bans {
		c.bans[k] = v
	}
	for k := range s.auditIDs {
		c.auditIDs[k] = struct{}{}
	}
	return c
}

// DB is the shared in-memory backing store. Transactions are serialized by a
// single mutex, which gives them the isolation the PostgreSQL store gets from
// row locks.
type DB struct {
	mu sync.Mutex
	st state
}

func NewDB() *DB {
	return &DB{st: newState()}
}

// NewStore wires the in-memory repositories over a fresh DB.
func NewStore() *repository.Store {
	db := NewDB()
	return &repository.Store{
		Tx:       db,
		Users:    &UserRepository{db: db},
		Messages: &MessageRepository{db: db},
		Bans:     &BanRepository{db: db},
		Audit:    &AuditRepository{db: db},
	}
}

// RunInTx holds the store lock for the duration of fn and restores the
// previous state if fn fails. Nested calls join the outer transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	saved := db.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.st = saved
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// lock takes the store lock unless ctx already runs inside a transaction.
func (db *DB) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return append([]T(nil), items[offset:end]...)
}

// newestFirst orders by (created_at DESC, key DESC).
func newestFirst(a, b time.Time, ka, kb string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return ka > kb
}

func sortMessages(msgs []models.Message, desc bool) {
	sort.Slice(msgs, func(i, j int) bool {
		before := newestFirst(msgs[i].CreatedAt, msgs[j].CreatedAt, msgs[i].ID.String(), msgs[j].ID.String())
		if desc {
			return before
		}
		return newestFirst(msgs[j].CreatedAt, msgs[i].CreatedAt, msgs[j].ID.String(), msgs[i].ID.String())
	})
}
