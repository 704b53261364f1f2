package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/database"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
)

const banSlotConstraint = "bans_identity_slot_key"

type BanRepository struct {
	db *database.DB
}

func NewBanRepository(db *database.DB) *BanRepository {
	return &BanRepository{db: db}
}

const banColumns = `id, type, value, active, slot, reason, created_by, created_at, updated_at, expires_at`

func scanBan(row interface{ Scan(...any) error }) (*models.BanEntry, error) {
	b := &models.BanEntry{}
	err := row.Scan(
		&b.ID,
		&b.Type,
		&b.Value,
		&b.Active,
		&b.Slot,
		&b.Reason,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FindActive returns the live row for an identity, expired or not. With
// forUpdate the row stays locked until the surrounding transaction ends.
// Without it a read inside a transaction still takes a shared lock, so the
// ban cannot be lifted or shortened before that transaction commits.
func (r *BanRepository) FindActive(ctx context.Context, banType models.BanType, value string, forUpdate bool) (*models.BanEntry, error) {
	query := `SELECT ` + banColumns + ` FROM bans WHERE type = $1 AND value = $2 AND active`
	if forUpdate {
		query += ` FOR UPDATE`
	} else if _, ok := database.TxFrom(ctx); ok {
		query += ` FOR SHARE`
	}

	ban, err := scanBan(r.db.Conn(ctx).QueryRowContext(ctx, query, banType, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active ban %s=%s: %w", banType, value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ban: %w", err)
	}
	return ban, nil
}

// GetByID retrieves a ban row and locks it when called inside a transaction.
func (r *BanRepository) GetByID(ctx context.Context, id int64) (*models.BanEntry, error) {
	query := `SELECT ` + banColumns + ` FROM bans WHERE id = $1`
	if _, ok := database.TxFrom(ctx); ok {
		query += ` FOR UPDATE`
	}

	ban, err := scanBan(r.db.Conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ban %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ban: %w", err)
	}
	return ban, nil
}

// Insert stores a new live ban. A second live row for the same identity
// violates the slot constraint and surfaces as ErrConflict.
func (r *BanRepository) Insert(ctx context.Context, ban *models.BanEntry) error {
	query := `
		INSERT INTO bans (type, value, active, slot, reason, created_by, created_at, updated_at, expires_at)
		VALUES ($1, $2, true, 0, $3, $4, $5, $5, $6)
		RETURNING id, active, slot, created_at, updated_at
	`

	err := r.db.Conn(ctx).QueryRowContext(ctx, query,
		ban.Type,
		ban.Value,
		ban.Reason,
		ban.CreatedBy,
		ban.CreatedAt,
		ban.ExpiresAt,
	).Scan(&ban.ID, &ban.Active, &ban.Slot, &ban.CreatedAt, &ban.UpdatedAt)

	if database.IsUniqueViolation(err, banSlotConstraint) {
		return fmt.Errorf("ban %s=%s already active: %w", ban.Type, ban.Value, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert ban: %w", err)
	}
	return nil
}

// Retire moves a live row into history by giving it its own id as slot.
func (r *BanRepository) Retire(ctx context.Context, id int64, at time.Time) (*models.BanEntry, error) {
	query := `
		UPDATE bans SET active = false, slot = id, updated_at = $2
		WHERE id = $1 AND active
		RETURNING ` + banColumns

	ban, err := scanBan(r.db.Conn(ctx).QueryRowContext(ctx, query, id, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ban %d is not active: %w", id, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retire ban: %w", err)
	}
	return ban, nil
}

// Update writes the mutable fields of a live ban.
func (r *BanRepository) Update(ctx context.Context, ban *models.BanEntry) error {
	query := `
		UPDATE bans SET reason = $2, expires_at = $3, updated_at = $4
		WHERE id = $1 AND active
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, ban.ID, ban.Reason, ban.ExpiresAt, ban.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update ban: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ban %d is not active: %w", ban.ID, ErrConflict)
	}
	return nil
}

// List returns bans newest first. Without IncludeHistory only rows that are
// in force at now are returned; an active row past its expiry is treated as
// lifted.
func (r *BanRepository) List(ctx context.Context, filter models.BanFilter, now time.Time) ([]models.BanEntry, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		conds = append(conds, "type = "+arg(filter.Type))
	}
	if filter.Value != "" {
		conds = append(conds, "value = "+arg(filter.Value))
	}
	if !filter.IncludeHistory {
		conds = append(conds, "active AND (expires_at IS NULL OR expires_at > "+arg(now)+")")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	conn := r.db.Conn(ctx)

	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM bans`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bans: %w", err)
	}

	query := `SELECT ` + banColumns + ` FROM bans` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bans: %w", err)
	}
	defer rows.Close()

	bans := []models.BanEntry{}
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan ban: %w", err)
		}
		bans = append(bans, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate bans: %w", err)
	}
	return bans, total, nil
}

// History returns every row ever recorded for an identity, newest first.
func (r *BanRepository) History(ctx context.Context, banType models.BanType, value string) ([]models.BanEntry, error) {
	query := `SELECT ` + banColumns + ` FROM bans WHERE type = $1 AND value = $2 ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, banType, value)
	if err != nil {
		return nil, fmt.Errorf("failed to get ban history: %w", err)
	}
	defer rows.Close()

	bans := []models.BanEntry{}
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ban: %w", err)
		}
		bans = append(bans, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bans: %w", err)
	}
	return bans, nil
}
