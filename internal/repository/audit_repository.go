package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HFI-UC/UtiOpia-sub001/internal/database"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/lib/pq"
)

type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append stores a record. Records carry client-generated ids, so replaying
// one that already landed is a no-op.
func (r *AuditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	meta, err := json.Marshal(record.Meta)
	if err != nil {
		return fmt.Errorf("failed to encode audit meta: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, action, actor_user_id, meta, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.Conn(ctx).ExecContext(ctx, query,
		record.ID,
		record.Action,
		record.ActorUserID,
		string(meta),
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// List returns records newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Action != "" {
		args = append(args, filter.Action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if len(filter.ExcludeActions) > 0 {
		args = append(args, pq.Array(filter.ExcludeActions))
		conds = append(conds, fmt.Sprintf("NOT (action = ANY($%d))", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	conn := r.db.Conn(ctx)

	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT id, action, actor_user_id, meta, created_at FROM audit_logs%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	records := []models.AuditRecord{}
	for rows.Next() {
		var (
			rec  models.AuditRecord
			meta []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Action, &rec.ActorUserID, &meta, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if err := json.Unmarshal(meta, &rec.Meta); err != nil {
			return nil, 0, fmt.Errorf("failed to decode audit meta: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate audit records: %w", err)
	}
	return records, total, nil
}
