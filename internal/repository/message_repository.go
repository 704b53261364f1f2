package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/database"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/google/uuid"
)

type MessageRepository struct {
	db *database.DB
}

func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `
	id, user_id, anon_email, anon_student_id, anon_passphrase_hash,
	content, image_url, status, reject_reason, reviewed_by, reviewed_at,
	publish_seq, deleted_at, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var (
		m                             models.Message
		anonEmail, anonSID, anonHash  sql.NullString
		publishSeq                    sql.NullInt64
	)
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&anonEmail,
		&anonSID,
		&anonHash,
		&m.Content,
		&m.ImageURL,
		&m.Status,
		&m.RejectReason,
		&m.ReviewedBy,
		&m.ReviewedAt,
		&publishSeq,
		&m.DeletedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.UserID == nil {
		m.Anonymous = &models.AnonymousIdentity{
			Email:          anonEmail.String,
			StudentID:      anonSID.String,
			PassphraseHash: anonHash.String,
		}
	}
	if publishSeq.Valid {
		seq := publishSeq.Int64
		m.PublishSeq = &seq
	}
	return &m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	var email, sid, hash sql.NullString
	if message.Anonymous != nil {
		email = nullString(message.Anonymous.Email)
		sid = nullString(message.Anonymous.StudentID)
		hash = nullString(message.Anonymous.PassphraseHash)
	}

	query := `
		INSERT INTO messages (id, user_id, anon_email, anon_student_id, anon_passphrase_hash,
			content, image_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.Conn(ctx).QueryRowContext(ctx, query,
		message.ID,
		message.UserID,
		email,
		sid,
		hash,
		message.Content,
		message.ImageURL,
		message.Status,
		message.CreatedAt,
		message.UpdatedAt,
	).Scan(&message.CreatedAt, &message.UpdatedAt)

	if database.IsUniqueViolation(err, "") {
		return fmt.Errorf("message %s: %w", message.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetByID retrieves a message by ID
func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return r.get(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a message and locks its row until the
// surrounding transaction ends.
func (r *MessageRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return r.get(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id)
}

func (r *MessageRepository) get(ctx context.Context, query string, id uuid.UUID) (*models.Message, error) {
	message, err := scanMessage(r.db.Conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return message, nil
}

// UpdateReview persists a review outcome. The update only applies while the
// row is still pending, so a concurrent reviewer gets ErrConflict instead of
// overwriting the first decision. Approved messages draw the next publish
// sequence number.
func (r *MessageRepository) UpdateReview(ctx context.Context, message *models.Message) error {
	query := `
		UPDATE messages
		SET status = $2,
			reject_reason = $3,
			reviewed_by = $4,
			reviewed_at = $5,
			updated_at = $5,
			publish_seq = CASE WHEN $2 = 'approved' THEN nextval('message_publish_seq') ELSE NULL END
		WHERE id = $1 AND status = 'pending'
		RETURNING publish_seq
	`

	var seq sql.NullInt64
	err := r.db.Conn(ctx).QueryRowContext(ctx, query,
		message.ID,
		message.Status,
		message.RejectReason,
		message.ReviewedBy,
		message.ReviewedAt,
	).Scan(&seq)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s is no longer pending: %w", message.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	if seq.Valid {
		v := seq.Int64
		message.PublishSeq = &v
	}
	return nil
}

// UpdateContent replaces the content of a pending, undeleted message.
func (r *MessageRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string, at time.Time) error {
	query := `
		UPDATE messages SET content = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, id, content, at)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message %s is not editable: %w", id, ErrConflict)
	}
	return nil
}

// SoftDelete stamps deleted_at. Deleting an already deleted message leaves
// the original timestamp in place and is not an error.
func (r *MessageRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE messages SET deleted_at = COALESCE(deleted_at, $2), updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListPublic returns approved, undeleted messages newest first. The snapshot
// key bounds the listing to messages approved at or before it; pass 0 to
// take a fresh snapshot.
func (r *MessageRepository) ListPublic(ctx context.Context, limit, offset int, snapshot int64) ([]models.Message, int, int64, error) {
	conn := r.db.Conn(ctx)

	if snapshot <= 0 {
		if err := conn.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(publish_seq), 0) FROM messages`,
		).Scan(&snapshot); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to read publish snapshot: %w", err)
		}
	}

	const where = `status = 'approved' AND deleted_at IS NULL AND publish_seq <= $1`

	var total int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE `+where, snapshot,
	).Scan(&total); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, snapshot, limit, offset)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, 0, 0, err
	}
	return messages, total, snapshot, nil
}

// ListByStatus returns undeleted messages in the given state, oldest first,
// for the review queue.
func (r *MessageRepository) ListByStatus(ctx context.Context, status models.MessageStatus, limit, offset int) ([]models.Message, int, error) {
	conn := r.db.Conn(ctx)

	var total int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE status = $1 AND deleted_at IS NULL`, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE status = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
