package memory

import (
	"context"

	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
)

type AuditRepository struct {
	db *DB
}

func (r *AuditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	defer r.db.lock(ctx)()
	if _, ok := r.db.st.auditIDs[record.ID]; ok {
		return nil
	}
	r.db.st.auditIDs[record.ID] = struct{}{}
	r.db.st.audit = append(r.db.st.audit, *record)
	return nil
}

// List returns records newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, int, error) {
	defer r.db.lock(ctx)()
	excluded := make(map[string]bool, len(filter.ExcludeActions))
	for _, a := range filter.ExcludeActions {
		excluded[a] = true
	}
	var matched []models.AuditRecord
	for i := len(r.db.st.audit) - 1; i >= 0; i-- {
		rec := r.db.st.audit[i]
		if filter.Action != "" && rec.Action != filter.Action {
			continue
		}
		if excluded[rec.Action] {
			continue
		}
		matched = append(matched, rec)
	}
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}
