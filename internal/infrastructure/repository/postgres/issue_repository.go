package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

type IssueRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db, now: time.Now}
}

// SaveIssueReport is idempotent on the report id, so redelivered messages are harmless.
func (r *IssueRepository) SaveIssueReport(ctx context.Context, report domain.IssueReport) error {
	createdAt := report.CreatedAt
	receivedAt := r.now().UTC()
	if createdAt.IsZero() {
		createdAt = receivedAt
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO issue_reports (id, session_id, turn_id, message, standalone_query, created_at, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`,
		report.ID, report.SessionID, report.TurnID, report.Message, report.StandaloneQuery, createdAt, receivedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "insert issue report", err)
	}
	return nil
}
