package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

// TurnRepository keeps an append-only audit log of chat turns.
type TurnRepository struct {
	db *sql.DB
}

func NewTurnRepository(db *sql.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) RecordTurn(ctx context.Context, turn domain.Turn) error {
	citations := turn.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	var errorMessage sql.NullString
	if turn.Error != "" {
		errorMessage = sql.NullString{String: turn.Error, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO turn_log (
	id, session_id, raw_message, standalone_query, condense_fallback, strategy, answer, citations,
	no_evidence, status, error_message, started_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING
`,
		turn.ID, turn.SessionID, turn.RawMessage, turn.StandaloneQuery, turn.CondenseFallback,
		turn.Decision.Strategy, turn.Answer, citationsJSON, turn.NoEvidence, string(turn.Status),
		errorMessage, turn.StartedAt, turn.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}
