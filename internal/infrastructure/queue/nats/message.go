package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

type issueReportMessage struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	TurnID          string    `json:"turn_id"`
	Message         string    `json:"message"`
	StandaloneQuery string    `json:"standalone_query,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func encodeIssueReport(r domain.IssueReport) ([]byte, error) {
	data, err := json.Marshal(issueReportMessage{
		ID:              r.ID,
		SessionID:       r.SessionID,
		TurnID:          r.TurnID,
		Message:         r.Message,
		StandaloneQuery: r.StandaloneQuery,
		CreatedAt:       r.CreatedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal issue report: %w", err)
	}
	return data, nil
}

func decodeIssueReport(data []byte) (domain.IssueReport, error) {
	var m issueReportMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.IssueReport{}, fmt.Errorf("unmarshal issue report: %w", err)
	}
	if m.ID == "" {
		return domain.IssueReport{}, fmt.Errorf("issue report without id")
	}
	return domain.IssueReport{
		ID:              m.ID,
		SessionID:       m.SessionID,
		TurnID:          m.TurnID,
		Message:         m.Message,
		StandaloneQuery: m.StandaloneQuery,
		CreatedAt:       m.CreatedAt,
	}, nil
}
