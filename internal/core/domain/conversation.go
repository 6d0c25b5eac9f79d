package domain

import "time"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	Tokens  int         `json:"tokens"`
}

type TurnStage string

const (
	StageIdle         TurnStage = "idle"
	StageCondensing   TurnStage = "condensing"
	StageRouting      TurnStage = "routing"
	StageRetrieving   TurnStage = "retrieving"
	StageReranking    TurnStage = "reranking"
	StageSynthesizing TurnStage = "synthesizing"
	StageStreaming    TurnStage = "streaming"
	StageDone         TurnStage = "done"
)

type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
	TurnCancelled TurnStatus = "cancelled"
)

// Turn is the record of one user message and its answer.
type Turn struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id"`
	RawMessage       string         `json:"raw_message"`
	StandaloneQuery  string         `json:"standalone_query"`
	CondenseFallback bool           `json:"condense_fallback"`
	Decision         RouterDecision `json:"decision"`
	Evidence         []RankedChunk  `json:"evidence,omitempty"`
	Answer           string         `json:"answer"`
	Citations        []Citation     `json:"citations"`
	NoEvidence       bool           `json:"no_evidence"`
	Status           TurnStatus     `json:"status"`
	Error            string         `json:"error,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
}

func (t Turn) Duration() time.Duration {
	if t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// IssueReport is a user-reported catalog problem forwarded for manual review.
type IssueReport struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	TurnID          string    `json:"turn_id"`
	Message         string    `json:"message"`
	StandaloneQuery string    `json:"standalone_query"`
	CreatedAt       time.Time `json:"created_at"`
}

type GenerationRequest struct {
	Prompt string
	System string
	JSON   bool
}
