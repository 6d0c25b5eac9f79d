package domain

type RetrievalOrigin string

const (
	OriginLexical RetrievalOrigin = "lexical"
	OriginVector  RetrievalOrigin = "vector"
)

// Chunk is a unit of indexed catalog text. Adapters produce chunks and nothing
// downstream mutates them.
type Chunk struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Score      float64           `json:"score"`
	Collection string            `json:"collection"`
	Origin     RetrievalOrigin   `json:"origin"`
}

// CandidateSet holds chunks unique by ID, ordered best to worst.
type CandidateSet []Chunk

func (s CandidateSet) IDs() []string {
	out := make([]string, 0, len(s))
	for _, c := range s {
		out = append(out, c.ID)
	}
	return out
}

type RankedChunk struct {
	Chunk
	Relevance  float64 `json:"relevance"`
	Confidence float64 `json:"confidence"`
}

// RerankResult is at most the configured output size; empty is valid.
type RerankResult struct {
	Chunks []RankedChunk `json:"chunks"`
}

func (r RerankResult) Empty() bool {
	return len(r.Chunks) == 0
}
