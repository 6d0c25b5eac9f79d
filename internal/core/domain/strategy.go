package domain

type StrategyKind string

const (
	StrategyRetrieval StrategyKind = "retrieval"
	StrategyCanned    StrategyKind = "canned"
)

// StrategyDescriptor is everything the router is allowed to see about a strategy.
type StrategyDescriptor struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Kind        StrategyKind `json:"kind"`
	Collection  string       `json:"collection,omitempty"`
}

// RouterDecision names exactly one strategy. Index is 1-based, as presented
// to the model.
type RouterDecision struct {
	Index    int    `json:"index"`
	Strategy string `json:"strategy"`
	Reason   string `json:"reason,omitempty"`
}
