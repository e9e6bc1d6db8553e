package a2a

import "time"

// ContextSummary is the list_contexts projection of a context (the
// conversational grouping created implicitly the first time a message
// references an unseen id): cheap-to-compute counts rather than the full
// task/message graph.
type ContextSummary struct {
	ContextID    string    `json:"contextId"`
	TaskCount    int       `json:"taskCount"`
	TaskIDs      []string  `json:"taskIds"`
	LastActivity time.Time `json:"lastActivity"`
}
