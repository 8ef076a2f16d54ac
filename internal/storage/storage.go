package storage

import "time"

// ToolOutcome is one dispatched tool call of a turn.
type ToolOutcome struct {
	Name   string `json:"name"`
	CallID string `json:"call_id"`
	OK     bool   `json:"ok"`
}

// TurnRecord is the metadata of one webhook turn. Message text is never
// stored; the assistant thread is the only conversation store.
type TurnRecord struct {
	Timestamp  time.Time     `json:"timestamp"`
	TurnID     string        `json:"turn_id"`
	ThreadID   string        `json:"thread_id"`
	RunID      string        `json:"run_id,omitempty"`
	RunStatus  string        `json:"run_status,omitempty"`
	ToolRounds int           `json:"tool_rounds"`
	Tools      []ToolOutcome `json:"tools,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// Journal persists turn records. Implementations must be safe for
// concurrent use.
type Journal interface {
	Append(rec TurnRecord) error
}

// Discard drops every record.
type Discard struct{}

func (Discard) Append(TurnRecord) error { return nil }
