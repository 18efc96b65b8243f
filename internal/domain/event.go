package domain

import "fmt"

// JobMatchEvent is the webhook payload shape emitted by the matching pipeline
// whenever a new row lands in the job application tracking table.
type JobMatchEvent struct {
	Type   string         `json:"type" validate:"required"`
	Table  string         `json:"table" validate:"required"`
	Record JobMatchRecord `json:"record" validate:"required"`
}

type JobMatchRecord struct {
	CandID        int64  `json:"cand_id" validate:"required"`
	RequirementID string `json:"requirement_id" validate:"required"`
}

// DedupKey identifies the event for idempotent admission: webhook senders
// retry on ambiguous outcomes, so the same candidate+requirement pair must
// map to at most one task inside the dedup window.
func (e JobMatchEvent) DedupKey() string {
	return fmt.Sprintf("dedup:%d:%s", e.Record.CandID, e.Record.RequirementID)
}
