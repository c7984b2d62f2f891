package domain

import (
	"encoding/json"
	"slices"
)

// Record is a shared struct together with its vote metadata.
type Record struct {
	Owner       string          `json:"owner"`
	LocalID     int64           `json:"id"`
	Upvoters    []string        `json:"upvoters"`
	SubmittedAt int64           `json:"submittedAt"`
	Payload     json.RawMessage `json:"payload"`
}

// HasUpvoter reports whether voter already upvoted the record.
func (r Record) HasUpvoter(voter string) bool {
	return slices.Contains(r.Upvoters, voter)
}

// UpvoteResult is the state of a record after an upvote was applied.
type UpvoteResult struct {
	Owner       string
	LocalID     int64
	Upvotes     int
	SubmittedAt int64
	Applied     bool
}
