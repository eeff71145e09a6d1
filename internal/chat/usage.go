package chat

// Usage records token consumption and cost for a single model call,
// mirroring the gateway's usage block (input_tokens, output_tokens,
// total_tokens, cost).
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	Cost         float64 `json:"cost,omitempty"`
}

// Add accumulates other into u. A nil other is treated as zero usage, which
// lets callers fold in calls that reported no usage without guarding.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
}

// AggregateUsage sums usage across a heterogeneous list of per-call records.
// Nil entries count as zero. The result is never nil, so callers can attach
// it directly to metadata.
func AggregateUsage(usages ...*Usage) *Usage {
	total := &Usage{}
	for _, u := range usages {
		total.Add(u)
	}
	return total
}
