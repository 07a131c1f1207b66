package domain

// BulkFailure describes one failed item of a bulk operation
type BulkFailure struct {
	Item   string
	Reason string
}

// BulkResult aggregates the outcome of a bulk operation
type BulkResult struct {
	Attempted int
	Succeeded int
	Failed    int
	Failures  []BulkFailure
	Cancelled bool
}

// Add accumulates the counts and failures of o into r
func (r *BulkResult) Add(o BulkResult) {
	r.Attempted += o.Attempted
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Failures = append(r.Failures, o.Failures...)
	r.Cancelled = r.Cancelled || o.Cancelled
}
