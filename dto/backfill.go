package dto

// BackfillRequest drives the operator-invoked batch re-resolution. UserID empty
// means all accounts. MaxItems zero means no cap.
type BackfillRequest struct {
	UserID    string `json:"userId"`
	BatchSize int    `json:"batchSize"`
	MaxItems  int    `json:"maxItems"`
}

type BackfillResult struct {
	Processed      int `json:"processed"`
	ThreadsCreated int `json:"threadsCreated"`
	Repaired       int `json:"repaired"`
	Errors         int `json:"errors"`
}
