package ledger

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is a row in the runs table.
type Run struct {
	ID          string  `json:"id"`
	OutName     string  `json:"out_name"`
	Image       string  `json:"image"`
	Weight      string  `json:"weight"`
	Filter      string  `json:"filter"`
	Status      string  `json:"status"`
	Error       *string `json:"error"`
	FailedStage *string `json:"failed_stage"`
	FinalRows   *int    `json:"final_rows"`
	StartedAt   int64   `json:"started_at"` // Unix millis
	FinishedAt  *int64  `json:"finished_at"`
}

// Stage is a row in the stages table: one materialized intermediate.
type Stage struct {
	Seq        int    `json:"seq"`
	Stage      string `json:"stage"`
	Path       string `json:"path"`
	Rows       int    `json:"rows"`
	SHA256     string `json:"sha256"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
}

// Deletion is a row in the deletions table.
type Deletion struct {
	Stage   string `json:"stage"`
	Number  int    `json:"number"`
	Reason  string `json:"reason"`
	Source  string `json:"source"`
	Catalog string `json:"catalog"`
}
