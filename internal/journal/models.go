package journal

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"

	// InterruptedError is recorded on runs found running at startup.
	InterruptedError = "interrupted"
)

// Run is one invocation of the montage pipeline.
type Run struct {
	ID            string    `json:"id"`
	TextPath      string    `json:"text_path"`
	OutputPath    string    `json:"output_path"`
	AudioPath     string    `json:"audio_path,omitempty"`
	Mode          string    `json:"mode"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	QuotaLimit    int       `json:"quota_limit"`
	QuotaUsed     int       `json:"quota_used"`
	TargetSeconds float64   `json:"target_seconds"`
	OutputSeconds float64   `json:"output_seconds"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UnitRecord is the resolved outcome of one unit of a run.
type UnitRecord struct {
	RunID        string  `json:"run_id"`
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	Granularity  string  `json:"granularity"`
	Outcome      string  `json:"outcome"`
	VideoID      string  `json:"video_id,omitempty"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	ClipPath     string  `json:"clip_path,omitempty"`
}

// CallStat aggregates the quota decisions of one call kind in a run.
type CallStat struct {
	Kind    string `json:"kind"`
	Allowed int    `json:"allowed"`
	Denied  int    `json:"denied"`
	Units   int    `json:"units"`
}

// NewID returns a fresh run identifier.
func NewID() string {
	return uuid.NewString()
}
