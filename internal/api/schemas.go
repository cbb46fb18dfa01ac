package api

import (
	"time"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/journal"
)

type HealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version"`
	UptimeS  int64           `json:"uptime_s"`
	Journal  bool            `json:"journal"`
	Tools    map[string]bool `json:"tools,omitempty"`
	ProbedAt string          `json:"probed_at,omitempty"`
}

type RunResponse struct {
	ID            string  `json:"id"`
	TextPath      string  `json:"text_path"`
	OutputPath    string  `json:"output_path"`
	AudioPath     string  `json:"audio_path,omitempty"`
	Mode          string  `json:"mode"`
	Status        string  `json:"status"`
	Error         string  `json:"error,omitempty"`
	QuotaLimit    int     `json:"quota_limit"`
	QuotaUsed     int     `json:"quota_used"`
	TargetSeconds float64 `json:"target_seconds"`
	OutputSeconds float64 `json:"output_seconds"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type UnitResponse struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	Granularity  string  `json:"granularity"`
	Outcome      string  `json:"outcome"`
	VideoID      string  `json:"video_id,omitempty"`
	StartSeconds float64 `json:"start_seconds,omitempty"`
	EndSeconds   float64 `json:"end_seconds,omitempty"`
}

type UnitsResponse struct {
	RunID    string         `json:"run_id"`
	Matched  int            `json:"matched"`
	Fallback int            `json:"fallback"`
	Units    []UnitResponse `json:"units"`
}

type CallResponse struct {
	Kind    string `json:"kind"`
	Allowed int    `json:"allowed"`
	Denied  int    `json:"denied"`
	Units   int    `json:"units"`
}

type CallsResponse struct {
	RunID string         `json:"run_id"`
	Calls []CallResponse `json:"calls"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RunToResponse(r *journal.Run) RunResponse {
	return RunResponse{
		ID:            r.ID,
		TextPath:      r.TextPath,
		OutputPath:    r.OutputPath,
		AudioPath:     r.AudioPath,
		Mode:          r.Mode,
		Status:        r.Status,
		Error:         r.Error,
		QuotaLimit:    r.QuotaLimit,
		QuotaUsed:     r.QuotaUsed,
		TargetSeconds: r.TargetSeconds,
		OutputSeconds: r.OutputSeconds,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
	}
}

// UnitToResponse omits the local clip path.
func UnitToResponse(u *journal.UnitRecord) UnitResponse {
	return UnitResponse{
		Index:        u.Index,
		Text:         u.Text,
		Granularity:  u.Granularity,
		Outcome:      u.Outcome,
		VideoID:      u.VideoID,
		StartSeconds: u.StartSeconds,
		EndSeconds:   u.EndSeconds,
	}
}
