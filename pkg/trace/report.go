package trace

import (
	"encoding/json"
	"io"
	"time"
)

// SessionReport summarizes a capture session.
type SessionReport struct {
	Input     string   `json:"input,omitempty"`
	Artifacts []string `json:"artifacts"`
	Duration  float64  `json:"duration_seconds"`
	Stats
}

type SessionReportOption func(*SessionReport)

func NewReport(opts ...SessionReportOption) *SessionReport {
	report := &SessionReport{Artifacts: []string{}}
	for _, opt := range opts {
		opt(report)
	}

	return report
}

func WithReportInput(input string) SessionReportOption {
	return func(o *SessionReport) {
		o.Input = input
	}
}

func WithReportArtifacts(artifacts []string) SessionReportOption {
	return func(o *SessionReport) {
		o.Artifacts = artifacts
	}
}

func WithReportDuration(d time.Duration) SessionReportOption {
	return func(o *SessionReport) {
		o.Duration = d.Seconds()
	}
}

func WithReportStats(stats Stats) SessionReportOption {
	return func(o *SessionReport) {
		o.Stats = stats
	}
}

func (r *SessionReport) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(r)
}
