package trace_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xspy/pkg/trace"
)

func TestNewReportWithOptions(t *testing.T) {
	stats := trace.Stats{Samples: 10, Events: 4, ThreadsSeen: 2, Flushes: 1}
	artifacts := []string{"trace.json.gz"}

	report := trace.NewReport(
		trace.WithReportInput("samples.jsonl"),
		trace.WithReportArtifacts(artifacts),
		trace.WithReportDuration(1500*time.Millisecond),
		trace.WithReportStats(stats),
	)

	require.Equal(t, "samples.jsonl", report.Input)
	require.Equal(t, artifacts, report.Artifacts)
	require.Equal(t, 1.5, report.Duration)
	require.Equal(t, stats, report.Stats)
}

func TestWriteReportJSONOutput(t *testing.T) {
	report := trace.NewReport(
		trace.WithReportArtifacts([]string{"a.json.gz", "a.1.json.gz"}),
		trace.WithReportStats(trace.Stats{Samples: 3, Events: 6}),
	)

	var buf bytes.Buffer
	err := report.WriteReport(&buf)
	require.NoError(t, err)

	var parsed trace.SessionReport
	err = json.Unmarshal(buf.Bytes(), &parsed)
	require.NoError(t, err)

	require.Equal(t, report, &parsed)
}

func TestWriteReportContainsExpectedFields(t *testing.T) {
	report := trace.NewReport(trace.WithReportStats(trace.Stats{Events: 7}))

	var buf bytes.Buffer
	require.NoError(t, report.WriteReport(&buf))

	output := buf.String()
	require.Contains(t, output, `"events":7`)
	require.Contains(t, output, `"artifacts":[]`)
	require.Contains(t, output, "duration_seconds")
	require.NotContains(t, output, `"input"`)
}
