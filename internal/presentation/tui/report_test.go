package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReport(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &domain.Run{
		ID:        "case01",
		Pipeline:  "niftymic_dhcp",
		StartedAt: start,
		Stages: []domain.StageRecord{
			{
				Node: "brain_extraction", Status: domain.StageSucceeded, Attempts: 1,
				StartedAt: start, FinishedAt: start.Add(90 * time.Second),
				Outputs: domain.Outputs{"bmasks": []any{"/w/a_mask.nii.gz", "/w/b_mask.nii.gz"}},
			},
			{
				Node: "recon", Status: domain.StageFailed, Attempts: 10,
				StartedAt: start, FinishedAt: start.Add(time.Hour),
				Error: "artifacts not produced after 10 attempts",
			},
			{Node: "segmentation", Status: domain.StageSkipped, Error: "upstream node recon failed"},
		},
	}

	got := RunReport(run)
	assert.Contains(t, got, "# Run `case01`")
	assert.Contains(t, got, "- **Status:** failed")
	assert.Contains(t, got, "| brain_extraction | succeeded | 1 | 1m30s |")
	assert.Contains(t, got, "| recon | failed | 10 | 1h0m0s |")
	assert.Contains(t, got, "- **segmentation** (skipped): upstream node recon failed")
	assert.Contains(t, got, "\n  - `/w/b_mask.nii.gz`")
	assert.NotContains(t, got, "### recon")
}

func TestRunReport_NoStages(t *testing.T) {
	got := RunReport(&domain.Run{ID: "r", Pipeline: "nesvor"})
	assert.Contains(t, got, "- **Status:** succeeded")
	assert.Contains(t, got, "No stage has finished yet")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestPrintMarkdown_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintMarkdown(&buf, "# Title\n"))
	assert.Equal(t, "# Title\n", buf.String())
	assert.False(t, IsTerminal(&buf))

	assert.Error(t, PrintMarkdown(failingWriter{}, "x"))
}

func TestStatus(t *testing.T) {
	assert.Contains(t, Status(domain.StageFailed), "failed")
	assert.Equal(t, "running", Status("running"))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Equal(t, 8, strings.Count(buf.String(), "\n"))
}
