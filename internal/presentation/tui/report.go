package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/fetpipe/pkg/domain"
)

// RunReport renders run as a markdown document.
func RunReport(run *domain.Run) string {
	var sb strings.Builder

	status := "succeeded"
	if run.Failed() {
		status = "failed"
	}
	fmt.Fprintf(&sb, "# Run `%s`\n\n", run.ID)
	fmt.Fprintf(&sb, "- **Pipeline:** %s\n", run.Pipeline)
	fmt.Fprintf(&sb, "- **Started:** %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- **Status:** %s\n\n", status)

	if len(run.Stages) == 0 {
		sb.WriteString("_No stage has finished yet._\n")
		return sb.String()
	}

	sb.WriteString("| Node | Status | Attempts | Duration |\n")
	sb.WriteString("|------|--------|----------|----------|\n")
	for _, rec := range run.Stages {
		fmt.Fprintf(&sb, "| %s | %s | %d | %s |\n",
			rec.Node, rec.Status, rec.Attempts, rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
	}

	var problems []domain.StageRecord
	for _, rec := range run.Stages {
		if rec.Error != "" {
			problems = append(problems, rec)
		}
	}
	if len(problems) > 0 {
		sb.WriteString("\n## Problems\n\n")
		for _, rec := range problems {
			fmt.Fprintf(&sb, "- **%s** (%s): %s\n", rec.Node, rec.Status, rec.Error)
		}
	}

	sb.WriteString("\n## Outputs\n")
	for _, rec := range run.Stages {
		if len(rec.Outputs) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n### %s\n\n", rec.Node)
		names := make([]string, 0, len(rec.Outputs))
		for name := range rec.Outputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "- `%s`:%s\n", name, formatValue(rec.Outputs[name]))
		}
	}
	return sb.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return " `" + v + "`"
	case []string:
		var sb strings.Builder
		for _, s := range v {
			sb.WriteString("\n  - `" + s + "`")
		}
		return sb.String()
	case []any:
		var sb strings.Builder
		for _, s := range v {
			fmt.Fprintf(&sb, "\n  - `%v`", s)
		}
		return sb.String()
	default:
		return fmt.Sprintf(" `%v`", v)
	}
}
