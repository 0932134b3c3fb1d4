package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintBanner writes the fetpipe banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"   __      _         _          ", "#818cf8"},
		{"  / _| ___| |_ _ __ (_)_ __   ___ ", "#a78bfa"},
		{" | |_ / _ \\ __| '_ \\| | '_ \\ / _ \\", "#c084fc"},
		{" |  _|  __/ |_| |_) | | |_) |  __/", "#e879f9"},
		{" |_|  \\___|\\__| .__/|_| .__/ \\___|", "#f472b6"},
		{"              |_|     |_|        ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

var statusColors = map[domain.StageStatus]string{
	domain.StageSucceeded: "#22c55e",
	domain.StageFailed:    "#ef4444",
	domain.StageSkipped:   "#9ca3af",
}

// Status colors a stage status for terminal output.
func Status(status domain.StageStatus) string {
	color, ok := statusColors[status]
	if !ok {
		return string(status)
	}
	return termenv.String(string(status)).Foreground(termenv.ColorProfile().Color(color)).Bold().String()
}
