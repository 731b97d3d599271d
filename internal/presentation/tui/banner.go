package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the parley ASCII banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text, color string
	}{
		{"                   _            ", "#34d399"},
		{"  _ __   __ _ _ __| | ___ _   _ ", "#2dd4bf"},
		{" | '_ \\ / _` | '__| |/ _ \\ | | |", "#22d3ee"},
		{" | |_) | (_| | |  | |  __/ |_| |", "#38bdf8"},
		{" | .__/ \\__,_|_|  |_|\\___|\\__, |", "#60a5fa"},
		{" |_|                      |___/ ", "#818cf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String(" "+version).Faint())
	fmt.Fprintln(w)
}
