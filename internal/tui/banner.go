package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner with the running version.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	// Green to amber gradient.
	lines := []struct {
		text  string
		color string
	}{
		{"            _                ", "#4ade80"},
		{"   __ _ _ __| |__  ___ _ _   ", "#86efac"},
		{"  / _` | '__| '_ \\/ _ \\ '_|  ", "#bef264"},
		{"  \\__,_|_|  |_.__/\\___/_|    ", "#fde047"},
	}

	fmt.Println()
	for _, line := range lines {
		fmt.Println(termenv.String(line.text).Foreground(p.Color(line.color)))
	}
	fmt.Printf("  decision trees, evaluated  v%s\n\n", strings.TrimSpace(version))
}
