package utils

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"elevsim/src/types"
)

func Abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func Clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

var printer = message.NewPrinter(language.English)

// FormatStatus renders the one-line console status from a tick update.
func FormatStatus(u types.Update) string {
	state := "stopped"
	if u.State.Running {
		state = "running"
	}
	m := u.Metrics
	return printer.Sprintf("%s | %s | t=%ds | active %d | backlog %d | served %d | avg wait %.1fs | max wait %.1fs | util %.0f%%",
		state,
		u.State.Algorithm,
		u.State.ElapsedMs/1000,
		m.ActiveRequests,
		m.Backlog,
		m.ServedTotal,
		float64(m.AverageWaitMs)/1000,
		float64(m.MaxWaitMs)/1000,
		m.Utilization*100,
	)
}
