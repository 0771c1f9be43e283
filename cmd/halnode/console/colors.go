package console

import (
	"fmt"
	"math"

	"github.com/fatih/color"
)

var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Reading formats a sensor value, highlighting failed (NaN) reads.
func Reading(v float32, unit string) string {
	if math.IsNaN(float64(v)) {
		return Red("NaN")
	}
	return Green(fmt.Sprintf("%.2f%s", v, unit))
}

// Addr formats a 7-bit bus address.
func Addr(addr byte) string {
	return Cyan(fmt.Sprintf("%#02x", addr))
}
