package throttle

import (
	"strconv"
	"time"
)

// formatação de valores numéricos para headers, sem passar por fmt.

func formatInt(v int) string { return strconv.Itoa(v) }

func formatUnix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }
