package circuitbreaker

import "strconv"

// formatInt evita fmt só para valores de header.
func formatInt(v int) string { return strconv.Itoa(v) }
