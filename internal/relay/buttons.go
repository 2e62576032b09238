package relay

import "fmt"

// ButtonLinks converts an inline keyboard into literal text lines, one per
// URL button, in row-major then left-to-right order. The destination cannot
// carry executable buttons, so "<label> → <url>" lines are appended to the
// forwarded text instead. Non-URL buttons (callback, switch-inline, ...)
// are ignored.
func ButtonLinks(rows [][]Button) []string {
	var lines []string
	for _, row := range rows {
		for _, btn := range row {
			if btn.URL == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s → %s", btn.Label, btn.URL))
		}
	}
	return lines
}
