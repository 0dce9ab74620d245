package tgui

// TruncRunes shortens s to n runes, marking the cut with "…". Record
// fields are user-entered and can be arbitrarily long.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}

// Pre wraps s in a preformatted block.
func Pre(s string) H { return wrap("pre", Esc(s)) }
