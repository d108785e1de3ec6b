package common

import "strings"

// SubstrBetween returns the text between the first occurrence of anchor
// and the next occurrence of end after it. The server pages targeted here
// embed values inside inline javascript where an HTML parser cannot reach.
func SubstrBetween(s, anchor, end string) (string, bool) {
	i := strings.Index(s, anchor)
	if i < 0 {
		return "", false
	}

	rest := s[i+len(anchor):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", false
	}

	return rest[:j], true
}

// SubstrAfter returns the n bytes following the first occurrence of anchor.
func SubstrAfter(s, anchor string, n int) (string, bool) {
	i := strings.Index(s, anchor)
	if i < 0 {
		return "", false
	}

	rest := s[i+len(anchor):]
	if len(rest) < n {
		return "", false
	}

	return rest[:n], true
}
