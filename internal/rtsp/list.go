package rtsp

import "strings"

// EncodeList joins resource names with commas, escaping backslashes and
// commas inside names.
func EncodeList(names []string) string {
	escaped := make([]string, len(names))
	for i, name := range names {
		name = strings.ReplaceAll(name, `\`, `\\`)
		escaped[i] = strings.ReplaceAll(name, ",", `\,`)
	}
	return strings.Join(escaped, ",")
}

// DecodeList is the inverse of EncodeList. An empty value is an empty list.
func DecodeList(value string) []string {
	if value == "" {
		return []string{}
	}
	var (
		names   []string
		current strings.Builder
		escape  bool
	)
	for _, r := range value {
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case r == '\\':
			escape = true
		case r == ',':
			names = append(names, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(names, current.String())
}
