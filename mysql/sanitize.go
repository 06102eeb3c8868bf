package mysql

import "strings"

// sanitizeSQL replaces string, numeric, hex, and binary literals and
// boolean keywords with `?` for safe inclusion in telemetry attributes
// (§6). `IS [NOT] NULL` is preserved verbatim, as are LIMIT/OFFSET
// numerics, which carry no sensitive data and are useful for grouping.
func sanitizeSQL(sql string) string {
	var out strings.Builder
	runes := []rune(sql)
	n := len(runes)
	lastWord := ""

	for i := 0; i < n; i++ {
		c := runes[i]
		switch {
		case c == '\'' || c == '"':
			quote := c
			i++
			for i < n {
				if runes[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				if runes[i] == quote {
					i++
					break
				}
				i++
			}
			out.WriteByte('?')
			i--
		case c == '`':
			out.WriteRune(c)
			i++
			for i < n && runes[i] != '`' {
				out.WriteRune(runes[i])
				i++
			}
			if i < n {
				out.WriteRune(runes[i])
			}
		case c == '0' && i+1 < n && (runes[i+1] == 'x' || runes[i+1] == 'X' || runes[i+1] == 'b' || runes[i+1] == 'B'):
			i += 2
			for i < n && isHexDigit(runes[i]) {
				i++
			}
			out.WriteByte('?')
			i--
		case isDigit(c) || (c == '.' && i+1 < n && isDigit(runes[i+1])):
			if precededByKeyword(lastWord, "LIMIT", "OFFSET") {
				out.WriteRune(c)
				continue
			}
			for i < n && (isDigit(runes[i]) || runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E') {
				i++
			}
			out.WriteByte('?')
			i--
		case isWordChar(c):
			start := i
			for i < n && isWordChar(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			lastWord = strings.ToUpper(word)
			if lastWord == "TRUE" || lastWord == "FALSE" {
				out.WriteByte('?')
			} else {
				out.WriteString(word)
			}
			i--
		default:
			out.WriteRune(c)
		}
	}
	return out.String()
}

func isDigit(r rune) bool      { return r >= '0' && r <= '9' }
func isHexDigit(r rune) bool   { return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') }
func isWordChar(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || isDigit(r)
}

func precededByKeyword(word string, keywords ...string) bool {
	for _, k := range keywords {
		if word == k {
			return true
		}
	}
	return false
}
