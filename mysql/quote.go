package mysql

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// QuoteMode selects the escaping rule for string literals (§4.5.2).
type QuoteMode int

const (
	QuoteANSI       QuoteMode = iota // '\'' -> '\'\'' only
	QuoteBackslash                    // also escapes backslash and control chars
)

// quoteLiteral renders v as the SQL literal a client-prepared statement
// substitutes for a `?` placeholder.
func quoteLiteral(v any, mode QuoteMode) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	switch t := v.(type) {
	case bool:
		if t {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t), nil
	case float32:
		return quoteFloat(float64(t))
	case float64:
		return quoteFloat(t)
	case []byte:
		return "X'" + fmt.Sprintf("%x", t) + "'", nil
	case string:
		return quoteString(t, mode), nil
	case time.Time:
		return "'" + t.Format("2006-01-02 15:04:05.000000") + "'", nil
	default:
		return "", NewProtocolError("cannot quote literal of type %T", v)
	}
}

func quoteFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", NewProtocolError("non-finite float cannot be represented as a SQL literal")
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// quoteString applies the escaping rules from §4.5.2: '\'' -> '\'\'' in
// ANSI mode (used when sql_mode contains NO_BACKSLASH_ESCAPES); in
// backslash mode, '\\' and control characters are also escaped.
func quoteString(s string, mode QuoteMode) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch {
		case r == '\'':
			b.WriteString("''")
		case mode == QuoteBackslash && r == '\\':
			b.WriteString(`\\`)
		case mode == QuoteBackslash && r == 0:
			b.WriteString(`\0`)
		case mode == QuoteBackslash && r == '\n':
			b.WriteString(`\n`)
		case mode == QuoteBackslash && r == '\r':
			b.WriteString(`\r`)
		case mode == QuoteBackslash && r == '\x1a':
			b.WriteString(`\Z`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// substitutePlaceholders scans sql left-to-right and replaces each `?`
// placeholder outside quoted strings and comments, in order, with the
// corresponding literal rendering of params (§4.5.2, §8 invariant 7).
func substitutePlaceholders(sql string, params []any, mode QuoteMode) (string, error) {
	var out strings.Builder
	paramIdx := 0
	runes := []rune(sql)
	n := len(runes)
	for i := 0; i < n; i++ {
		c := runes[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			quote := c
			out.WriteRune(c)
			i++
			for i < n {
				out.WriteRune(runes[i])
				if runes[i] == '\\' && quote != '`' && i+1 < n {
					i++
					out.WriteRune(runes[i])
				} else if runes[i] == quote {
					break
				}
				i++
			}
		case c == '-' && i+1 < n && runes[i+1] == '-':
			for i < n && runes[i] != '\n' {
				out.WriteRune(runes[i])
				i++
			}
			if i < n {
				out.WriteRune(runes[i])
			}
		case c == '/' && i+1 < n && runes[i+1] == '*':
			out.WriteRune(c)
			i++
			out.WriteRune(runes[i])
			i++
			for i < n-1 && !(runes[i] == '*' && runes[i+1] == '/') {
				out.WriteRune(runes[i])
				i++
			}
			if i < n {
				out.WriteRune(runes[i])
				if i+1 < n {
					i++
					out.WriteRune(runes[i])
				}
			}
		case c == '?':
			if paramIdx >= len(params) {
				return "", NewProtocolError("more placeholders than bound parameters")
			}
			lit, err := quoteLiteral(params[paramIdx], mode)
			if err != nil {
				return "", err
			}
			out.WriteString(lit)
			paramIdx++
		default:
			out.WriteRune(c)
		}
	}
	if paramIdx != len(params) {
		return "", NewProtocolError("bound %d parameters but found %d placeholders", len(params), paramIdx)
	}
	return out.String(), nil
}
