package mysql

import (
	"math"
	"testing"
)

func TestQuoteLiteral(t *testing.T) {
	cases := []struct {
		name string
		v    any
		mode QuoteMode
		want string
	}{
		{"nil", nil, QuoteANSI, "NULL"},
		{"true", true, QuoteANSI, "TRUE"},
		{"false", false, QuoteANSI, "FALSE"},
		{"int", 42, QuoteANSI, "42"},
		{"negative int", -7, QuoteANSI, "-7"},
		{"float", 3.5, QuoteANSI, "3.5"},
		{"ansi string", "it's", QuoteANSI, "'it''s'"},
		{"backslash mode escapes backslash", `a\b`, QuoteBackslash, `'a\\b'`},
		{"bytes", []byte{0xde, 0xad}, QuoteANSI, "X'dead'"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := quoteLiteral(c.v, c.mode)
			if err != nil {
				t.Fatalf("quoteLiteral(%v) returned error: %v", c.v, err)
			}
			if got != c.want {
				t.Errorf("quoteLiteral(%v) = %q, want %q", c.v, got, c.want)
			}
		})
	}
}

func TestQuoteLiteralRejectsNonFiniteFloat(t *testing.T) {
	if _, err := quoteLiteral(math.Inf(1), QuoteANSI); err == nil {
		t.Fatal("expected error for +Inf")
	}
}

func TestSubstitutePlaceholders(t *testing.T) {
	sql := "SELECT * FROM t WHERE a = ? AND b = ?"
	out, err := substitutePlaceholders(sql, []any{1, "x"}, QuoteANSI)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT * FROM t WHERE a = 1 AND b = 'x'"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestSubstitutePlaceholdersIgnoresQuotedQuestionMarks(t *testing.T) {
	sql := "SELECT '?' , ?"
	out, err := substitutePlaceholders(sql, []any{5}, QuoteANSI)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT '?' , 5"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestSubstitutePlaceholdersCountMismatch(t *testing.T) {
	if _, err := substitutePlaceholders("SELECT ?, ?", []any{1}, QuoteANSI); err == nil {
		t.Fatal("expected error for parameter count mismatch")
	}
	if _, err := substitutePlaceholders("SELECT ?", []any{1, 2}, QuoteANSI); err == nil {
		t.Fatal("expected error for unused parameter")
	}
}
