package mysql

import "testing"

func TestExtractProcedureName(t *testing.T) {
	cases := []struct {
		sql    string
		want   string
		wantOK bool
	}{
		{"CALL my_proc(?, ?)", "my_proc", true},
		{"call lower_case_proc()", "lower_case_proc", true},
		{"  CALL  spaced_proc (1)", "spaced_proc", true},
		{"CALL no_parens", "no_parens", true},
		{"SELECT 1", "", false},
		{"CALL ", "", false},
	}
	for _, c := range cases {
		got, ok := extractProcedureName(c.sql)
		if ok != c.wantOK || got != c.want {
			t.Errorf("extractProcedureName(%q) = (%q, %v), want (%q, %v)", c.sql, got, ok, c.want, c.wantOK)
		}
	}
}

func TestParseParamMode(t *testing.T) {
	cases := map[string]ParamMode{
		"IN":    ParamIn,
		"in":    ParamIn,
		"OUT":   ParamOut,
		"INOUT": ParamInOut,
		"":      ParamIn,
	}
	for in, want := range cases {
		if got := parseParamMode(in); got != want {
			t.Errorf("parseParamMode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseDataTypeName(t *testing.T) {
	cases := map[string]ColumnType{
		"int":      TypeLong,
		"INTEGER":  TypeLong,
		"bigint":   TypeLongLong,
		"double":   TypeDouble,
		"DateTime": TypeDateTime,
	}
	for in, want := range cases {
		if got := parseDataTypeName(in); got != want {
			t.Errorf("parseDataTypeName(%q) = %v, want %v", in, got, want)
		}
	}
}
