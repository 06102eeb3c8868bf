package mysql

import "testing"

func TestSanitizeSQL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"string literal",
			"SELECT * FROM users WHERE name = 'alice'",
			"SELECT * FROM users WHERE name = ?",
		},
		{
			"numeric literal",
			"SELECT * FROM users WHERE id = 12345",
			"SELECT * FROM users WHERE id = ?",
		},
		{
			"hex literal",
			"SELECT * FROM t WHERE flags = 0xFF",
			"SELECT * FROM t WHERE flags = ?",
		},
		{
			"boolean keyword",
			"UPDATE t SET active = TRUE",
			"UPDATE t SET active = ?",
		},
		{
			"limit and offset preserved",
			"SELECT * FROM t LIMIT 10 OFFSET 20",
			"SELECT * FROM t LIMIT 10 OFFSET 20",
		},
		{
			"is null preserved",
			"SELECT * FROM t WHERE a IS NOT NULL",
			"SELECT * FROM t WHERE a IS NOT NULL",
		},
		{
			"backtick identifier preserved",
			"SELECT `order` FROM t WHERE id = 1",
			"SELECT `order` FROM t WHERE id = ?",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := sanitizeSQL(c.in)
			if got != c.want {
				t.Errorf("sanitizeSQL(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
