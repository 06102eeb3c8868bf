package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
targets:
  primary:
    host: localhost
    port: 3307
    database: testdb
    username: testuser
    password: testpass

pool:
  min_connections: 2
  max_connections: 20
  idle_timeout: 5m

api:
  bind: 0.0.0.0
  port: 9090
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	target, ok := cfg.Targets["primary"]
	if !ok {
		t.Fatal("primary target not found")
	}
	if target.Host != "localhost" || target.Port != 3307 {
		t.Errorf("unexpected target: %+v", target)
	}
	if cfg.Pool.MaxConnections != 20 {
		t.Errorf("expected max connections 20, got %d", cfg.Pool.MaxConnections)
	}
	if cfg.Pool.IdleTimeout != 5*time.Minute {
		t.Errorf("expected idle timeout 5m, got %v", cfg.Pool.IdleTimeout)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("expected api port 9090, got %d", cfg.API.Port)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("MYSQLWIRE_TEST_PASSWORD", "secret123")
	defer os.Unsetenv("MYSQLWIRE_TEST_PASSWORD")

	yaml := `
targets:
  primary:
    host: localhost
    port: 3306
    database: testdb
    username: user
    password: ${MYSQLWIRE_TEST_PASSWORD}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Targets["primary"].Password != "secret123" {
		t.Errorf("expected substituted password, got %q", cfg.Targets["primary"].Password)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	yaml := `
targets:
  primary:
    host: localhost
    port: 3306
    database: testdb
    username: user
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pool.MinConnections == 0 || cfg.Pool.MaxConnections == 0 {
		t.Errorf("expected pool defaults to be applied, got %+v", cfg.Pool)
	}
	if cfg.API.Port == 0 {
		t.Errorf("expected api.port default to be applied")
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing host",
			yaml: `
targets:
  t1:
    port: 3306
    database: db
    username: user
`,
		},
		{
			name: "missing database",
			yaml: `
targets:
  t1:
    host: localhost
    port: 3306
    username: user
`,
		},
		{
			name: "unsupported tls mode",
			yaml: `
targets:
  t1:
    host: localhost
    port: 3306
    database: db
    username: user
    tls: mutual
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
