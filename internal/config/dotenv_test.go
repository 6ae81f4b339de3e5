package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDotEnv(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	return path
}

func TestLoadDotEnv_LoadsValuesAndIgnoresNoise(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("PORT", "")
	t.Setenv("MEASUREMENT_BASE_URL", "")

	path := writeDotEnv(t, `
# local overrides

DB_PATH=./roof.db
export PORT=9090
MEASUREMENT_BASE_URL="https://measure.example.com"
`)

	loaded, err := loadDotEnv(path)
	if err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if loaded != 3 {
		t.Fatalf("loaded = %d, want 3", loaded)
	}

	if got := os.Getenv("DB_PATH"); got != "./roof.db" {
		t.Fatalf("DB_PATH=%q, want %q", got, "./roof.db")
	}
	if got := os.Getenv("PORT"); got != "9090" {
		t.Fatalf("PORT=%q, want %q", got, "9090")
	}
	if got := os.Getenv("MEASUREMENT_BASE_URL"); got != "https://measure.example.com" {
		t.Fatalf("MEASUREMENT_BASE_URL=%q", got)
	}
}

func TestLoadDotEnv_DoesNotOverwriteExistingEnv(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "already")

	loaded, err := loadDotEnv(writeDotEnv(t, "ADMIN_TOKEN=fromfile\n"))
	if err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if loaded != 0 {
		t.Fatalf("loaded = %d, want 0", loaded)
	}
	if got := os.Getenv("ADMIN_TOKEN"); got != "already" {
		t.Fatalf("ADMIN_TOKEN=%q, want %q", got, "already")
	}
}

func TestLoadDotEnv_MissingFileIsNotAnError(t *testing.T) {
	loaded, err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil || loaded != 0 {
		t.Fatalf("loadDotEnv(missing) = %d, %v; want 0, nil", loaded, err)
	}
}

func TestParseDotEnvLine(t *testing.T) {
	cases := []struct {
		line      string
		key, want string
		ok        bool
	}{
		{line: "Q='hello world'", key: "Q", want: "hello world", ok: true},
		{line: `Q="a # not a comment"`, key: "Q", want: "a # not a comment", ok: true},
		{line: "Q=plain # trailing", key: "Q", want: "plain", ok: true},
		{line: "Q=", key: "Q", want: "", ok: true},
		{line: "# comment", ok: false},
		{line: "=nokey", ok: false},
		{line: "noequals", ok: false},
	}
	for _, tc := range cases {
		k, v, ok := parseDotEnvLine(tc.line)
		if ok != tc.ok {
			t.Fatalf("parseDotEnvLine(%q) ok = %v, want %v", tc.line, ok, tc.ok)
		}
		if ok && (k != tc.key || v != tc.want) {
			t.Fatalf("parseDotEnvLine(%q) = %q=%q, want %q=%q", tc.line, k, v, tc.key, tc.want)
		}
	}
}
