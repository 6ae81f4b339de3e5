package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/finance"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/quote"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("roofquote %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestSeedFinanceAndQuoteCommands(t *testing.T) {
	dir := t.TempDir()
	dbFile := filepath.Join(dir, "cli.db")

	out := runCLI(t, "--db", dbFile, "seed")
	if !strings.Contains(out, "796 inserted") {
		t.Fatalf("unexpected seed output: %q", out)
	}
	out = runCLI(t, "--db", dbFile, "seed")
	if !strings.Contains(out, "0 inserted, 0 updated") {
		t.Fatalf("second seed should be a no-op, got %q", out)
	}

	out = runCLI(t, "--db", dbFile, "finance", "100000")
	var fin finance.Result
	if err := json.Unmarshal([]byte(out), &fin); err != nil {
		t.Fatalf("decode finance output: %v", err)
	}
	if len(fin.Options) != 2 {
		t.Fatalf("options = %d, want 2", len(fin.Options))
	}

	job := filepath.Join(dir, "job.json")
	writeFile(t, job, `{
		"job": {"county": "Palm Beach"},
		"sections": [
			{"id": "main", "kind": "SLOPED", "planAreaSqFt": 1500, "risePer12": 5},
			{"id": "lanai", "kind": "FLAT", "planAreaSqFt": 300}
		]
	}`)
	out = runCLI(t, "--db", dbFile, "quote", job)
	var res quote.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode quote output: %v", err)
	}
	if len(res.Sections) != 2 || !res.Total.IsPositive() {
		t.Fatalf("unexpected quote: %+v", res)
	}
	if res.Job.HVHZ {
		t.Fatalf("Palm Beach is outside the HVHZ")
	}
}

func TestReadQuoteFileRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, path, `{"sections": [`)

	_, err := readQuoteFile(path)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
