package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func writeDataFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunEvaluatesSample(t *testing.T) {
	dir := t.TempDir()
	cfg := runConfig{
		inputFile:  writeDataFile(t, dir, "in.txt", "1\n2\n3\n"),
		outputFile: writeDataFile(t, dir, "out.txt", "10\n20\n30\n"),
		sample:     []float64{2},
	}

	got, err := run(cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got != "20" {
		t.Errorf("run = %q, want %q", got, "20")
	}
}

func TestRunRecordsEvaluation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "eval.db")
	cfg := runConfig{
		inputFile:  writeDataFile(t, dir, "spring.txt", "1\n2\n3\n"),
		outputFile: writeDataFile(t, dir, "out.txt", "10\n20\n30\n"),
		sample:     []float64{3},
		dbPath:     dbPath,
	}

	if _, err := run(cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var model, sample, output string
	row := conn.QueryRow("SELECT model, sample, output FROM evaluations")
	if err := row.Scan(&model, &sample, &output); err != nil {
		t.Fatalf("no evaluation recorded: %v", err)
	}
	if model != "spring" {
		t.Errorf("model = %q, want %q derived from the input file name", model, "spring")
	}
	if sample != "3" || output != "30" {
		t.Errorf("recorded %q -> %q, want 3 -> 30", sample, output)
	}
}

func TestParseSample(t *testing.T) {
	sample, err := parseSample("1.5, 2.5,3")
	if err != nil {
		t.Fatalf("parseSample failed: %v", err)
	}
	if len(sample) != 3 || sample[0] != 1.5 || sample[1] != 2.5 || sample[2] != 3 {
		t.Errorf("parseSample = %v", sample)
	}

	if _, err := parseSample("1,abc"); err == nil {
		t.Error("expected error for non-numeric sample value")
	}
}
