package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLogFile(t *testing.T, lines int) string {
	t.Helper()

	var content strings.Builder
	for i := 1; i <= lines; i++ {
		content.WriteString(fmt.Sprintf("log line %d\n", i))
	}

	logFile := filepath.Join(t.TempDir(), "showplan.log")
	if err := os.WriteFile(logFile, []byte(content.String()), 0644); err != nil {
		t.Fatalf("failed to create log file: %v", err)
	}
	return logFile
}

func TestLogsHandler_Recent(t *testing.T) {
	logFile := writeLogFile(t, 100)
	h := NewLogsHandler(log.New(os.Stdout, "", 0), logFile)

	req := httptest.NewRequest(http.MethodGet, "/api/logs?lines=10", nil)
	rec := httptest.NewRecorder()

	h.Recent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp logsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Count != len(resp.Lines) {
		t.Errorf("count %d does not match %d lines", resp.Count, len(resp.Lines))
	}
	if len(resp.Lines) > 10 {
		t.Fatalf("expected at most 10 lines, got %d", len(resp.Lines))
	}

	joined := strings.Join(resp.Lines, "\n")
	if !strings.Contains(joined, "log line 100") {
		t.Errorf("expected tail to contain 'log line 100', got: %s", joined)
	}
	if strings.Contains(joined, "log line 80") {
		t.Errorf("expected tail to exclude 'log line 80', got: %s", joined)
	}
}

func TestLogsHandler_RecentDefaultsLineCount(t *testing.T) {
	logFile := writeLogFile(t, 5)
	h := NewLogsHandler(log.New(os.Stdout, "", 0), logFile)

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	rec := httptest.NewRecorder()

	h.Recent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp logsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	joined := strings.Join(resp.Lines, "\n")
	for i := 1; i <= 5; i++ {
		if !strings.Contains(joined, fmt.Sprintf("log line %d", i)) {
			t.Errorf("expected all lines present, missing 'log line %d'", i)
		}
	}
}

func TestLogsHandler_RecentRejectsBadLineCount(t *testing.T) {
	h := NewLogsHandler(log.New(os.Stdout, "", 0), writeLogFile(t, 3))

	for _, raw := range []string{"abc", "0", "-5"} {
		req := httptest.NewRequest(http.MethodGet, "/api/logs?lines="+raw, nil)
		rec := httptest.NewRecorder()

		h.Recent(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("lines=%q: expected status %d, got %d", raw, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestLogsHandler_RecentNoFileConfigured(t *testing.T) {
	h := NewLogsHandler(log.New(os.Stdout, "", 0), "")

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	rec := httptest.NewRecorder()

	h.Recent(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestLogsHandler_RecentMissingFile(t *testing.T) {
	h := NewLogsHandler(log.New(os.Stdout, "", 0), "/nonexistent/path/log.txt")

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	rec := httptest.NewRecorder()

	h.Recent(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestReadLastNLines(t *testing.T) {
	logFile := writeLogFile(t, 100)

	file, err := os.Open(logFile)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer file.Close()

	lines, err := readLastNLines(file, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lines) < 9 {
		t.Fatalf("expected at least 9 lines, got %d", len(lines))
	}

	// Verify we got recent lines (allowing for trailing newline handling variations)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "log line 100") {
		t.Errorf("expected output to contain 'log line 100', got: %s", joined)
	}
	if !strings.Contains(joined, "log line 92") {
		t.Errorf("expected output to contain 'log line 92', got: %s", joined)
	}
}

func TestReadLastNLines_EmptyFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "empty.log")
	if err := os.WriteFile(logFile, []byte{}, 0644); err != nil {
		t.Fatalf("failed to create empty log file: %v", err)
	}

	file, err := os.Open(logFile)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer file.Close()

	lines, err := readLastNLines(file, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lines) != 0 {
		t.Errorf("expected 0 lines for empty file, got %d", len(lines))
	}
}

func TestReadLastNLines_FewerLinesThanRequested(t *testing.T) {
	logFile := writeLogFile(t, 3)

	file, err := os.Open(logFile)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer file.Close()

	lines, err := readLastNLines(file, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "log line 1") || !strings.Contains(joined, "log line 3") {
		t.Errorf("expected all lines present, got: %v", lines)
	}
}

func TestReadLastNLines_SpansChunks(t *testing.T) {
	// Lines long enough that the tail crosses the 64 KB chunk boundary.
	var content strings.Builder
	padding := strings.Repeat("x", 1024)
	for i := 1; i <= 200; i++ {
		content.WriteString(fmt.Sprintf("line %d %s\n", i, padding))
	}

	logFile := filepath.Join(t.TempDir(), "big.log")
	if err := os.WriteFile(logFile, []byte(content.String()), 0644); err != nil {
		t.Fatalf("failed to create log file: %v", err)
	}

	file, err := os.Open(logFile)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer file.Close()

	lines, err := readLastNLines(file, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "line 200 ") {
		t.Error("expected output to contain the final line")
	}
	if !strings.Contains(joined, "line 105 ") {
		t.Error("expected output to reach back across the chunk boundary")
	}
}
