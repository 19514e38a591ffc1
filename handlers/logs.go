package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
)

const (
	maxLogLines     = 5000
	defaultLogLines = 200
)

type LogsHandler struct {
	logger  *log.Logger
	logFile string // path to the backend log file
}

type logsResponse struct {
	Lines []string `json:"lines"`
	Count int      `json:"count"`
}

func NewLogsHandler(logger *log.Logger, logFile string) *LogsHandler {
	h := &LogsHandler{
		logger:  logger,
		logFile: logFile,
	}
	if h.logger == nil {
		h.logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	return h
}

// Recent returns the tail of the server log file as JSON lines. The
// "lines" query parameter controls how many, capped at maxLogLines.
func (h *LogsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			jsonError(w, fmt.Sprintf("invalid lines parameter: %q", raw), http.StatusBadRequest)
			return
		}
		n = parsed
	}
	if n > maxLogLines {
		n = maxLogLines
	}

	lines, err := h.tailBackendLog(n)
	if err != nil {
		h.logger.Printf("[logs] Failed to read log file: %v", err)
		jsonError(w, fmt.Sprintf("failed to read logs: %v", err), http.StatusInternalServerError)
		return
	}
	if lines == nil {
		lines = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logsResponse{Lines: lines, Count: len(lines)})
}

func (h *LogsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *LogsHandler) tailBackendLog(n int) ([]string, error) {
	if h.logFile == "" {
		return nil, fmt.Errorf("no log file configured")
	}

	logFile, err := os.Open(h.logFile)
	if err != nil {
		return nil, fmt.Errorf("could not open log file %s: %w", h.logFile, err)
	}
	defer logFile.Close()

	return readLastNLines(logFile, n)
}

func readLastNLines(file *os.File, n int) ([]string, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return nil, nil
	}

	// Read file in chunks from the end
	const chunkSize = 64 * 1024
	var lines []string
	var leftover []byte

	position := stat.Size()

	for position > 0 && len(lines) < n {
		readSize := int64(chunkSize)
		if position < readSize {
			readSize = position
		}
		position -= readSize

		chunk := make([]byte, readSize)
		_, err := file.ReadAt(chunk, position)
		if err != nil && err != io.EOF {
			return nil, err
		}

		// Prepend any leftover from previous iteration
		chunk = append(chunk, leftover...)

		// Split into lines
		chunkLines := bytes.Split(chunk, []byte("\n"))

		// The first element might be a partial line
		leftover = chunkLines[0]

		// Add complete lines in reverse order
		for i := len(chunkLines) - 1; i > 0; i-- {
			line := string(bytes.TrimRight(chunkLines[i], "\r"))
			if line != "" || i == len(chunkLines)-1 {
				lines = append([]string{line}, lines...)
			}
			if len(lines) >= n {
				break
			}
		}
	}

	// Add any remaining leftover as the first line
	if len(leftover) > 0 && len(lines) < n {
		lines = append([]string{string(leftover)}, lines...)
	}

	// Trim to exactly n lines
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return lines, nil
}
