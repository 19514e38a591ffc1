package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"showplan/services/backup"
)

// maxBackupUpload caps imported archive size at 100 MB; planner data is a
// few JSON files and a small sqlite db, so anything larger is not ours.
const maxBackupUpload = 100 << 20

// BackupHandler handles backup API endpoints
type BackupHandler struct {
	backupService *backup.Service
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(backupService *backup.Service) *BackupHandler {
	return &BackupHandler{
		backupService: backupService,
	}
}

func backupErrorStatus(err error) int {
	switch {
	case errors.Is(err, backup.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backup.ErrInvalidFilename):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// List returns all available backups, newest first.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backupService.ListBackups()
	if err != nil {
		jsonError(w, "Failed to list backups: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"backups": backups,
	})
}

// Create creates a new manual backup.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	info, err := h.backupService.CreateBackup(backup.BackupTypeManual)
	if err != nil {
		jsonError(w, "Failed to create backup: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"backup":  info,
	})
}

// Download streams a backup file.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	reader, size, err := h.backupService.GetBackupReader(filename)
	if err != nil {
		jsonError(w, err.Error(), backupErrorStatus(err))
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))

	if _, err := io.Copy(w, reader); err != nil {
		log.Printf("[backup] streaming %s: %v", filename, err)
	}
}

// Delete removes a backup file.
func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	if err := h.backupService.DeleteBackup(filename); err != nil {
		jsonError(w, err.Error(), backupErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
	})
}

// Restore restores data files from the backup named in the body. The service
// snapshots current data as a pre_restore backup before touching anything.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Filename) == "" {
		jsonError(w, "filename is required", http.StatusBadRequest)
		return
	}

	if err := h.backupService.RestoreBackup(body.Filename); err != nil {
		status := backupErrorStatus(err)
		if strings.Contains(err.Error(), "checksum") {
			status = http.StatusBadRequest
		}
		jsonError(w, "Failed to restore backup: "+err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Backup restored successfully. Restart the server to apply all changes.",
	})
}

// Import stores an uploaded backup archive so it can be restored later.
// Accepts either a multipart form with a "file" field or a raw zip body.
func (h *BackupHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBackupUpload)

	data, err := readUpload(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := h.backupService.ImportBackup(data)
	if err != nil {
		jsonError(w, "Failed to import backup: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"backup":  info,
	})
}

// readUpload extracts the uploaded archive bytes from a multipart form or the
// raw request body.
func readUpload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("read uploaded file: %w", err)
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(r.Body)
}
