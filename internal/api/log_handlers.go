package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/fuomag9/checkpulse/internal/logstore"
)

// LogReader is the read side of the log store
type LogReader interface {
	List(includeArchived bool) ([]string, error)
	Read(id string) (string, error)
	Decompress(archiveID string) (string, error)
}

// LogDetails holds the parsed lines of a live log or an archive
type LogDetails struct {
	ID       string            `json:"id"`
	Archived bool              `json:"archived"`
	Entries  []json.RawMessage `json:"entries"`
	Corrupt  int               `json:"corrupt,omitempty"`
}

// HandleGetLogs lists live logs, and archives when archived=true
func HandleGetLogs(logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

		ids, err := logs.List(includeArchived)
		if err != nil {
			log.Errorf("Failed to list logs: %v", err)
			http.Error(w, "Failed to fetch logs", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"logs": ids})
	}
}

// HandleGetLog returns the entries of a live log, falling back to an archive
// with the same id
func HandleGetLog(logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		details := LogDetails{ID: id}

		content, err := logs.Read(id)
		if errors.Is(err, logstore.ErrNotFound) {
			details.Archived = true
			content, err = logs.Decompress(id)
		}
		if err != nil {
			if errors.Is(err, logstore.ErrNotFound) || errors.Is(err, logstore.ErrInvalidID) {
				http.Error(w, "Log not found", http.StatusNotFound)
				return
			}
			log.Errorf("Failed to read log %s: %v", id, err)
			http.Error(w, "Failed to fetch log", http.StatusInternalServerError)
			return
		}

		details.Entries = make([]json.RawMessage, 0)
		for _, line := range strings.Split(content, "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			if !json.Valid([]byte(line)) {
				details.Corrupt++
				continue
			}
			details.Entries = append(details.Entries, json.RawMessage(line))
		}

		writeJSON(w, http.StatusOK, details)
	}
}
