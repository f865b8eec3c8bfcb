package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dshills/settingsd/internal/config"
	"github.com/dshills/settingsd/internal/config/layer"
	"github.com/dshills/settingsd/internal/config/loader"
)

const (
	msgInvalidType    = "Invalid settings type"
	msgInvalidPayload = "Invalid settings payload"
	msgNotFound       = "Setting not found"
	msgMissingKey     = "Missing key"
)

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type pathsResponse struct {
	Paths []string `json:"paths"`
}

type valueResponse struct {
	Key      string         `json:"key"`
	Value    any            `json:"value"`
	Location layer.Location `json:"location,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	h, err := s.settings.Hierarchy(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	loc, ok := writableLevel(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	doc, err := loader.ParseJSON("request body", body)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	if err := s.settings.Write(r.Context(), loc, layer.Document(doc)); err != nil {
		if errors.Is(err, config.ErrNotWritable) {
			writeError(w, http.StatusBadRequest, msgInvalidType)
			return
		}
		s.serverError(w, r, err)
		return
	}

	s.refreshWatch(r)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleDeleteSettings(w http.ResponseWriter, r *http.Request) {
	loc, ok := writableLevel(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidType)
		return
	}

	if err := s.settings.Delete(r.Context(), loc); err != nil {
		if errors.Is(err, config.ErrNotWritable) {
			writeError(w, http.StatusBadRequest, msgInvalidType)
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleWatchPaths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pathsResponse{Paths: s.settings.Paths().All()})
}

func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, msgMissingKey)
		return
	}

	h, err := s.settings.Hierarchy(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	val, loc, found := h.Lookup(key)
	if !found {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Key: key, Value: val, Location: loc})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// refreshWatch pushes the recomputed path set to the watcher. A failure
// here does not undo the write, so it is only logged.
func (s *Server) refreshWatch(r *http.Request) {
	if s.watcher == nil {
		return
	}
	if err := s.watcher.UpdatePaths(s.settings.Paths().All()); err != nil {
		s.requestLogger(r).Warn("updating watch paths: %v", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.requestLogger(r).Error("%s %s: %v", r.Method, r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// writableLevel parses the {level} path value. Only user, project and
// local are accepted.
func writableLevel(r *http.Request) (layer.Location, bool) {
	name := r.PathValue("level")
	for _, loc := range layer.WritableLocations() {
		if loc.String() == name {
			return loc, true
		}
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
