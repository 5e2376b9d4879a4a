// Package httpapi exposes the management REST API and the outer HTTP
// router.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	app "github.com/runlet-dev/runlet/internal/app"
	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
	"github.com/runlet-dev/runlet/internal/app/storage"
)

// handler bundles the admin endpoints for routes, credentials and logs.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the management REST API. Paths are
// relative; the caller mounts it under its prefix.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/routes", h.routes)
	mux.HandleFunc("/routes/", h.routeResources)
	mux.HandleFunc("/credentials", h.credentials)
	mux.HandleFunc("/credentials/", h.credentialResources)
	mux.HandleFunc("/logs", h.logs)
	return mux
}

func (h *handler) routes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload route.Route
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Routes.Create(r.Context(), payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		rts, err := h.app.Routes.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, rts)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) routeResources(w http.ResponseWriter, r *http.Request) {
	parts := resourceParts(r.URL.Path, "/routes")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	routeID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			rt, err := h.app.Routes.Get(r.Context(), routeID)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, rt)
		case http.MethodPut:
			var payload route.Route
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			payload.ID = routeID
			updated, err := h.app.Routes.Update(r.Context(), payload)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := h.app.Routes.Delete(r.Context(), routeID); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "enable", "disable":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		updated, err := h.app.Routes.SetEnabled(r.Context(), routeID, parts[1] == "enable")
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case "logs":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		records, err := h.app.Recorder.List(r.Context(), routeID, limitParam(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, records)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) credentials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload credential.Credential
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Credentials.Create(r.Context(), payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		creds, err := h.app.Credentials.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, creds)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) credentialResources(w http.ResponseWriter, r *http.Request) {
	parts := resourceParts(r.URL.Path, "/credentials")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	credID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			c, err := h.app.Credentials.Get(r.Context(), credID)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, c)
		case http.MethodPut:
			var payload credential.Credential
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			payload.ID = credID
			updated, err := h.app.Credentials.Update(r.Context(), payload)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := h.app.Credentials.Delete(r.Context(), credID); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "enable", "disable":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		updated, err := h.app.Credentials.SetEnabled(r.Context(), credID, parts[1] == "enable")
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// logs lists recent execution records across all routes, or for one route
// when route_id is given.
func (h *handler) logs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	records, err := h.app.Recorder.List(r.Context(), r.URL.Query().Get("route_id"), limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func resourceParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func limitParam(r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
