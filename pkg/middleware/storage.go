package middleware

import (
	"errors"
	"io"
	"net/http"

	"github.com/jeswr/lws-go/pkg/access"
	"github.com/jeswr/lws-go/pkg/storage"
)

// serveStorage dispatches a validated request to the storage backend. The
// core surfaces the backend's not-found and conflict outcomes unchanged.
func (s *ResourceServer) serveStorage(w http.ResponseWriter, r *http.Request) {
	validated, ok := GetValidatedRequest(r.Context())
	if !ok {
		// Protect always runs first; reaching here without a validated
		// request is a routing bug.
		http.Error(w, "request was not validated", http.StatusInternalServerError)
		return
	}

	path := validated.ResourcePath
	switch validated.Action {
	case access.ActionRead:
		body, err := s.backend.Read(r.Context(), path)
		if err != nil {
			s.storageError(w, err)
			return
		}
		defer body.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodHead || r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = io.Copy(w, body)

	case access.ActionUpdate:
		if err := s.backend.Write(r.Context(), path, r.Body); err != nil {
			s.storageError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case access.ActionCreate:
		if err := s.backend.Create(r.Context(), path, r.Body); err != nil {
			s.storageError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)

	case access.ActionAppend:
		if err := s.backend.Append(r.Context(), path, r.Body); err != nil {
			s.storageError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case access.ActionDelete:
		if err := s.backend.Delete(r.Context(), path); err != nil {
			s.storageError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *ResourceServer) storageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "resource not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrExists):
		http.Error(w, "resource already exists", http.StatusConflict)
	default:
		s.logger.Error().Err(err).Msg("storage backend failure")
		http.Error(w, "storage failure", http.StatusInternalServerError)
	}
}
