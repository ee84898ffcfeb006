package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldtrack/collarimport/internal/importer"
	"github.com/fieldtrack/collarimport/internal/logging"
)

// importRequest is the payload for both preview and confirm: the template
// header plus the data rows, already aligned by the upstream header mapper.
type importRequest struct {
	Header       []string   `json:"header"`
	Rows         [][]string `json:"rows"`
	Acknowledged bool       `json:"acknowledged"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTemplate returns the field specs of the capture template so the
// client can render column hints and required markers.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"fields": s.service.Template(),
	})
}

// handleCodes returns one code domain's allowed values for client-side
// dropdowns.
func (s *Server) handleCodes(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	values, err := s.codes.FetchCodeDescriptions(r.Context(), domain)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", importer.ErrReferenceStore, err), http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"domain": domain,
		"values": values,
	})
}

// handlePreview runs the validation pass and returns per-row diagnostics
// without writing anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeImportRequest(w, r)
	if !ok {
		return
	}

	preview, err := s.service.ValidateBatch(r.Context(), req.Header, req.Rows)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

// handleConfirm re-validates the submitted rows and, when the batch is
// clean and any prompt warnings are acknowledged, runs the staged upsert.
// The BulkResult is serialized verbatim.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeImportRequest(w, r)
	if !ok {
		return
	}

	// Reference codes may have changed since the preview, so the batch is
	// validated again against fresh session state.
	preview, err := s.service.ValidateBatch(r.Context(), req.Header, req.Rows)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := r.Context()
	if s.cfg != nil && s.cfg.Import.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Import.Timeout)
		defer cancel()
	}

	result, err := s.service.Submit(ctx, preview, req.Acknowledged)
	if err != nil {
		if errors.Is(err, importer.ErrUnresolvedErrors) {
			// Return the preview alongside so the client can highlight
			// exactly which cells need correction.
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":   importer.MapError(err),
				"preview": preview,
			})
			return
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}

	logging.FromContext(r.Context()).Info("import confirmed",
		"session_id", preview.SessionID,
		"written", len(result.Results),
		"failed", len(result.Errors),
	)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) decodeImportRequest(w http.ResponseWriter, r *http.Request) (importRequest, bool) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return req, false
	}
	if len(req.Header) == 0 {
		s.respondError(w, r, errors.New("missing header"), http.StatusBadRequest)
		return req, false
	}
	if len(req.Rows) == 0 {
		s.respondError(w, r, errors.New("no data rows"), http.StatusBadRequest)
		return req, false
	}
	if max := s.maxRows(); len(req.Rows) > max {
		s.respondError(w, r, fmt.Errorf("batch exceeds %d rows", max), http.StatusRequestEntityTooLarge)
		return req, false
	}
	return req, true
}

func (s *Server) maxRows() int {
	if s.cfg != nil && s.cfg.Import.MaxRows > 0 {
		return s.cfg.Import.MaxRows
	}
	return 5000
}

// statusFor maps pipeline failures to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, importer.ErrReferenceStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, importer.ErrUnresolvedErrors):
		return http.StatusUnprocessableEntity
	case errors.Is(err, importer.ErrAcknowledgmentRequired):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
