package importer

// service.go wires the pipeline together: one validation pass producing a
// per-row preview, and one submission turning an error-free preview into
// the staged bulk upsert.
//
// Row validation is embarrassingly parallel in principle; rows share only
// the read-only CodeDomain. It runs sequentially here because the per-row
// work is dominated by the store round trips, and sequential execution
// yields identical results with simpler diagnostics ordering.

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// BatchSummary counts the validation outcomes of one pass.
type BatchSummary struct {
	TotalRows      int `json:"total_rows"`
	ValidRows      int `json:"valid_rows"`
	ErrorRows      int `json:"error_rows"`
	WarningRows    int `json:"warning_rows"`
	PromptWarnings int `json:"prompt_warnings"`
}

// BatchPreview is the result of one validation pass, returned to the caller
// for confirmation before anything is written.
type BatchPreview struct {
	SessionID string         `json:"session_id"`
	Summary   BatchSummary   `json:"summary"`
	Rows      []ValidatedRow `json:"rows"`

	// normalized holds the rows eligible for submission. Session-scoped,
	// discarded with the preview.
	normalized []NormalizedRow
}

// Service runs the import pipeline against a Store.
type Service struct {
	specs     []FieldSpec
	validator *RowValidator
	codes     *CodeReferenceCache
	overlap   *OverlapDetector
	resolver  *UniquenessResolver
	bulk      *BulkUpsertOrchestrator
	agg       ResultAggregator
	log       *slog.Logger
}

// NewService creates a Service over the given store using the capture
// template.
func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	specs := CaptureTemplate()
	log.Debug("import template loaded", "fields", describeSpecs(specs))
	return &Service{
		specs:     specs,
		validator: NewRowValidator(specs),
		codes:     NewCodeReferenceCache(store, log),
		overlap:   NewOverlapDetector(store),
		resolver:  NewUniquenessResolver(store),
		bulk:      NewBulkUpsertOrchestrator(store, log),
		log:       log,
	}
}

// SetAttachConcurrency overrides the orchestrator's attachment fan-out.
func (s *Service) SetAttachConcurrency(n int) {
	s.bulk.SetAttachConcurrency(n)
}

// Template returns the field specs of the capture template.
func (s *Service) Template() []FieldSpec {
	return s.specs
}

// ValidateBatch runs the full validation pass over the uploaded rows and
// returns the per-row preview. Every row, pass or fail, appears in the
// output. The only fatal condition is an unreachable reference store.
func (s *Service) ValidateBatch(ctx context.Context, header []string, records [][]string) (*BatchPreview, error) {
	start := time.Now()

	domain, err := s.codes.LoadCodeDomain(ctx, CodeFields(s.specs))
	if err != nil {
		return nil, err
	}

	preview := &BatchPreview{
		SessionID: uuid.New().String(),
		Rows:      make([]ValidatedRow, 0, len(records)),
	}
	preview.Summary.TotalRows = len(records)

	for i, record := range records {
		raw := NewRawRow(header, record)
		row, fieldErrs := s.validator.Normalize(i, raw, domain)

		var crossErrs map[string]ErrorDescriptor
		var warnings []WarningInfo
		if len(fieldErrs) == 0 {
			crossErrs, warnings = s.crossChecks(ctx, row)
		}

		vr := s.agg.MergeRow(i, row.Fields, []map[string]ErrorDescriptor{fieldErrs, crossErrs}, warnings)
		preview.Rows = append(preview.Rows, vr)

		if vr.Success {
			preview.Summary.ValidRows++
			preview.normalized = append(preview.normalized, row)
		} else {
			preview.Summary.ErrorRows++
		}
		if len(vr.Warnings) > 0 {
			preview.Summary.WarningRows++
		}
		for _, w := range vr.Warnings {
			if w.Prompt {
				preview.Summary.PromptWarnings++
			}
		}
	}

	s.log.Info("validation pass complete",
		"session_id", preview.SessionID,
		"total", preview.Summary.TotalRows,
		"valid", preview.Summary.ValidRows,
		"errors", preview.Summary.ErrorRows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return preview, nil
}

// crossChecks runs the overlap and identity checks for one field-valid row.
// A failed store lookup blocks only this row; the pass continues.
func (s *Service) crossChecks(ctx context.Context, row NormalizedRow) (map[string]ErrorDescriptor, []WarningInfo) {
	errs := make(map[string]ErrorDescriptor)
	var warnings []WarningInfo

	if row.HasDevice() {
		devErrs, devWarns, err := s.overlap.CheckDevice(ctx, row)
		if err != nil {
			s.log.Warn("device history lookup failed", "rownum", row.Rownum, "error", err)
			errs[FieldDeviceID] = lookupFailure("device assignment history", err)
		}
		for field, desc := range devErrs {
			errs[field] = desc
		}
		warnings = append(warnings, devWarns...)
	}

	if row.HasAnimal() {
		isNew, newWarns, err := s.resolver.Resolve(ctx, row)
		if err != nil {
			s.log.Warn("animal identity lookup failed", "rownum", row.Rownum, "error", err)
			errs[FieldAnimalID] = lookupFailure("animal identity", err)
			return errs, warnings
		}
		warnings = append(warnings, newWarns...)

		if !isNew {
			animalWarns, err := s.overlap.CheckAnimal(ctx, row)
			if err != nil {
				s.log.Warn("animal history lookup failed", "rownum", row.Rownum, "error", err)
				errs[FieldAnimalID] = lookupFailure("animal attachment history", err)
				return errs, warnings
			}
			warnings = append(warnings, animalWarns...)
		}
	}

	return errs, warnings
}

// Submit runs the bulk upsert for a previously validated batch.
// The orchestrator only executes when every row validated cleanly, and
// prompt warnings must have been explicitly acknowledged.
func (s *Service) Submit(ctx context.Context, preview *BatchPreview, acknowledged bool) (BulkResult, error) {
	if preview.Summary.ErrorRows > 0 {
		return BulkResult{}, ErrUnresolvedErrors
	}
	if preview.Summary.PromptWarnings > 0 && !acknowledged {
		return BulkResult{}, ErrAcknowledgmentRequired
	}

	s.log.Info("submitting batch",
		"session_id", preview.SessionID, "rows", len(preview.normalized))
	return s.bulk.Run(ctx, preview.normalized)
}
