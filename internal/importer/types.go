// Package importer provides the business logic for wildlife capture and
// collar-deployment imports. This package has no HTTP dependencies and can
// be driven by any frontend.
//
// The import pipeline has two halves:
//
//  1. Validation: each raw row is checked against the template field specs
//     and the session's code domains, then cross-checked for assignment
//     overlaps and animal identity. The result is one ValidatedRow per
//     input row, suitable for a preview UI.
//  2. Submission: rows that validated cleanly flow through the three-phase
//     bulk upsert (device, animal, attachment) and come back as a single
//     BulkResult.
package importer

import (
	"context"
	"strconv"
	"time"
)

// FieldKind declares which validation policy applies to a template column.
type FieldKind int

const (
	// FieldText is free text, unchecked.
	FieldText FieldKind = iota
	// FieldCode restricts values to a reference code domain.
	FieldCode
	// FieldDate must parse to a calendar date.
	FieldDate
	// FieldNumber must parse to a decimal number.
	FieldNumber
	// FieldBool must equal one of exactly two canonical tokens (true/false).
	FieldBool
)

// String returns the template-facing name of the kind.
func (k FieldKind) String() string {
	switch k {
	case FieldCode:
		return "code"
	case FieldDate:
		return "date"
	case FieldNumber:
		return "number"
	case FieldBool:
		return "boolean"
	default:
		return "text"
	}
}

// MarshalJSON serializes the kind as its template-facing name.
func (k FieldKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// FieldSpec defines the validation policy for a single template column.
type FieldSpec struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Domain   string    `json:"domain,omitempty"` // code domain key; defaults to Name
	Required bool      `json:"required"`
}

// DomainKey returns the code domain this field validates against.
func (f FieldSpec) DomainKey() string {
	if f.Domain != "" {
		return f.Domain
	}
	return f.Name
}

// RawRow is a single uploaded row: column name -> raw cell value, with the
// original header order preserved for denormalized error reporting.
type RawRow struct {
	Header []string
	Cells  map[string]string
}

// NewRawRow pairs a header with one record. Records shorter than the header
// leave the trailing cells absent; extra cells are dropped.
func NewRawRow(header []string, record []string) RawRow {
	cells := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(record) {
			cells[name] = record[i]
		}
	}
	return RawRow{Header: header, Cells: cells}
}

// Cell returns the cleaned cell value for a column, or "" when absent.
func (r RawRow) Cell(name string) string {
	return CleanCell(r.Cells[name])
}

// Snapshot returns a copy of the raw cells for embedding in diagnostics.
func (r RawRow) Snapshot() map[string]string {
	out := make(map[string]string, len(r.Cells))
	for k, v := range r.Cells {
		out[k] = v
	}
	return out
}

// RowKind discriminates what a row describes. Rows are classified exactly
// once, at parse time, by which identifying fields are present.
type RowKind int

const (
	RowUnclassified RowKind = iota
	RowDevice               // device metadata only
	RowAnimal               // animal metadata only
	RowCombined             // capture + deployment in one row
	RowTelemetry            // radio frequency record for a device
)

// String returns the wire name of the kind.
func (k RowKind) String() string {
	switch k {
	case RowDevice:
		return "device"
	case RowAnimal:
		return "animal"
	case RowCombined:
		return "combined"
	case RowTelemetry:
		return "telemetry"
	default:
		return "unclassified"
	}
}

// ErrorDescriptor describes one field-level validation failure: what went
// wrong, how to fix it, and (for code fields) the full allowed list.
type ErrorDescriptor struct {
	Description string   `json:"description"`
	Help        string   `json:"help"`
	ValidValues []string `json:"valid_values,omitempty"`
}

// WarningInfo is a non-blocking diagnostic. Prompt warnings require explicit
// user acknowledgment before a submission is treated as final.
type WarningInfo struct {
	Message string `json:"message"`
	Prompt  bool   `json:"prompt"`
}

// ValidatedRow is the per-row outcome of the validation pass.
// Invariant: Success is true exactly when Errors is empty; warnings never
// affect Success.
type ValidatedRow struct {
	Rownum   int                        `json:"rownum"`
	Data     map[string]any             `json:"data"`
	Errors   map[string]ErrorDescriptor `json:"errors"`
	Warnings []WarningInfo              `json:"warnings"`
	Success  bool                       `json:"success"`
}

// AssignmentInterval is a time-bounded device-animal attachment. A nil End
// means the attachment is ongoing.
// Invariant: when End is present, *End >= Start.
type AssignmentInterval struct {
	SubjectID string     `json:"subject_id"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end"`
}

// Overlaps reports whether two intervals intersect under half-open
// semantics: adjacent intervals that share only a boundary point do not
// overlap. A nil End is treated as +infinity.
func (a AssignmentInterval) Overlaps(b AssignmentInterval) bool {
	if b.End != nil && !a.Start.Before(*b.End) {
		return false
	}
	if a.End != nil && !b.Start.Before(*a.End) {
		return false
	}
	return true
}

// NormalizedRow is a row that passed field validation: typed values keyed by
// column name, plus the original raw row for diagnostics.
type NormalizedRow struct {
	Rownum int
	Kind   RowKind
	Fields map[string]any
	Raw    RawRow
}

// Text returns the normalized string value of a field, or "".
func (r NormalizedRow) Text(field string) string {
	s, _ := r.Fields[field].(string)
	return s
}

// Date returns the normalized date value of a field.
func (r NormalizedRow) Date(field string) (time.Time, bool) {
	t, ok := r.Fields[field].(time.Time)
	return t, ok
}

// Number returns the normalized numeric value of a field.
func (r NormalizedRow) Number(field string) (float64, bool) {
	f, ok := r.Fields[field].(float64)
	return f, ok
}

// Bool returns the normalized boolean value of a field.
func (r NormalizedRow) Bool(field string) (bool, bool) {
	b, ok := r.Fields[field].(bool)
	return b, ok
}

// HasDevice reports whether the row carries a device identifier.
func (r NormalizedRow) HasDevice() bool {
	return r.Text(FieldDeviceID) != ""
}

// HasAnimal reports whether the row carries animal data.
func (r NormalizedRow) HasAnimal() bool {
	return r.Text(FieldSpecies) != "" || r.AnimalKey() != ""
}

// DeviceKey is the natural key devices are matched on across upsert phases.
func (r NormalizedRow) DeviceKey() string {
	if !r.HasDevice() {
		return ""
	}
	return r.Text(FieldDeviceID) + "|" + r.Text(FieldDeviceMake)
}

// AnimalKey is the natural key animals are matched on across upsert phases:
// the row's identity fields joined in a fixed order. Empty when the row
// carries no identity field at all.
func (r NormalizedRow) AnimalKey() string {
	wlh := r.Text(FieldWLHID)
	aid := r.Text(FieldAnimalID)
	ear := r.Text(FieldEarTagID)
	if wlh == "" && aid == "" && ear == "" {
		return ""
	}
	return wlh + "|" + aid + "|" + ear
}

// AnimalMatchKey is the key attachments match animals on. It is the natural
// identity key when the row has one; a row with no identity field at all
// gets a per-row surrogate, since each such row creates its own animal and
// must never share a match slot with another untagged row. Surrogates can
// never collide with natural keys (natural keys always contain "|").
func (r NormalizedRow) AnimalMatchKey() string {
	if key := r.AnimalKey(); key != "" {
		return key
	}
	return "row:" + strconv.Itoa(r.Rownum)
}

// CandidateWindow builds the interval the row proposes to occupy, used for
// conflict detection: [capture_date ?? now, retrieval_date ?? mortality_date
// ?? open).
func (r NormalizedRow) CandidateWindow(now time.Time) AssignmentInterval {
	ival := AssignmentInterval{Start: now}
	if t, ok := r.Date(FieldCaptureDate); ok {
		ival.Start = t
	}
	if t, ok := r.Date(FieldRetrievalDate); ok {
		ival.End = &t
	} else if t, ok := r.Date(FieldMortalityDate); ok {
		ival.End = &t
	}
	return ival
}

// AttachmentWindow builds the interval written for the attachment itself:
// start = capture date or orchestration time; end = mortality date, else
// device retrieval date, else open.
func (r NormalizedRow) AttachmentWindow(now time.Time) AssignmentInterval {
	ival := AssignmentInterval{Start: now}
	if t, ok := r.Date(FieldCaptureDate); ok {
		ival.Start = t
	}
	if t, ok := r.Date(FieldMortalityDate); ok {
		ival.End = &t
	} else if t, ok := r.Date(FieldRetrievalDate); ok {
		ival.End = &t
	}
	return ival
}

// RowError is one failed row in a bulk outcome. It always carries the
// 0-based row index plus a denormalized copy of the offending row, never an
// opaque identifier alone.
type RowError struct {
	Rownum int               `json:"rownum"`
	Row    map[string]string `json:"row"`
	Error  string            `json:"error"`
}

// UpsertRecord is one successfully written entity.
type UpsertRecord struct {
	Rownum int    `json:"rownum"`
	Entity string `json:"entity"` // "device", "animal" or "attachment"
	Key    string `json:"key"`    // natural key, matches NormalizedRow.DeviceKey/AnimalKey
	ID     string `json:"id"`     // database identifier
}

// BulkResult is the outcome of an orchestrator run (or of a single phase).
// Empty Errors signals full success. The HTTP layer serializes it verbatim.
type BulkResult struct {
	Results []UpsertRecord `json:"results"`
	Errors  []RowError     `json:"errors"`
}

// CodeSource supplies reference code descriptions per domain key.
type CodeSource interface {
	FetchCodeDescriptions(ctx context.Context, domainKey string) ([]string, error)
}

// History supplies historical device-animal assignment intervals.
type History interface {
	FetchDeviceHistory(ctx context.Context, deviceID string) ([]AssignmentInterval, error)
	FetchAnimalHistory(ctx context.Context, animalID string) ([]AssignmentInterval, error)
}

// Identity answers whether a row's animal identity is unknown to the store.
type Identity interface {
	IsNewAnimal(ctx context.Context, row NormalizedRow) (bool, error)
}

// Warehouse performs the staged writes. The returned error is an
// infrastructure failure; row-level rejections ride inside BulkResult.Errors.
type Warehouse interface {
	UpsertDevices(ctx context.Context, rows []NormalizedRow) (BulkResult, error)
	UpsertAnimals(ctx context.Context, rows []NormalizedRow) (BulkResult, error)
	LinkDeviceAnimal(ctx context.Context, deviceID, animalID string, ival AssignmentInterval) (UpsertRecord, error)
}

// Store is everything the import pipeline needs from persistence.
type Store interface {
	CodeSource
	History
	Identity
	Warehouse
}
