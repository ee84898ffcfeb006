package importer

// validate.go performs per-row field validation against the template specs.
//
// Each field follows one of three policies by declared kind:
//   - code fields must exactly match a member of the session's CodeDomain
//   - typed fields (date/number/boolean) must parse unambiguously
//   - free text is unchecked
//
// Absent or empty cells are dropped before checking: a missing optional
// field is not an error. A row missing its structural identity (species or
// device ID) gets a single missing_data error and skips every downstream
// cross-row check.

import (
	"fmt"
	"strings"
)

// RowValidator validates raw rows against a template's field specs.
type RowValidator struct {
	specs []FieldSpec
}

// NewRowValidator creates a validator for the given template.
func NewRowValidator(specs []FieldSpec) *RowValidator {
	return &RowValidator{specs: specs}
}

// ValidateRow checks one raw row. It returns the normalized field values
// and a field -> ErrorDescriptor mapping; the row proceeds to cross-row
// checks only when that mapping is empty.
func (v *RowValidator) ValidateRow(row RawRow, domain CodeDomain) (map[string]any, map[string]ErrorDescriptor) {
	errs := make(map[string]ErrorDescriptor)

	// Structural identity first: without a species and a device identifier
	// the row cannot be matched to anything, so downstream checks would
	// only pile noise onto an unusable row.
	if row.Cell(FieldSpecies) == "" || row.Cell(FieldDeviceID) == "" {
		errs[MissingDataKey] = ErrorDescriptor{
			Description: "Row is missing required identifying data",
			Help:        fmt.Sprintf("Provide both %q and %q", FieldSpecies, FieldDeviceID),
		}
		return nil, errs
	}

	data := make(map[string]any, len(v.specs))
	for _, spec := range v.specs {
		raw := row.Cell(spec.Name)
		if raw == "" {
			continue
		}

		switch spec.Kind {
		case FieldCode:
			if !domain.Has(spec.DomainKey(), raw) {
				errs[spec.Name] = ErrorDescriptor{
					Description: fmt.Sprintf("%q is not a known %s code", raw, spec.Name),
					Help:        fmt.Sprintf("Use one of the allowed values for %s", spec.Name),
					ValidValues: domain.Values(spec.DomainKey()),
				}
				continue
			}
			data[spec.Name] = raw
		case FieldDate:
			d := ToPgDate(raw)
			if !d.Valid {
				errs[spec.Name] = ErrorDescriptor{
					Description: fmt.Sprintf("%q is not a valid date", raw),
					Help:        "Use YYYY-MM-DD",
				}
				continue
			}
			data[spec.Name] = d.Time
		case FieldNumber:
			n := ToPgNumeric(raw)
			if !n.Valid {
				errs[spec.Name] = ErrorDescriptor{
					Description: fmt.Sprintf("%q is not a valid number", raw),
					Help:        "Use a plain decimal number",
				}
				continue
			}
			f, err := n.Float64Value()
			if err != nil || !f.Valid {
				errs[spec.Name] = ErrorDescriptor{
					Description: fmt.Sprintf("%q is out of numeric range", raw),
					Help:        "Use a plain decimal number",
				}
				continue
			}
			data[spec.Name] = f.Float64
		case FieldBool:
			b := ToPgBool(raw)
			if !b.Valid {
				errs[spec.Name] = ErrorDescriptor{
					Description: fmt.Sprintf("%q is not a valid boolean", raw),
					Help:        "Use TRUE or FALSE",
				}
				continue
			}
			data[spec.Name] = b.Bool
		default:
			data[spec.Name] = raw
		}
	}

	return data, errs
}

// Normalize validates and classifies one raw row. The returned NormalizedRow
// is only meaningful when the error mapping is empty.
func (v *RowValidator) Normalize(rownum int, row RawRow, domain CodeDomain) (NormalizedRow, map[string]ErrorDescriptor) {
	data, errs := v.ValidateRow(row, domain)
	return NormalizedRow{
		Rownum: rownum,
		Kind:   Classify(row),
		Fields: data,
		Raw:    row,
	}, errs
}

// RequiredColumns lists the template's required column names, for template
// downloads and error help text.
func (v *RowValidator) RequiredColumns() []string {
	var cols []string
	for _, spec := range v.specs {
		if spec.Required {
			cols = append(cols, spec.Name)
		}
	}
	return cols
}

// describeSpecs renders a short template description for logging.
func describeSpecs(specs []FieldSpec) string {
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = s.Name + ":" + s.Kind.String()
	}
	return strings.Join(parts, ",")
}
