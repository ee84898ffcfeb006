package importer

// aggregate.go merges diagnostics from the validation components into one
// ValidatedRow per input row, and per-phase orchestrator outcomes into one
// BulkResult. Aggregation is where the Success invariant is enforced:
// success == no errors, and warnings never affect it.

import "sort"

// ResultAggregator merges per-component diagnostics. It is stateless; the
// zero value is ready to use.
type ResultAggregator struct{}

// MergeRow combines the validator's output with any cross-row diagnostics
// into the row's final validation outcome.
func (ResultAggregator) MergeRow(rownum int, data map[string]any, errSets []map[string]ErrorDescriptor, warnings []WarningInfo) ValidatedRow {
	merged := make(map[string]ErrorDescriptor)
	for _, set := range errSets {
		for field, desc := range set {
			if _, exists := merged[field]; !exists {
				merged[field] = desc
			}
		}
	}

	return ValidatedRow{
		Rownum:   rownum,
		Data:     data,
		Errors:   merged,
		Warnings: warnings,
		Success:  len(merged) == 0,
	}
}

// MergeBulk folds per-phase outcomes into a single batch result. Results
// and errors are ordered by row for stable output regardless of phase
// scheduling.
func (ResultAggregator) MergeBulk(phases ...BulkResult) BulkResult {
	var out BulkResult
	for _, p := range phases {
		out.Results = append(out.Results, p.Results...)
		out.Errors = append(out.Errors, p.Errors...)
	}

	sort.SliceStable(out.Results, func(i, j int) bool {
		return out.Results[i].Rownum < out.Results[j].Rownum
	})
	sort.SliceStable(out.Errors, func(i, j int) bool {
		return out.Errors[i].Rownum < out.Errors[j].Rownum
	})
	return out
}
