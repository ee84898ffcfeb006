package importer

import "testing"

func TestMergeRow_Success(t *testing.T) {
	var agg ResultAggregator

	vr := agg.MergeRow(4, map[string]any{FieldSpecies: "Moose"}, nil, nil)
	if !vr.Success {
		t.Error("error-free row not marked successful")
	}
	if vr.Rownum != 4 {
		t.Errorf("Rownum = %d, want 4", vr.Rownum)
	}
	if len(vr.Errors) != 0 {
		t.Errorf("Errors = %v, want empty", vr.Errors)
	}
}

func TestMergeRow_WarningsDoNotAffectSuccess(t *testing.T) {
	var agg ResultAggregator

	warns := []WarningInfo{
		{Message: "will create a new animal", Prompt: true},
		{Message: "previous deployments"},
	}
	vr := agg.MergeRow(0, nil, nil, warns)
	if !vr.Success {
		t.Error("warnings flipped Success to false")
	}
	if len(vr.Warnings) != 2 {
		t.Errorf("Warnings = %v, want both preserved", vr.Warnings)
	}
}

func TestMergeRow_CombinesErrorSets(t *testing.T) {
	var agg ResultAggregator

	fieldErrs := map[string]ErrorDescriptor{
		FieldSpecies: {Description: "bad code"},
	}
	crossErrs := map[string]ErrorDescriptor{
		FieldDeviceID: {Description: "overlap"},
		// Same field from a later set must not clobber the first.
		FieldSpecies: {Description: "other"},
	}
	vr := agg.MergeRow(0, nil, []map[string]ErrorDescriptor{fieldErrs, crossErrs}, nil)

	if vr.Success {
		t.Error("row with errors marked successful")
	}
	if len(vr.Errors) != 2 {
		t.Fatalf("Errors = %v, want 2 fields", vr.Errors)
	}
	if vr.Errors[FieldSpecies].Description != "bad code" {
		t.Errorf("species error = %q, want first set to win", vr.Errors[FieldSpecies].Description)
	}
}

func TestMergeRow_NilSetsTolerated(t *testing.T) {
	var agg ResultAggregator
	vr := agg.MergeRow(0, nil, []map[string]ErrorDescriptor{nil, nil}, nil)
	if !vr.Success {
		t.Error("nil error sets produced a failed row")
	}
}

func TestMergeBulk_OrdersByRow(t *testing.T) {
	var agg ResultAggregator

	devices := BulkResult{
		Results: []UpsertRecord{{Rownum: 2, Entity: "device"}, {Rownum: 0, Entity: "device"}},
	}
	attachments := BulkResult{
		Results: []UpsertRecord{{Rownum: 1, Entity: "attachment"}},
		Errors:  []RowError{{Rownum: 2, Error: "x"}, {Rownum: 0, Error: "y"}},
	}

	out := agg.MergeBulk(devices, attachments)
	for i := 1; i < len(out.Results); i++ {
		if out.Results[i].Rownum < out.Results[i-1].Rownum {
			t.Fatalf("results unordered: %v", out.Results)
		}
	}
	for i := 1; i < len(out.Errors); i++ {
		if out.Errors[i].Rownum < out.Errors[i-1].Rownum {
			t.Fatalf("errors unordered: %v", out.Errors)
		}
	}
	if len(out.Results) != 3 || len(out.Errors) != 2 {
		t.Errorf("merged %d results / %d errors, want 3 / 2", len(out.Results), len(out.Errors))
	}
}
