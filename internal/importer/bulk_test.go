package importer

import (
	"context"
	"strings"
	"testing"
)

// bulkRow builds a normalized row directly, bypassing the validator, so
// phase routing can be tested with partial rows.
func bulkRow(rownum int, fields map[string]any) NormalizedRow {
	return NormalizedRow{
		Rownum: rownum,
		Fields: fields,
		Raw:    RawRow{Cells: map[string]string{}},
	}
}

func combinedRow(rownum int, deviceID, wlhID string) NormalizedRow {
	return bulkRow(rownum, map[string]any{
		FieldSpecies:    "Moose",
		FieldDeviceID:   deviceID,
		FieldDeviceMake: "Vectronic",
		FieldWLHID:      wlhID,
	})
}

func TestRun_FullSuccess(t *testing.T) {
	f := newFakeStore()
	orch := NewBulkUpsertOrchestrator(f, nil)

	rows := []NormalizedRow{
		combinedRow(0, "20381", "20-1034"),
		combinedRow(1, "20382", "20-1035"),
	}
	res, err := orch.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected row errors: %v", res.Errors)
	}
	// Two devices, two animals, two attachments.
	if len(res.Results) != 6 {
		t.Fatalf("got %d results, want 6", len(res.Results))
	}
	for i := 1; i < len(res.Results); i++ {
		if res.Results[i].Rownum < res.Results[i-1].Rownum {
			t.Fatalf("results not ordered by rownum: %v", res.Results)
		}
	}
	if len(f.links) != 2 {
		t.Fatalf("got %d links, want 2", len(f.links))
	}
}

func TestRun_AttachMatchesByNaturalKey(t *testing.T) {
	f := newFakeStore()
	orch := NewBulkUpsertOrchestrator(f, nil)
	orch.SetAttachConcurrency(1)

	rows := []NormalizedRow{
		combinedRow(0, "20381", "20-1034"),
		combinedRow(1, "20382", "20-1035"),
	}
	if _, err := orch.Run(context.Background(), rows); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Each attachment pairs the device and animal upserted from the same
	// row, matched by natural key rather than position.
	want := map[string]string{"dev-0": "ani-0", "dev-1": "ani-1"}
	for _, link := range f.links {
		if want[link.deviceID] != link.animalID {
			t.Errorf("device %s linked to %s, want %s", link.deviceID, link.animalID, want[link.deviceID])
		}
	}
}

func TestRun_UntaggedRowsAttachDistinctAnimals(t *testing.T) {
	f := newFakeStore()
	orch := NewBulkUpsertOrchestrator(f, nil)

	// Two rows with animal data but no identity fields: each must create
	// and attach its own animal, never share one through an empty key.
	rows := []NormalizedRow{
		bulkRow(0, map[string]any{FieldSpecies: "Moose", FieldDeviceID: "20381", FieldDeviceMake: "Vectronic"}),
		bulkRow(1, map[string]any{FieldSpecies: "Grey Wolf", FieldDeviceID: "20382", FieldDeviceMake: "Vectronic"}),
	}
	res, err := orch.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected row errors: %v", res.Errors)
	}
	if len(f.upsertedAnimals) != 2 {
		t.Fatalf("got %d animal upserts, want 2", len(f.upsertedAnimals))
	}
	if len(f.links) != 2 {
		t.Fatalf("got %d links, want 2", len(f.links))
	}

	attached := map[string]bool{}
	for _, link := range f.links {
		attached[link.animalID] = true
	}
	if len(attached) != 2 {
		t.Errorf("devices attached to %d distinct animals, want 2", len(attached))
	}
}

func TestAnimalMatchKey(t *testing.T) {
	tagged := bulkRow(3, map[string]any{FieldWLHID: "20-1034"})
	if got := tagged.AnimalMatchKey(); got != "20-1034||" {
		t.Errorf("tagged match key = %q, want natural key", got)
	}

	// Untagged rows get per-row surrogates that never collide with each
	// other or with natural keys.
	a := bulkRow(0, map[string]any{FieldSpecies: "Moose"})
	b := bulkRow(1, map[string]any{FieldSpecies: "Moose"})
	if a.AnimalMatchKey() == b.AnimalMatchKey() {
		t.Errorf("untagged rows share match key %q", a.AnimalMatchKey())
	}
	if a.AnimalMatchKey() == "" {
		t.Error("untagged match key is empty")
	}
}

func TestRun_DeviceRowErrorStopsRun(t *testing.T) {
	f := newFakeStore()
	f.failDevice[1] = "duplicate key value violates unique constraint"
	orch := NewBulkUpsertOrchestrator(f, nil)

	rows := []NormalizedRow{
		combinedRow(0, "20381", "20-1034"),
		combinedRow(1, "20382", "20-1035"),
	}
	res, err := orch.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One device row failed, so nothing downstream may have run.
	if len(f.upsertedAnimals) != 0 {
		t.Errorf("animal phase ran after device failure: %d upserts", len(f.upsertedAnimals))
	}
	if len(f.links) != 0 {
		t.Errorf("attach phase ran after device failure: %d links", len(f.links))
	}
	if len(res.Errors) != 1 || res.Errors[0].Rownum != 1 {
		t.Fatalf("errors = %v, want one error on row 1", res.Errors)
	}
	if res.Errors[0].Row == nil {
		t.Error("row error missing denormalized row copy")
	}
}

func TestRun_AnimalRowErrorStopsAttach(t *testing.T) {
	f := newFakeStore()
	f.failAnimal[0] = "value too long for wlh_id"
	orch := NewBulkUpsertOrchestrator(f, nil)

	rows := []NormalizedRow{combinedRow(0, "20381", "20-1034")}
	res, err := orch.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.links) != 0 {
		t.Errorf("attach phase ran after animal failure: %d links", len(f.links))
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want one", res.Errors)
	}
}

func TestRun_DeviceInfraFailure(t *testing.T) {
	f := newFakeStore()
	f.deviceErr = context.DeadlineExceeded
	orch := NewBulkUpsertOrchestrator(f, nil)

	_, err := orch.Run(context.Background(), []NormalizedRow{combinedRow(0, "20381", "20-1034")})
	if err == nil {
		t.Fatal("expected infrastructure error, got nil")
	}
	if !strings.Contains(err.Error(), "device phase") {
		t.Errorf("error = %v, want device phase context", err)
	}
}

func TestRun_AttachFailuresAreIndependent(t *testing.T) {
	f := newFakeStore()
	f.linkFail["dev-1"] = "deadlock detected"
	orch := NewBulkUpsertOrchestrator(f, nil)

	rows := []NormalizedRow{
		combinedRow(0, "20381", "20-1034"),
		combinedRow(1, "20382", "20-1035"),
		combinedRow(2, "20383", "20-1036"),
	}
	res, err := orch.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Row 1's failed attachment never cancels its siblings: rows 0 and 2
	// still link, and all devices and animals stay written.
	if len(f.links) != 2 {
		t.Errorf("got %d links, want 2", len(f.links))
	}
	if len(res.Errors) != 1 || res.Errors[0].Rownum != 1 {
		t.Fatalf("errors = %v, want one error on row 1", res.Errors)
	}
	// 3 devices + 3 animals + 2 attachments.
	if len(res.Results) != 8 {
		t.Errorf("got %d results, want 8", len(res.Results))
	}
}

func TestRun_PhaseRouting(t *testing.T) {
	f := newFakeStore()
	orch := NewBulkUpsertOrchestrator(f, nil)

	rows := []NormalizedRow{
		combinedRow(0, "20381", "20-1034"),
		// Device-only row: no animal upsert, no attachment.
		bulkRow(1, map[string]any{FieldDeviceID: "20390", FieldDeviceMake: "Lotek"}),
		// Animal-only row: no device upsert, no attachment.
		bulkRow(2, map[string]any{FieldSpecies: "Moose", FieldWLHID: "20-1099"}),
	}
	res, err := orch.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.upsertedDevices) != 2 {
		t.Errorf("got %d device upserts, want 2", len(f.upsertedDevices))
	}
	if len(f.upsertedAnimals) != 2 {
		t.Errorf("got %d animal upserts, want 2", len(f.upsertedAnimals))
	}
	if len(f.links) != 1 {
		t.Errorf("got %d links, want 1 (combined row only)", len(f.links))
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors: %v", res.Errors)
	}
}

func TestRun_AttachmentWindow(t *testing.T) {
	f := newFakeStore()
	orch := NewBulkUpsertOrchestrator(f, nil)

	row := combinedRow(0, "20381", "20-1034")
	row.Fields[FieldCaptureDate] = day("2021-02-15")
	row.Fields[FieldMortalityDate] = day("2021-08-01")
	row.Fields[FieldRetrievalDate] = day("2021-09-01")

	if _, err := orch.Run(context.Background(), []NormalizedRow{row}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.links) != 1 {
		t.Fatalf("got %d links, want 1", len(f.links))
	}

	ival := f.links[0].interval
	if !ival.Start.Equal(day("2021-02-15")) {
		t.Errorf("attachment start = %v, want capture date", ival.Start)
	}
	// The written attachment ends at death, not at collar retrieval.
	if ival.End == nil || !ival.End.Equal(day("2021-08-01")) {
		t.Errorf("attachment end = %v, want mortality date", ival.End)
	}
}

func TestWindows_EndPrecedence(t *testing.T) {
	row := bulkRow(0, map[string]any{
		FieldCaptureDate:   day("2021-02-15"),
		FieldMortalityDate: day("2021-08-01"),
		FieldRetrievalDate: day("2021-09-01"),
	})
	now := day("2026-01-01")

	// Conflict detection reasons about device availability, so retrieval
	// wins; the stored attachment reflects the animal, so mortality wins.
	if end := row.CandidateWindow(now).End; end == nil || !end.Equal(day("2021-09-01")) {
		t.Errorf("candidate end = %v, want retrieval date", end)
	}
	if end := row.AttachmentWindow(now).End; end == nil || !end.Equal(day("2021-08-01")) {
		t.Errorf("attachment end = %v, want mortality date", end)
	}
}

func TestWindows_DefaultToNow(t *testing.T) {
	row := bulkRow(0, map[string]any{FieldDeviceID: "20381"})
	now := day("2026-01-01")

	cand := row.CandidateWindow(now)
	if !cand.Start.Equal(now) {
		t.Errorf("candidate start = %v, want now", cand.Start)
	}
	if cand.End != nil {
		t.Errorf("candidate end = %v, want open-ended", cand.End)
	}
}
