package importer

// fake_test.go provides an in-memory Store used across the package tests.
// The fake mirrors the real store's contract: code domains, assignment
// history, identity matching against upserted animals, and per-phase
// upserts with injectable failures.

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type linkCall struct {
	deviceID string
	animalID string
	interval AssignmentInterval
}

type fakeStore struct {
	mu sync.Mutex

	codes    map[string][]string
	codesErr map[string]error

	deviceHistory map[string][]AssignmentInterval
	animalHistory map[string][]AssignmentInterval
	historyErr    error

	existingAnimals map[string]bool
	identityErr     error

	deviceErr  error
	animalErr  error
	failDevice map[int]string // rownum -> row error message
	failAnimal map[int]string
	linkFail   map[string]string // device db id -> error message

	upsertedDevices []NormalizedRow
	upsertedAnimals []NormalizedRow
	links           []linkCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		codes: map[string][]string{
			FieldSpecies:        {"Moose", "Grey Wolf", "Grizzly Bear"},
			FieldSex:            {"Male", "Female", "Unknown"},
			FieldLifeStage:      {"Adult", "Subadult", "Juvenile"},
			FieldDeviceMake:     {"Vectronic", "Lotek", "ATS"},
			FieldFrequencyUnit:  {"KHz", "MHz"},
			FieldRegion:         {"Omineca", "Skeena", "Peace"},
			FieldPopulationUnit: {"Hart Ranges", "Quintette"},
		},
		deviceHistory:   map[string][]AssignmentInterval{},
		animalHistory:   map[string][]AssignmentInterval{},
		existingAnimals: map[string]bool{},
		failDevice:      map[int]string{},
		failAnimal:      map[int]string{},
		linkFail:        map[string]string{},
	}
}

func (f *fakeStore) FetchCodeDescriptions(_ context.Context, domainKey string) ([]string, error) {
	if err := f.codesErr[domainKey]; err != nil {
		return nil, err
	}
	return f.codes[domainKey], nil
}

func (f *fakeStore) FetchDeviceHistory(_ context.Context, deviceID string) ([]AssignmentInterval, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.deviceHistory[deviceID], nil
}

func (f *fakeStore) FetchAnimalHistory(_ context.Context, animalID string) ([]AssignmentInterval, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.animalHistory[animalID], nil
}

func (f *fakeStore) IsNewAnimal(_ context.Context, row NormalizedRow) (bool, error) {
	if f.identityErr != nil {
		return false, f.identityErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.existingAnimals[row.AnimalKey()], nil
}

func (f *fakeStore) UpsertDevices(_ context.Context, rows []NormalizedRow) (BulkResult, error) {
	if f.deviceErr != nil {
		return BulkResult{}, f.deviceErr
	}
	var res BulkResult
	for _, row := range rows {
		if msg, ok := f.failDevice[row.Rownum]; ok {
			res.Errors = append(res.Errors, RowError{Rownum: row.Rownum, Row: row.Raw.Snapshot(), Error: msg})
			continue
		}
		f.mu.Lock()
		f.upsertedDevices = append(f.upsertedDevices, row)
		f.mu.Unlock()
		res.Results = append(res.Results, UpsertRecord{
			Rownum: row.Rownum,
			Entity: "device",
			Key:    row.DeviceKey(),
			ID:     fmt.Sprintf("dev-%d", row.Rownum),
		})
	}
	return res, nil
}

func (f *fakeStore) UpsertAnimals(_ context.Context, rows []NormalizedRow) (BulkResult, error) {
	if f.animalErr != nil {
		return BulkResult{}, f.animalErr
	}
	var res BulkResult
	for _, row := range rows {
		if msg, ok := f.failAnimal[row.Rownum]; ok {
			res.Errors = append(res.Errors, RowError{Rownum: row.Rownum, Row: row.Raw.Snapshot(), Error: msg})
			continue
		}
		f.mu.Lock()
		f.upsertedAnimals = append(f.upsertedAnimals, row)
		if key := row.AnimalKey(); key != "" {
			f.existingAnimals[key] = true
		}
		f.mu.Unlock()
		res.Results = append(res.Results, UpsertRecord{
			Rownum: row.Rownum,
			Entity: "animal",
			Key:    row.AnimalMatchKey(),
			ID:     fmt.Sprintf("ani-%d", row.Rownum),
		})
	}
	return res, nil
}

func (f *fakeStore) LinkDeviceAnimal(_ context.Context, deviceID, animalID string, ival AssignmentInterval) (UpsertRecord, error) {
	if msg, ok := f.linkFail[deviceID]; ok {
		return UpsertRecord{}, fmt.Errorf("%s", msg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, linkCall{deviceID: deviceID, animalID: animalID, interval: ival})
	return UpsertRecord{Entity: "attachment", ID: fmt.Sprintf("att-%d", len(f.links))}, nil
}

// rawRowFrom builds a RawRow from a cell map, with a deterministic header.
func rawRowFrom(cells map[string]string) RawRow {
	header := make([]string, 0, len(cells))
	for _, spec := range CaptureTemplate() {
		if _, ok := cells[spec.Name]; ok {
			header = append(header, spec.Name)
		}
	}
	copied := make(map[string]string, len(cells))
	for k, v := range cells {
		copied[k] = v
	}
	return RawRow{Header: header, Cells: copied}
}

// testDomain freezes the fake's code lists into a CodeDomain.
func testDomain(f *fakeStore) CodeDomain {
	return NewCodeDomain(f.codes)
}

// mustNormalize runs the template validator over the cells and fails the
// test on any field error.
func mustNormalize(t testing.TB, rownum int, cells map[string]string, domain CodeDomain) NormalizedRow {
	t.Helper()
	row, errs := NewRowValidator(CaptureTemplate()).Normalize(rownum, rawRowFrom(cells), domain)
	if len(errs) > 0 {
		t.Fatalf("row %d did not normalize cleanly: %v", rownum, errs)
	}
	return row
}

func datePtr(t time.Time) *time.Time {
	return &t
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// validRecord returns the cells of a row that passes field validation.
func validRecord(overrides map[string]string) map[string]string {
	cells := map[string]string{
		FieldSpecies:     "Moose",
		FieldDeviceID:    "20381",
		FieldDeviceMake:  "Vectronic",
		FieldWLHID:       "20-1034",
		FieldCaptureDate: "2021-02-15",
	}
	for k, v := range overrides {
		if v == "" {
			delete(cells, k)
			continue
		}
		cells[k] = v
	}
	return cells
}
