package importer

// bulk.go runs the staged multi-entity upsert.
//
// The three phases are strictly sequential and never overlap:
//
//	DEVICE -> ANIMAL -> ATTACH
//
// The ordering is fixed because an attachment needs both upserted IDs.
// Any row error in DEVICE aborts the run before ANIMAL; any row error in
// ANIMAL aborts before ATTACH. Within ATTACH every row is dispatched
// independently and concurrently: one row's failure is recorded against
// that row alone and never cancels or rolls back its siblings.
//
// Rows are matched to their upserted device/animal by natural key, not by
// position, since the upsert phases may reorder or deduplicate. Rows with
// no animal identity fields match on a per-row surrogate key instead.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultAttachConcurrency bounds the phase-3 fan-out.
const DefaultAttachConcurrency = 8

// BulkUpsertOrchestrator executes the three-phase upsert over a batch of
// rows that already carry zero hard errors.
type BulkUpsertOrchestrator struct {
	store       Warehouse
	log         *slog.Logger
	now         func() time.Time
	concurrency int
}

// NewBulkUpsertOrchestrator creates an orchestrator over the given store.
func NewBulkUpsertOrchestrator(store Warehouse, log *slog.Logger) *BulkUpsertOrchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &BulkUpsertOrchestrator{
		store:       store,
		log:         log,
		now:         time.Now,
		concurrency: DefaultAttachConcurrency,
	}
}

// SetAttachConcurrency overrides the phase-3 fan-out limit.
func (o *BulkUpsertOrchestrator) SetAttachConcurrency(n int) {
	if n > 0 {
		o.concurrency = n
	}
}

// Run executes the phases over the batch. The returned error is an
// infrastructure failure; all row-level outcomes ride in the BulkResult.
// When an early phase yields row errors, only that phase's result is
// returned and later phases never execute.
func (o *BulkUpsertOrchestrator) Run(ctx context.Context, rows []NormalizedRow) (BulkResult, error) {
	var agg ResultAggregator

	// Phase 1: DEVICE.
	deviceRows := filterRows(rows, NormalizedRow.HasDevice)
	deviceRes, err := o.store.UpsertDevices(ctx, deviceRows)
	if err != nil {
		return BulkResult{}, fmt.Errorf("device phase: %w", err)
	}
	o.log.Info("device phase complete",
		"rows", len(deviceRows), "written", len(deviceRes.Results), "failed", len(deviceRes.Errors))
	if len(deviceRes.Errors) > 0 {
		// No partial animal or attachment writes without their devices.
		return deviceRes, nil
	}

	// Phase 2: ANIMAL.
	animalRows := filterRows(rows, NormalizedRow.HasAnimal)
	animalRes, err := o.store.UpsertAnimals(ctx, animalRows)
	if err != nil {
		return BulkResult{}, fmt.Errorf("animal phase: %w", err)
	}
	o.log.Info("animal phase complete",
		"rows", len(animalRows), "written", len(animalRes.Results), "failed", len(animalRes.Errors))
	if len(animalRes.Errors) > 0 {
		return animalRes, nil
	}

	// Phase 3: ATTACH.
	attachRes := o.attachAll(ctx, rows, recordsByKey(deviceRes), recordsByKey(animalRes))
	o.log.Info("attach phase complete",
		"written", len(attachRes.Results), "failed", len(attachRes.Errors))

	return agg.MergeBulk(deviceRes, animalRes, attachRes), nil
}

// attachAll links every device-carrying row to its animal, concurrently.
// Each row's outcome lands in its own slot regardless of the others, so a
// failing sibling can neither cancel nor corrupt anyone else's result.
func (o *BulkUpsertOrchestrator) attachAll(ctx context.Context, rows []NormalizedRow, devices, animals map[string]UpsertRecord) BulkResult {
	attachRows := filterRows(rows, func(r NormalizedRow) bool {
		return r.HasDevice() && r.HasAnimal()
	})

	type slot struct {
		rec    UpsertRecord
		rowErr *RowError
	}
	slots := make([]slot, len(attachRows))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, row := range attachRows {
		g.Go(func() error {
			device, ok := devices[row.DeviceKey()]
			if !ok {
				slots[i].rowErr = rowFailure(row, "no upserted device matches this row")
				return nil
			}
			animal, ok := animals[row.AnimalMatchKey()]
			if !ok {
				slots[i].rowErr = rowFailure(row, "no upserted animal matches this row")
				return nil
			}

			rec, err := o.store.LinkDeviceAnimal(ctx, device.ID, animal.ID, row.AttachmentWindow(o.now()))
			if err != nil {
				slots[i].rowErr = rowFailure(row, fmt.Sprintf("attach: %v", err))
				return nil
			}
			rec.Rownum = row.Rownum
			rec.Entity = "attachment"
			if rec.Key == "" {
				rec.Key = row.DeviceKey()
			}
			slots[i].rec = rec
			return nil
		})
	}
	// Tasks never return errors; Wait only fences the fan-out.
	_ = g.Wait()

	var res BulkResult
	for _, s := range slots {
		if s.rowErr != nil {
			res.Errors = append(res.Errors, *s.rowErr)
			continue
		}
		res.Results = append(res.Results, s.rec)
	}
	return res
}

func filterRows(rows []NormalizedRow, keep func(NormalizedRow) bool) []NormalizedRow {
	var out []NormalizedRow
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func recordsByKey(res BulkResult) map[string]UpsertRecord {
	byKey := make(map[string]UpsertRecord, len(res.Results))
	for _, rec := range res.Results {
		byKey[rec.Key] = rec
	}
	return byKey
}

func rowFailure(row NormalizedRow, msg string) *RowError {
	return &RowError{
		Rownum: row.Rownum,
		Row:    row.Raw.Snapshot(),
		Error:  msg,
	}
}
