package store

// upsert.go performs the per-phase writes. Each row is upserted in its own
// statement: a constraint rejection becomes a row error in the BulkResult,
// while connection-level failures abort the phase. Duplicate natural keys
// within one batch are collapsed to the first occurrence, so the returned
// records are keyed uniquely and later phases can match rows by key.

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fieldtrack/collarimport/internal/importer"
)

const upsertDeviceQuery = `
INSERT INTO device (device_serial, device_make, device_model, frequency, frequency_unit, retrieved, retrieval_date)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (device_serial, device_make) DO UPDATE SET
	device_model   = COALESCE(EXCLUDED.device_model, device.device_model),
	frequency      = COALESCE(EXCLUDED.frequency, device.frequency),
	frequency_unit = COALESCE(EXCLUDED.frequency_unit, device.frequency_unit),
	retrieved      = COALESCE(EXCLUDED.retrieved, device.retrieved),
	retrieval_date = COALESCE(EXCLUDED.retrieval_date, device.retrieval_date)
RETURNING device_uuid::text`

const upsertAnimalQuery = `
INSERT INTO animal (species, sex, life_stage, wlh_id, animal_id, ear_tag_id,
	region, population_unit, capture_date, capture_latitude, capture_longitude,
	mortality_date, comments)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (wlh_id, animal_id, ear_tag_id) DO UPDATE SET
	species           = EXCLUDED.species,
	sex               = COALESCE(EXCLUDED.sex, animal.sex),
	life_stage        = COALESCE(EXCLUDED.life_stage, animal.life_stage),
	region            = COALESCE(EXCLUDED.region, animal.region),
	population_unit   = COALESCE(EXCLUDED.population_unit, animal.population_unit),
	capture_date      = COALESCE(EXCLUDED.capture_date, animal.capture_date),
	capture_latitude  = COALESCE(EXCLUDED.capture_latitude, animal.capture_latitude),
	capture_longitude = COALESCE(EXCLUDED.capture_longitude, animal.capture_longitude),
	mortality_date    = COALESCE(EXCLUDED.mortality_date, animal.mortality_date),
	comments          = COALESCE(EXCLUDED.comments, animal.comments)
RETURNING animal_uuid::text`

const insertAnimalQuery = `
INSERT INTO animal (species, sex, life_stage, wlh_id, animal_id, ear_tag_id,
	region, population_unit, capture_date, capture_latitude, capture_longitude,
	mortality_date, comments)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING animal_uuid::text`

const linkAttachmentQuery = `
INSERT INTO collar_animal_assignment (device_id, animal_id, attachment_start, attachment_end)
VALUES ($1, $2, $3, $4)
RETURNING assignment_id::text`

// UpsertDevices writes the batch's device rows, one record per natural key.
func (s *Store) UpsertDevices(ctx context.Context, rows []importer.NormalizedRow) (importer.BulkResult, error) {
	var res importer.BulkResult
	for _, row := range dedupeByKey(rows, importer.NormalizedRow.DeviceKey) {
		var id string
		err := s.db.QueryRow(ctx, upsertDeviceQuery,
			row.Text(importer.FieldDeviceID),
			row.Text(importer.FieldDeviceMake),
			pgText(row, importer.FieldDeviceModel),
			pgFloat(row, importer.FieldFrequency),
			pgText(row, importer.FieldFrequencyUnit),
			pgBool(row, importer.FieldRetrieved),
			pgDate(row, importer.FieldRetrievalDate),
		).Scan(&id)
		if err != nil {
			rowErr, infraErr := classifyUpsertError(row, "device", err)
			if infraErr != nil {
				return importer.BulkResult{}, infraErr
			}
			res.Errors = append(res.Errors, *rowErr)
			continue
		}
		res.Results = append(res.Results, importer.UpsertRecord{
			Rownum: row.Rownum,
			Entity: "device",
			Key:    row.DeviceKey(),
			ID:     id,
		})
	}
	return res, nil
}

// UpsertAnimals writes the batch's animal rows, one record per natural key.
// Identity fields are stored as empty strings rather than NULLs so the
// composite conflict target behaves deterministically. A row with no
// identity field at all never conflicts with anything: it gets a plain
// insert, so two untagged rows always create two animals.
func (s *Store) UpsertAnimals(ctx context.Context, rows []importer.NormalizedRow) (importer.BulkResult, error) {
	var res importer.BulkResult
	for _, row := range dedupeByKey(rows, importer.NormalizedRow.AnimalKey) {
		query := upsertAnimalQuery
		if row.AnimalKey() == "" {
			query = insertAnimalQuery
		}

		var id string
		err := s.db.QueryRow(ctx, query,
			row.Text(importer.FieldSpecies),
			pgText(row, importer.FieldSex),
			pgText(row, importer.FieldLifeStage),
			row.Text(importer.FieldWLHID),
			row.Text(importer.FieldAnimalID),
			row.Text(importer.FieldEarTagID),
			pgText(row, importer.FieldRegion),
			pgText(row, importer.FieldPopulationUnit),
			pgDate(row, importer.FieldCaptureDate),
			pgFloat(row, importer.FieldCaptureLat),
			pgFloat(row, importer.FieldCaptureLong),
			pgDate(row, importer.FieldMortalityDate),
			pgText(row, importer.FieldComments),
		).Scan(&id)
		if err != nil {
			rowErr, infraErr := classifyUpsertError(row, "animal", err)
			if infraErr != nil {
				return importer.BulkResult{}, infraErr
			}
			res.Errors = append(res.Errors, *rowErr)
			continue
		}
		res.Results = append(res.Results, importer.UpsertRecord{
			Rownum: row.Rownum,
			Entity: "animal",
			Key:    row.AnimalMatchKey(),
			ID:     id,
		})
	}
	return res, nil
}

// LinkDeviceAnimal writes one attachment interval between an upserted
// device and animal.
func (s *Store) LinkDeviceAnimal(ctx context.Context, deviceID, animalID string, ival importer.AssignmentInterval) (importer.UpsertRecord, error) {
	var end pgtype.Timestamptz
	if ival.End != nil {
		end = pgtype.Timestamptz{Time: *ival.End, Valid: true}
	}

	var id string
	err := s.db.QueryRow(ctx, linkAttachmentQuery,
		deviceID, animalID,
		pgtype.Timestamptz{Time: ival.Start, Valid: true},
		end,
	).Scan(&id)
	if err != nil {
		return importer.UpsertRecord{}, fmt.Errorf("link device %s to animal %s: %w", deviceID, animalID, err)
	}
	return importer.UpsertRecord{Entity: "attachment", ID: id}, nil
}

// classifyUpsertError splits constraint rejections (row-level, recorded)
// from infrastructure failures (fatal to the phase).
func classifyUpsertError(row importer.NormalizedRow, entity string, err error) (*importer.RowError, error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &importer.RowError{
			Rownum: row.Rownum,
			Row:    row.Raw.Snapshot(),
			Error:  fmt.Sprintf("%s upsert: %s", entity, pgErr.Message),
		}, nil
	}
	return nil, fmt.Errorf("%s upsert: %w", entity, err)
}

// dedupeByKey keeps the first row per natural key, preserving order. Rows
// with an empty key are kept as-is.
func dedupeByKey(rows []importer.NormalizedRow, keyOf func(importer.NormalizedRow) string) []importer.NormalizedRow {
	seen := make(map[string]struct{}, len(rows))
	var out []importer.NormalizedRow
	for _, row := range rows {
		key := keyOf(row)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, row)
	}
	return out
}
