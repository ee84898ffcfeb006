package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fieldtrack/collarimport/internal/importer"
)

const deviceHistoryQuery = `
SELECT a.animal_id::text, a.attachment_start, a.attachment_end
FROM collar_animal_assignment a
JOIN device d ON d.device_uuid = a.device_id
WHERE d.device_serial = $1
ORDER BY a.attachment_start`

const animalHistoryQuery = `
SELECT a.device_id::text, a.attachment_start, a.attachment_end
FROM collar_animal_assignment a
JOIN animal an ON an.animal_uuid = a.animal_id
WHERE (an.wlh_id = $1 AND $1 <> '')
   OR (an.animal_id = $2 AND $2 <> '')
   OR (an.ear_tag_id = $3 AND $3 <> '')
ORDER BY a.attachment_start`

// FetchDeviceHistory returns every assignment interval recorded for a
// device serial, oldest first. The interval's subject is the attached
// animal.
func (s *Store) FetchDeviceHistory(ctx context.Context, deviceID string) ([]importer.AssignmentInterval, error) {
	rows, err := s.db.Query(ctx, deviceHistoryQuery, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device history %q: %w", deviceID, err)
	}
	return scanIntervals(rows)
}

// FetchAnimalHistory returns every assignment interval recorded for an
// animal identity key (wlh|animal|ear-tag), oldest first. The interval's
// subject is the attached device.
func (s *Store) FetchAnimalHistory(ctx context.Context, animalID string) ([]importer.AssignmentInterval, error) {
	wlh, aid, ear := splitAnimalKey(animalID)
	rows, err := s.db.Query(ctx, animalHistoryQuery, wlh, aid, ear)
	if err != nil {
		return nil, fmt.Errorf("animal history %q: %w", animalID, err)
	}
	return scanIntervals(rows)
}

func scanIntervals(rows pgx.Rows) ([]importer.AssignmentInterval, error) {
	defer rows.Close()

	var intervals []importer.AssignmentInterval
	for rows.Next() {
		var (
			subject string
			start   pgtype.Timestamptz
			end     pgtype.Timestamptz
		)
		if err := rows.Scan(&subject, &start, &end); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		ival := importer.AssignmentInterval{SubjectID: subject, Start: start.Time}
		if end.Valid {
			t := end.Time
			ival.End = &t
		}
		intervals = append(intervals, ival)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read intervals: %w", err)
	}
	return intervals, nil
}

// splitAnimalKey unpacks the pipeline's natural identity key.
func splitAnimalKey(key string) (wlh, animalID, earTag string) {
	parts := strings.SplitN(key, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}
