package importer

// overlap.go detects temporal conflicts between a row's proposed attachment
// window and historical device/animal assignments.
//
// The policy is intentionally asymmetric: a device concurrently linked to
// two animals is a hard error (telemetry would be unattributable), while an
// animal receiving a second concurrent device is only a confirmable warning
// (multi-collaring is sometimes legitimate).

import (
	"context"
	"fmt"
	"time"
)

// OverlapDetector checks candidate attachment windows against assignment
// history. History lookups are session-scoped; nothing is cached across
// requests.
type OverlapDetector struct {
	history History
	now     func() time.Time
}

// NewOverlapDetector creates a detector over the given history source.
func NewOverlapDetector(history History) *OverlapDetector {
	return &OverlapDetector{history: history, now: time.Now}
}

// CheckDevice examines the row's device against its full assignment
// history. An overlapping interval is a hard error on the device field; a
// non-overlapping history is only an informational warning. The returned
// error is an infrastructure failure fetching history.
func (d *OverlapDetector) CheckDevice(ctx context.Context, row NormalizedRow) (map[string]ErrorDescriptor, []WarningInfo, error) {
	deviceID := row.Text(FieldDeviceID)
	if deviceID == "" {
		return nil, nil, nil
	}

	intervals, err := d.history.FetchDeviceHistory(ctx, deviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("device history for %q: %w", deviceID, err)
	}
	if len(intervals) == 0 {
		return nil, nil, nil
	}

	candidate := row.CandidateWindow(d.now())
	for _, ival := range intervals {
		if ival.Overlaps(candidate) {
			return map[string]ErrorDescriptor{
				FieldDeviceID: {
					Description: fmt.Sprintf("Device %s is already assigned to an animal during this period", deviceID),
					Help:        "Unlink the device from its current animal before reassigning it",
				},
			}, nil, nil
		}
	}

	warn := []WarningInfo{{
		Message: fmt.Sprintf("Device %s has %d previous deployment record(s)", deviceID, len(intervals)),
	}}
	return nil, warn, nil
}

// CheckAnimal examines an existing animal's attachment history against the
// row's candidate window. An overlap is a prompt warning, not an error:
// the user must confirm the multi-collaring before final submission.
func (d *OverlapDetector) CheckAnimal(ctx context.Context, row NormalizedRow) ([]WarningInfo, error) {
	key := row.AnimalKey()
	if key == "" {
		return nil, nil
	}

	intervals, err := d.history.FetchAnimalHistory(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("animal history for %q: %w", key, err)
	}

	candidate := row.CandidateWindow(d.now())
	for _, ival := range intervals {
		if ival.Overlaps(candidate) {
			return []WarningInfo{{
				Message: "This animal already wears a device during this period; confirm the additional attachment",
				Prompt:  true,
			}}, nil
		}
	}
	return nil, nil
}
