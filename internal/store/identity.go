package store

import (
	"context"
	"fmt"

	"github.com/fieldtrack/collarimport/internal/importer"
)

// animalExistsQuery matches a row's natural identity fields against the
// animal table. Empty fields never match anything.
const animalExistsQuery = `
SELECT EXISTS (
	SELECT 1 FROM animal an
	WHERE (an.wlh_id = $1 AND $1 <> '')
	   OR (an.animal_id = $2 AND $2 <> '')
	   OR (an.ear_tag_id = $3 AND $3 <> '')
)`

// IsNewAnimal reports whether no stored animal matches the row's identity
// fields. Identity is resolved against pre-batch state only; animals
// created earlier in the same batch are found on the next pass.
func (s *Store) IsNewAnimal(ctx context.Context, row importer.NormalizedRow) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, animalExistsQuery,
		row.Text(importer.FieldWLHID),
		row.Text(importer.FieldAnimalID),
		row.Text(importer.FieldEarTagID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("animal identity lookup: %w", err)
	}
	return !exists, nil
}
