package importer

// identity.go decides whether a row will create a new animal.
//
// The decision never produces an error: absence of a server-side match is
// the expected first-import case. It only attaches a prompt warning so the
// uploader confirms the creation instead of silently duplicating an animal
// that was keyed differently.
//
// isNewAnimal is computed against pre-batch state only; a row earlier in
// the same batch that creates a matching animal is not seen.

import (
	"context"
	"fmt"
)

// UniquenessResolver resolves a row's animal identity against the store.
type UniquenessResolver struct {
	identity Identity
}

// NewUniquenessResolver creates a resolver over the given identity source.
func NewUniquenessResolver(identity Identity) *UniquenessResolver {
	return &UniquenessResolver{identity: identity}
}

// Resolve reports whether the row's animal is new to the store. When it is,
// a prompt warning is returned for the uploader to acknowledge. The error
// is an infrastructure failure only.
func (r *UniquenessResolver) Resolve(ctx context.Context, row NormalizedRow) (bool, []WarningInfo, error) {
	if row.AnimalKey() == "" {
		// Nothing to match on; the upsert phase always creates a new animal
		// for such a row, and the uploader must confirm that like any other
		// creation.
		return true, []WarningInfo{{
			Message: "No identity fields were given; this row will create a new animal",
			Prompt:  true,
		}}, nil
	}

	isNew, err := r.identity.IsNewAnimal(ctx, row)
	if err != nil {
		return false, nil, fmt.Errorf("animal identity for %q: %w", row.AnimalKey(), err)
	}
	if !isNew {
		return false, nil, nil
	}

	return true, []WarningInfo{{
		Message: "No matching animal was found; this row will create a new animal",
		Prompt:  true,
	}}, nil
}
