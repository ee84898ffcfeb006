package importer

// codes.go loads reference code domains for an import session.
//
// The cache is deliberately session-scoped: reference codes can change
// between imports, so domains are fetched fresh for every pass, frozen into
// an immutable CodeDomain value, and passed explicitly through every
// validation call. No shared mutable state survives the pass.

import (
	"context"
	"fmt"
	"log/slog"
)

// CodeDomain is an immutable snapshot of the allowed values per code field.
// The zero value contains no domains and rejects every lookup.
type CodeDomain struct {
	values  map[string][]string
	members map[string]map[string]struct{}
}

// NewCodeDomain freezes the given field -> allowed-values mapping. The
// input slices are copied; later mutation of the caller's maps has no
// effect on the domain.
func NewCodeDomain(domains map[string][]string) CodeDomain {
	d := CodeDomain{
		values:  make(map[string][]string, len(domains)),
		members: make(map[string]map[string]struct{}, len(domains)),
	}
	for field, vals := range domains {
		copied := make([]string, len(vals))
		copy(copied, vals)
		d.values[field] = copied

		set := make(map[string]struct{}, len(vals))
		for _, v := range vals {
			set[v] = struct{}{}
		}
		d.members[field] = set
	}
	return d
}

// Has reports whether value is an exact member of the field's domain.
func (d CodeDomain) Has(field, value string) bool {
	set, ok := d.members[field]
	if !ok {
		return false
	}
	_, ok = set[value]
	return ok
}

// Values returns the full allowed list for a field, in store order.
func (d CodeDomain) Values(field string) []string {
	return d.values[field]
}

// Len returns the number of loaded domains.
func (d CodeDomain) Len() int {
	return len(d.values)
}

// CodeReferenceCache loads code domains once per import session.
type CodeReferenceCache struct {
	source CodeSource
	log    *slog.Logger
}

// NewCodeReferenceCache creates a cache backed by the given source.
func NewCodeReferenceCache(source CodeSource, log *slog.Logger) *CodeReferenceCache {
	if log == nil {
		log = slog.Default()
	}
	return &CodeReferenceCache{source: source, log: log}
}

// LoadCodeDomain fetches the allowed values for every requested field.
// Loading is all-or-nothing: if any domain cannot be fetched the whole
// validation pass must fail, wrapped in ErrReferenceStore, rather than
// silently validating against an empty list.
func (c *CodeReferenceCache) LoadCodeDomain(ctx context.Context, fields []string) (CodeDomain, error) {
	domains := make(map[string][]string, len(fields))
	for _, field := range fields {
		vals, err := c.source.FetchCodeDescriptions(ctx, field)
		if err != nil {
			return CodeDomain{}, fmt.Errorf("%w: domain %q: %v", ErrReferenceStore, field, err)
		}
		domains[field] = vals
	}

	c.log.Debug("code domains loaded", "domains", len(domains))
	return NewCodeDomain(domains), nil
}
