package store

import (
	"context"
	"fmt"
)

// fetchCodesQuery returns a domain's active code descriptions in their
// configured sort order.
const fetchCodesQuery = `
SELECT c.description
FROM code c
JOIN code_header h ON h.code_header_id = c.code_header_id
WHERE h.code_header_name = $1
  AND (c.valid_to IS NULL OR c.valid_to > now())
ORDER BY c.sort_order, c.description`

// FetchCodeDescriptions loads the ordered allowed values for one code
// domain.
func (s *Store) FetchCodeDescriptions(ctx context.Context, domainKey string) ([]string, error) {
	rows, err := s.db.Query(ctx, fetchCodesQuery, domainKey)
	if err != nil {
		return nil, fmt.Errorf("fetch codes %q: %w", domainKey, err)
	}
	defer rows.Close()

	var descriptions []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan code %q: %w", domainKey, err)
		}
		descriptions = append(descriptions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read codes %q: %w", domainKey, err)
	}
	return descriptions, nil
}
