package store

import (
	"context"
	"fmt"
)

// ResolveSite returns the identity of the site with the given display name,
// creating it on first sight. The insert is conflict-tolerant: two concurrent
// first-sightings both attempt the INSERT IGNORE and both land on the same
// row in the re-select, so no application-level locking is needed.
func (s *Store) ResolveSite(ctx context.Context, name string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO sites (site_name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert site %q: %w", name, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT site_id FROM sites WHERE site_name = ?`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("select site %q: %w", name, err)
	}
	return id, nil
}
