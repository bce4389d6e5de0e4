package catalog

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lherron/navmerge/internal/db"
)

// Sync describes one recorded catalog refresh.
type Sync struct {
	ID       string `json:"id" yaml:"id"`
	Domain   string `json:"domain" yaml:"domain"`
	Count    int    `json:"count" yaml:"count"`
	SyncedAt string `json:"synced_at" yaml:"synced_at"`
}

// Store caches catalog entries in the SQLite catalog database.
type Store struct {
	db *db.DB
}

// NewStore wraps a migrated database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Replace swaps the cached entries of domain for entries and records the
// refresh. It returns the sync ID.
func (s *Store) Replace(domain string, entries []Entry) (string, error) {
	if !ValidDomain(domain) {
		return "", fmt.Errorf("the domain %s has not been recognized", domain)
	}
	syncID := uuid.New().String()

	err := s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM catalog_entries WHERE domain = ?", domain); err != nil {
			return fmt.Errorf("failed to clear %s entries: %w", domain, err)
		}

		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO catalog_entries (id, domain, kind, name)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.Exec(e.ID, domain, e.Kind, e.Name); err != nil {
				return fmt.Errorf("failed to store %s: %w", e.ID, err)
			}
		}

		_, err = tx.Exec(`
			INSERT INTO catalog_syncs (uuid, domain, entry_count)
			VALUES (?, ?, ?)
		`, syncID, domain, len(entries))
		if err != nil {
			return fmt.Errorf("failed to record sync: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return syncID, nil
}

// List returns every cached entry sorted by ID, each with all the domains
// it is cached for.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, domain, kind, name FROM catalog_entries
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var domain string
		if err := rows.Scan(&e.ID, &domain, &e.Kind, &e.Name); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		if n := len(entries); n > 0 && entries[n-1].ID == e.ID {
			entries[n-1].Domains = append(entries[n-1].Domains, domain)
			continue
		}
		e.Domains = []string{domain}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog: %w", err)
	}

	for i := range entries {
		sortDomains(entries[i].Domains)
	}
	return entries, nil
}

// Lookup returns the cached entry for id, or nil when it is unknown.
func (s *Store) Lookup(id string) (*Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	found, _ := Select(entries, []string{id})
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// LastSync returns the most recent refresh of domain, or nil if the domain
// was never synced.
func (s *Store) LastSync(domain string) (*Sync, error) {
	var sync Sync
	err := s.db.QueryRow(`
		SELECT uuid, domain, entry_count, synced_at FROM catalog_syncs
		WHERE domain = ?
		ORDER BY synced_at DESC, rowid DESC
		LIMIT 1
	`, domain).Scan(&sync.ID, &sync.Domain, &sync.Count, &sync.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last %s sync: %w", domain, err)
	}
	return &sync, nil
}

// Synced reports whether every domain has been refreshed at least once.
func (s *Store) Synced(domains []string) (bool, error) {
	for _, d := range domains {
		sync, err := s.LastSync(d)
		if err != nil {
			return false, err
		}
		if sync == nil {
			return false, nil
		}
	}
	return true, nil
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
