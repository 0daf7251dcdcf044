// Package cache persists the used-product ledger and run configurations
// in SQLite, so repeated runs over the same region do not reprocess
// products already consumed by earlier pairings.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Role records how a product was consumed by a pairing.
type Role string

const (
	RolePrimary    Role = "primary"
	RoleSecondary  Role = "secondary"
	RoleHistorical Role = "historical"
)

// UsedProduct is one ledger row.
type UsedProduct struct {
	ID          int64
	ProductUUID string
	Title       string
	Platform    string
	Role        Role
	ROI         string
	PeriodStart time.Time
	UsedAt      time.Time
}

// RunConfig is a persisted run configuration, keyed by a generated run
// id so results can be traced back to the exact inputs.
type RunConfig struct {
	RunID     string
	ROI       string
	Config    json.RawMessage
	CreatedAt time.Time
}

// Store provides SQLite-backed persistence.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Store, opening the SQLite database and running
// migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("cache store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// MarkUsed records that a product was consumed by a pairing. Recording
// the same product twice for the same region and role is a no-op.
func (s *Store) MarkUsed(rec *UsedProduct) error {
	const query = `
		INSERT OR IGNORE INTO used_products (
			product_uuid, title, platform, role, roi, period_start, used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if rec.UsedAt.IsZero() {
		rec.UsedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(
		query,
		rec.ProductUUID, rec.Title, rec.Platform, rec.Role, rec.ROI,
		rec.PeriodStart, rec.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert used product: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// IsUsed reports whether a product was already consumed for the region.
func (s *Store) IsUsed(roi, productUUID string) (bool, error) {
	const query = "SELECT COUNT(*) FROM used_products WHERE roi = ? AND product_uuid = ?"

	var count int
	if err := s.db.QueryRow(query, roi, productUUID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check used product: %w", err)
	}
	return count > 0, nil
}

// ListUsed retrieves the ledger for a region in usage order.
func (s *Store) ListUsed(roi string) ([]UsedProduct, error) {
	const query = `
		SELECT id, product_uuid, title, platform, role, roi, period_start, used_at
		FROM used_products WHERE roi = ? ORDER BY used_at, id
	`

	rows, err := s.db.Query(query, roi)
	if err != nil {
		return nil, fmt.Errorf("failed to query used products: %w", err)
	}
	defer rows.Close()

	var records []UsedProduct
	for rows.Next() {
		rec := UsedProduct{}
		err := rows.Scan(
			&rec.ID, &rec.ProductUUID, &rec.Title, &rec.Platform,
			&rec.Role, &rec.ROI, &rec.PeriodStart, &rec.UsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan used product: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating used products: %w", err)
	}
	return records, nil
}

// UsedSet returns the product UUIDs already consumed for a region, in a
// form the orchestrator can use as its exclusion set.
func (s *Store) UsedSet(roi string) (map[string]bool, error) {
	records, err := s.ListUsed(roi)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(records))
	for _, rec := range records {
		set[rec.ProductUUID] = true
	}
	return set, nil
}

// ClearUsed drops the ledger for a region, forcing a full rebuild on the
// next run.
func (s *Store) ClearUsed(roi string) error {
	result, err := s.db.Exec("DELETE FROM used_products WHERE roi = ?", roi)
	if err != nil {
		return fmt.Errorf("failed to clear used products: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		s.logger.Info("cleared used product ledger", "roi", roi, "count", n)
	}
	return nil
}

// Collocation records one completed collocation of a radar/optical
// product pair.
type Collocation struct {
	ID          int64
	S1UUID      string
	S2UUID      string
	ROI         string
	OutputDir   string
	ProcessedAt time.Time
}

// RecordCollocation persists a completed collocation. Reprocessing the
// same pair adds a newer row rather than replacing the old one.
func (s *Store) RecordCollocation(rec *Collocation) error {
	const query = `
		INSERT INTO collocations (s1_uuid, s2_uuid, roi, output_dir, processed_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(query, rec.S1UUID, rec.S2UUID, rec.ROI, rec.OutputDir, rec.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert collocation: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// LatestCollocation returns the most recently processed collocation of
// a product pair, or nil when the pair was never processed.
func (s *Store) LatestCollocation(s1UUID, s2UUID string) (*Collocation, error) {
	const query = `
		SELECT id, s1_uuid, s2_uuid, roi, output_dir, processed_at
		FROM collocations WHERE s1_uuid = ? AND s2_uuid = ?
		ORDER BY processed_at DESC, id DESC LIMIT 1
	`

	rec := &Collocation{}
	err := s.db.QueryRow(query, s1UUID, s2UUID).Scan(
		&rec.ID, &rec.S1UUID, &rec.S2UUID, &rec.ROI, &rec.OutputDir, &rec.ProcessedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query collocation: %w", err)
	}
	return rec, nil
}

// SaveRunConfig persists a run configuration and returns its generated
// run id.
func (s *Store) SaveRunConfig(roi string, config any) (string, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run config: %w", err)
	}

	runID := uuid.NewString()
	const query = `
		INSERT INTO run_configs (run_id, roi, config_json, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, runID, roi, string(raw), time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to insert run config: %w", err)
	}
	return runID, nil
}

// GetRunConfig retrieves a run configuration by run id.
func (s *Store) GetRunConfig(runID string) (*RunConfig, error) {
	const query = `
		SELECT run_id, roi, config_json, created_at
		FROM run_configs WHERE run_id = ?
	`

	rc := &RunConfig{}
	var raw string
	err := s.db.QueryRow(query, runID).Scan(&rc.RunID, &rc.ROI, &raw, &rc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run config not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to query run config: %w", err)
	}
	rc.Config = json.RawMessage(raw)
	return rc, nil
}

// ListRunConfigs retrieves run configurations for a region, newest
// first.
func (s *Store) ListRunConfigs(roi string, limit int) ([]RunConfig, error) {
	query := `
		SELECT run_id, roi, config_json, created_at
		FROM run_configs WHERE roi = ? ORDER BY created_at DESC
	`
	args := []any{roi}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run configs: %w", err)
	}
	defer rows.Close()

	var configs []RunConfig
	for rows.Next() {
		rc := RunConfig{}
		var raw string
		if err := rows.Scan(&rc.RunID, &rc.ROI, &raw, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run config: %w", err)
		}
		rc.Config = json.RawMessage(raw)
		configs = append(configs, rc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run configs: %w", err)
	}
	return configs, nil
}
