package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/chillbot-io/openlabels/internal/config"
)

// Analytics is the embedded in-process columnar query facade: it
// registers each catalog table's partition root as a Hive-partitioned
// view so dashboard aggregation queries never touch the operational
// store. Only the local backend is wired; remote backends would need
// credential plumbing the object store abstraction doesn't expose.
type Analytics struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAnalytics opens an embedded DuckDB instance and registers a view
// per catalog table rooted at cfg.CatalogLocalPath. Returns nil, nil if
// analytics isn't available for the configured backend, so callers can
// treat it as an optional component.
func NewAnalytics(cfg *config.Config, logger *slog.Logger) (*Analytics, error) {
	if cfg.CatalogBackend != "" && cfg.CatalogBackend != "local" {
		logger.Warn("catalog analytics disabled: embedded DuckDB only reads the local backend", "backend", cfg.CatalogBackend)
		return nil, nil
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening embedded analytics engine: %w", err)
	}
	if cfg.CatalogDuckDBThreads > 0 {
		if _, err := db.Exec(fmt.Sprintf("SET threads TO %d", cfg.CatalogDuckDBThreads)); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring analytics engine thread count: %w", err)
		}
	}
	if cfg.CatalogDuckDBMemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit = '%s'", cfg.CatalogDuckDBMemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring analytics engine memory limit: %w", err)
		}
	}

	a := &Analytics{db: db, logger: logger}
	if err := a.registerViews(cfg.CatalogLocalPath); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// registerViews creates one Hive-partitioned view per catalog table,
// reading every Parquet file under table/tenant=*/date_col=*/*.parquet.
// Views degrade gracefully to empty results when no files exist yet
// (DuckDB's read_parquet with a glob tolerates zero matches).
func (a *Analytics) registerViews(root string) error {
	for _, t := range Tables {
		glob := root + "/" + string(t) + "/**/*.parquet"
		stmt := fmt.Sprintf(
			`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s', hive_partitioning=true, union_by_name=true)`,
			string(t), glob,
		)
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("registering analytics view for %s: %w", t, err)
		}
	}
	return nil
}

// Query runs a read-only analytical SQL statement against the
// registered views and returns the raw *sql.Rows for the caller to
// scan; dashboard handlers project them into whatever shape they need.
func (a *Analytics) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.db.QueryContext(ctx, query, args...)
}

// Refresh re-registers the views, picking up partitions written since
// startup. Cheap enough to call after every catalog flush cycle since
// it only recreates view definitions, not the underlying data.
func (a *Analytics) Refresh(root string) error {
	return a.registerViews(root)
}

// Close releases the embedded engine's resources.
func (a *Analytics) Close() error {
	return a.db.Close()
}
