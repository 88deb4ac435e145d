package db

import (
	"context"
	"fmt"
	"time"
)

// CatalogFlushCursor mirrors the catalog_flush_cursor table: a single row
// per catalog table name tracking the scanned_at watermark already
// written to Parquet.
type CatalogFlushCursor struct {
	TableName string
	Watermark time.Time
	UpdatedAt time.Time
}

func (q *Queries) GetCatalogFlushCursor(ctx context.Context, tableName string) (CatalogFlushCursor, error) {
	var c CatalogFlushCursor
	row := q.db.QueryRow(ctx, `
		SELECT table_name, watermark, updated_at FROM catalog_flush_cursor WHERE table_name = $1
	`, tableName)
	if err := row.Scan(&c.TableName, &c.Watermark, &c.UpdatedAt); err != nil {
		return CatalogFlushCursor{}, fmt.Errorf("querying catalog flush cursor: %w", err)
	}
	return c, nil
}

func (q *Queries) UpsertCatalogFlushCursor(ctx context.Context, tableName string, watermark time.Time) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO catalog_flush_cursor (table_name, watermark, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (table_name) DO UPDATE SET watermark = EXCLUDED.watermark, updated_at = now()
	`, tableName, watermark)
	if err != nil {
		return fmt.Errorf("upserting catalog flush cursor: %w", err)
	}
	return nil
}
