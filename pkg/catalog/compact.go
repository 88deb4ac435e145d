package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// Compactor merges small partition files into one, scheduled weekly.
// It only operates on the local backend: the s3/gcs/azure stores
// expose Put but no delete, so remote compaction would leave orphaned
// originals behind instead of replacing them.
type Compactor struct {
	root   string
	logger *slog.Logger
	mem    memory.Allocator
}

// NewCompactor builds a Compactor rooted at the catalog's local path.
func NewCompactor(root string, logger *slog.Logger) *Compactor {
	return &Compactor{root: root, logger: logger, mem: memory.NewGoAllocator()}
}

// Run walks every table/tenant/date partition directory under root and
// merges any with more than smallFileThreshold files into a single
// part-compacted file.
func (c *Compactor) Run(ctx context.Context) error {
	for _, t := range Tables {
		tableRoot := filepath.Join(c.root, string(t))
		if _, err := os.Stat(tableRoot); os.IsNotExist(err) {
			continue
		}
		if err := c.compactTable(ctx, t, tableRoot); err != nil {
			c.logger.Error("catalog compaction failed", "table", t, "error", err)
		}
	}
	return nil
}

func (c *Compactor) compactTable(ctx context.Context, t Table, tableRoot string) error {
	partitions := map[string][]string{}
	err := filepath.WalkDir(tableRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".parquet" {
			return nil
		}
		dir := filepath.Dir(path)
		partitions[dir] = append(partitions[dir], path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking catalog partitions for %s: %w", t, err)
	}

	for dir, files := range partitions {
		if len(files) <= smallFileThreshold {
			continue
		}
		if err := c.compactPartition(ctx, t, dir, files); err != nil {
			c.logger.Error("compacting catalog partition", "table", t, "dir", dir, "error", err)
			continue
		}
		c.logger.Info("compacted catalog partition", "table", t, "dir", dir, "files_merged", len(files))
	}
	return nil
}

// compactPartition reads every Parquet file in a partition directory,
// concatenates their row groups into one writer, writes the result as a
// new part-compacted file, then removes the originals.
func (c *Compactor) compactPartition(_ context.Context, t Table, dir string, files []string) error {
	schema := schemaFor(t)
	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Zstd))
	fw, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("opening compaction writer: %w", err)
	}

	for _, path := range files {
		rdr, err := file.OpenParquetFile(path, false)
		if err != nil {
			fw.Close()
			return fmt.Errorf("opening %s for compaction: %w", path, err)
		}
		arrowRdr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, c.mem)
		if err != nil {
			rdr.Close()
			fw.Close()
			return fmt.Errorf("opening arrow reader for %s: %w", path, err)
		}
		table, err := arrowRdr.ReadTable(context.Background())
		if err != nil {
			rdr.Close()
			fw.Close()
			return fmt.Errorf("reading %s for compaction: %w", path, err)
		}
		tr := array.NewTableReader(table, 0)
		for tr.Next() {
			if err := fw.WriteBuffered(tr.Record()); err != nil {
				tr.Release()
				table.Release()
				rdr.Close()
				fw.Close()
				return fmt.Errorf("writing compacted record from %s: %w", path, err)
			}
		}
		tr.Release()
		table.Release()
		rdr.Close()
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing compacted file: %w", err)
	}

	merged := filepath.Join(dir, "part-compacted-"+time.Now().UTC().Format("20060102T150405.000000000")+".parquet")
	if err := os.WriteFile(merged, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing compacted file: %w", err)
	}
	for _, path := range files {
		if err := os.Remove(path); err != nil {
			c.logger.Warn("removing pre-compaction file", "path", path, "error", err)
		}
	}
	return nil
}
