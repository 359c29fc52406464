package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID          string `parquet:"name=id, type=UTF8"`
	Sequence    int64  `parquet:"name=sequence, type=INT64"`
	Type        string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	VaultID     int64  `parquet:"name=vault_id, type=INT64"`
	HasVault    bool   `parquet:"name=has_vault, type=BOOLEAN"`
	Attributes  string `parquet:"name=attributes, type=UTF8"`
	Fingerprint string `parquet:"name=fingerprint, type=UTF8"`
	RecordedAt  string `parquet:"name=recorded_at, type=UTF8"`
}

// ExportParquet writes every event matching filter to a snappy compressed
// parquet file at path and returns the number of rows written. filter.Limit
// is ignored; the export pages through the full result set.
func (s *Store) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := filter
	page.Limit = maxLimit
	for {
		records, err := s.List(ctx, page)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, rec := range records {
			row, err := toParquetRow(rec)
			if err != nil {
				pw.WriteStop()
				file.Close()
				return written, err
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("indexer: parquet write: %w", err)
			}
			written++
			page.AfterSequence = rec.Sequence
		}
		if len(records) < maxLimit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return written, nil
}

func toParquetRow(rec Record) (*parquetRow, error) {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return nil, fmt.Errorf("indexer: encode attributes: %w", err)
	}
	row := &parquetRow{
		ID:          rec.ID,
		Sequence:    int64(rec.Sequence),
		Type:        rec.Type,
		Attributes:  string(attrs),
		Fingerprint: rec.Fingerprint,
		RecordedAt:  rec.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.VaultID != nil {
		row.VaultID = int64(*rec.VaultID)
		row.HasVault = true
	}
	return row, nil
}
