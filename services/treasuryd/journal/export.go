package journal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Controller string `parquet:"name=controller, type=BYTE_ARRAY, convertedtype=UTF8"`
	Target     string `parquet:"name=target, type=BYTE_ARRAY, convertedtype=UTF8"`
	Entrypoint string `parquet:"name=entrypoint, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sender     string `parquet:"name=sender, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status     string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Code       int32  `parquet:"name=code, type=INT32"`
	Error      string `parquet:"name=error, type=BYTE_ARRAY, convertedtype=UTF8"`
	Operations int32  `parquet:"name=operations, type=INT32"`
	Digest     string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartedAt  string `parquet:"name=started_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	DurationUS int64  `parquet:"name=duration_us, type=INT64"`
}

// ExportParquet writes every journal entry to path and returns the row count.
func (j *Journal) ExportParquet(ctx context.Context, path string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("journal: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	count := 0
	err = j.Each(ctx, func(entry Entry) error {
		count++
		return pw.Write(&parquetRow{
			ID:         entry.ID,
			Controller: entry.Controller,
			Target:     entry.Target,
			Entrypoint: entry.Entrypoint,
			Sender:     entry.Sender,
			Status:     entry.Status,
			Code:       int32(entry.Code),
			Error:      entry.Error,
			Operations: int32(entry.Operations),
			Digest:     entry.Digest,
			StartedAt:  entry.StartedAt.UTC().Format(time.RFC3339Nano),
			DurationUS: entry.DurationUS,
		})
	})
	if err != nil {
		pw.WriteStop()
		file.Close()
		return 0, fmt.Errorf("journal: parquet write: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("journal: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("journal: close parquet file: %w", err)
	}
	j.logger.Info("journal exported", "path", path, "rows", count)
	return count, nil
}
