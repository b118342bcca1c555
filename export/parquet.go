package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// writerOnly hides Close so the Parquet writer leaves the sink open.
type writerOnly struct {
	io.Writer
}

// WriteParquet writes records as one snappy-compressed Parquet file with the
// Arrow schema stored in the footer. All records must share the schema of
// the first. w is not closed.
func WriteParquet(w io.Writer, records ...arrow.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to write")
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	pqWriter, err := pqarrow.NewFileWriter(records[0].Schema(), writerOnly{w}, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	for _, rec := range records {
		if err := pqWriter.WriteBuffered(rec); err != nil {
			pqWriter.Close()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	if err := pqWriter.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
