// Package export implements Parquet reading and writing for finalized
// histograms.
//
// The package provides:
//   - Writer/Reader for bucket rows
//   - Conversion from finalized histogram results to rows
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/datehist/internal/aggregate"
	"github.com/xtxerr/datehist/internal/errors"
	"github.com/xtxerr/datehist/internal/histogram"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// BucketRow represents one histogram bucket in Parquet format. BucketEnd is
// exclusive and derived from the calendar, so month and year buckets carry
// their exact width. RoughMillis and Multiplier describe the final rounding
// of the pass that produced the row.
type BucketRow struct {
	BucketStart int64   `parquet:"bucket_start"`
	BucketEnd   int64   `parquet:"bucket_end"`
	RoughMillis int64   `parquet:"rough_millis"`
	Multiplier  int32   `parquet:"multiplier"`
	Count       int64   `parquet:"count"`
	Sum         float64 `parquet:"sum"`
	Min         float64 `parquet:"min"`
	Max         float64 `parquet:"max"`
	Avg         float64 `parquet:"avg"`
	P50         float64 `parquet:"p50,optional"`
	P90         float64 `parquet:"p90,optional"`
	P95         float64 `parquet:"p95,optional"`
	P99         float64 `parquet:"p99,optional"`
	FirstTs     int64   `parquet:"first_ts"`
	LastTs      int64   `parquet:"last_ts"`
}

// RowsFromStats converts a finalized metric histogram to Parquet rows.
func RowsFromStats(res histogram.Result[*aggregate.Stats]) []BucketRow {
	rounding := res.Config.Hierarchy.Bind(res.Config.TimezoneOffset)[res.State.Level]

	rows := make([]BucketRow, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		r := b.Value.Result()
		row := BucketRow{
			BucketStart: b.Start,
			BucketEnd:   rounding.Next(b.Start, res.Multiplier),
			RoughMillis: res.RoughMillis,
			Multiplier:  int32(res.Multiplier),
			Count:       r.Count,
			Sum:         r.Sum,
			Min:         r.Min,
			Max:         r.Max,
			Avg:         r.Avg,
			FirstTs:     r.FirstTs,
			LastTs:      r.LastTs,
		}
		if r.HasPercentiles() {
			row.P50, row.P90, row.P95, row.P99 = *r.P50, *r.P90, *r.P95, *r.P99
		}
		rows = append(rows, row)
	}
	return rows
}

// RowsFromCounts converts a finalized count histogram to Parquet rows.
func RowsFromCounts(res histogram.Result[int64]) []BucketRow {
	rounding := res.Config.Hierarchy.Bind(res.Config.TimezoneOffset)[res.State.Level]

	rows := make([]BucketRow, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		rows = append(rows, BucketRow{
			BucketStart: b.Start,
			BucketEnd:   rounding.Next(b.Start, res.Multiplier),
			RoughMillis: res.RoughMillis,
			Multiplier:  int32(res.Multiplier),
			Count:       b.Value,
		})
	}
	return rows
}

// Writer writes bucket rows to a Parquet file.
type Writer struct {
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[BucketRow]
	rowCount int64
	closed   bool
}

// NewWriter creates a new Parquet writer, creating parent directories as
// needed.
func NewWriter(path string, opts Options) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[BucketRow](f,
		parquet.Compression(getCompression(opts.Compression)))

	return &Writer{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends rows to the Parquet file.
func (w *Writer) Write(rows []BucketRow) error {
	if len(rows) == 0 {
		return nil
	}
	if w.closed {
		return errors.ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteStats writes a finalized metric histogram to path in one call.
func WriteStats(path string, res histogram.Result[*aggregate.Stats], opts Options) error {
	return writeRows(path, RowsFromStats(res), opts)
}

// WriteCounts writes a finalized count histogram to path in one call.
func WriteCounts(path string, res histogram.Result[int64], opts Options) error {
	return writeRows(path, RowsFromCounts(res), opts)
}

func writeRows(path string, rows []BucketRow, opts Options) error {
	w, err := NewWriter(path, opts)
	if err != nil {
		return err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Reader reads bucket rows from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[BucketRow]
	path   string
}

// NewReader creates a new Parquet reader.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[BucketRow](pf)

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadAll reads every row from the file.
func (r *Reader) ReadAll() ([]BucketRow, error) {
	rows := make([]BucketRow, r.reader.NumRows())
	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return rows[:n], nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}
