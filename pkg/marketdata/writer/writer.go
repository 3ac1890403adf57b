package writer

import (
	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

// WriterType defines the output format of a series export.
type WriterType string

const (
	WriterParquet WriterType = "parquet"
	WriterCSV     WriterType = "csv"
)

// SeriesMeta is stamped on every exported row.
type SeriesMeta struct {
	Symbol string
	Source types.Source
}

// SeriesWriter defines the interface for writing a price series to a destination.
type SeriesWriter interface {
	// Initialize sets up the writer, potentially creating tables or files.
	Initialize() error
	// Write persists a single price point.
	Write(point types.PricePoint) error
	// Finalize completes the writing process (e.g., commits transactions, exports files).
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// GetOutputPath returns the configured output file path.
	GetOutputPath() string
}

// NewSeriesWriter creates a writer for the given format.
func NewSeriesWriter(writerType WriterType, outputPath string, meta SeriesMeta) (SeriesWriter, error) {
	switch writerType {
	case WriterParquet:
		return NewDuckDBWriter(outputPath, meta), nil
	case WriterCSV:
		return NewCSVWriter(outputPath, meta), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported export format: %s", writerType)
	}
}

// Extension returns the file extension for the writer type.
func (t WriterType) Extension() string {
	return "." + string(t)
}

// WriteSeries runs the full Initialize, Write, Finalize, Close cycle for a series.
func WriteSeries(w SeriesWriter, series types.PriceSeries) (outputPath string, err error) {
	if err := w.Initialize(); err != nil {
		return "", err
	}

	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, point := range series.Points {
		if err := w.Write(point); err != nil {
			return "", err
		}
	}

	return w.Finalize()
}
