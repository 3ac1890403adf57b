package writer

import (
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

type csvRow struct {
	Date   string  `csv:"date"`
	Close  float64 `csv:"close"`
	Source string  `csv:"source"`
}

// CSVWriter collects points in memory and writes them as date,close,source rows on Finalize.
type CSVWriter struct {
	meta        SeriesMeta
	outputPath  string
	rows        []*csvRow
	initialized bool
	create      func(path string) (io.WriteCloser, error)
}

func createFile(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// NewCSVWriter creates a new CSVWriter writing to outputPath.
func NewCSVWriter(outputPath string, meta SeriesMeta) SeriesWriter {
	return &CSVWriter{
		meta:       meta,
		outputPath: outputPath,
		create:     createFile,
	}
}

func (w *CSVWriter) Initialize() error {
	w.rows = make([]*csvRow, 0)
	w.initialized = true

	return nil
}

func (w *CSVWriter) Write(point types.PricePoint) error {
	if !w.initialized {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized")
	}

	w.rows = append(w.rows, &csvRow{
		Date:   point.Time.UTC().Format(types.DateLayout),
		Close:  point.Close,
		Source: string(w.meta.Source),
	})

	return nil
}

func (w *CSVWriter) Finalize() (outputPath string, err error) {
	if !w.initialized {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized")
	}

	file, err := w.create(w.outputPath)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to create %s", w.outputPath)
	}

	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			outputPath = ""
			err = errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, cerr, "failed to close %s", w.outputPath)
		}
	}()

	if err := gocsv.Marshal(&w.rows, file); err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write csv rows", err)
	}

	return w.outputPath, nil
}

func (w *CSVWriter) GetOutputPath() string {
	return w.outputPath
}

func (w *CSVWriter) Close() error {
	w.rows = nil
	w.initialized = false

	return nil
}

// ReadCSV loads rows previously written by CSVWriter.
func ReadCSV(path string) ([]types.PricePoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "failed to open %s", path)
	}
	defer file.Close()

	var rows []*csvRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse csv rows", err)
	}

	points := make([]types.PricePoint, 0, len(rows))

	for _, row := range rows {
		t, err := types.ParseDate(row.Date)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "invalid date %q", row.Date)
		}

		points = append(points, types.PricePoint{Time: t, Close: row.Close})
	}

	return points, nil
}
