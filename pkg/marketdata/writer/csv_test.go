package writer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

type CSVWriterTestSuite struct {
	suite.Suite
	tempDir string
}

func TestCSVWriterSuite(t *testing.T) {
	suite.Run(t, new(CSVWriterTestSuite))
}

func (suite *CSVWriterTestSuite) SetupTest() {
	suite.tempDir = suite.T().TempDir()
}

func (suite *CSVWriterTestSuite) TestWriteSeries() {
	outputPath := filepath.Join(suite.tempDir, "eth.csv")
	series := types.PriceSeries{
		Symbol:   "ETH-USD",
		Interval: types.IntervalDaily,
		Points: []types.PricePoint{
			{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Close: 2281.47},
			{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 2355.1},
		},
	}

	path, err := WriteSeries(NewCSVWriter(outputPath, SeriesMeta{Symbol: "ETH-USD", Source: types.SourceSynthetic}), series)
	suite.Require().NoError(err)
	suite.Equal(outputPath, path)

	content, err := os.ReadFile(path)
	suite.Require().NoError(err)
	suite.Equal("date,close,source\n2024-01-01,2281.47,synthetic\n2024-01-02,2355.1,synthetic\n", string(content))

	points, err := ReadCSV(path)
	suite.Require().NoError(err)
	suite.Equal(series.Points, points)
}

func (suite *CSVWriterTestSuite) TestWriteWithoutInitialize() {
	writer := NewCSVWriter(filepath.Join(suite.tempDir, "x.csv"), SeriesMeta{})

	err := writer.Write(types.PricePoint{Time: time.Now(), Close: 1})
	suite.Error(err)
	suite.Equal(errors.ErrCodeMarketDataWriteFailed, errors.GetCode(err))

	_, err = writer.Finalize()
	suite.Error(err)
}

func (suite *CSVWriterTestSuite) TestFinalizeUnwritableDirectory() {
	writer := NewCSVWriter(filepath.Join(suite.tempDir, "missing", "x.csv"), SeriesMeta{})
	suite.Require().NoError(writer.Initialize())

	_, err := writer.Finalize()
	suite.Error(err)
	suite.Equal(errors.ErrCodeMarketDataWriteFailed, errors.GetCode(err))
}

type failingCloser struct {
	bytes.Buffer
}

func (f *failingCloser) Close() error {
	return fmt.Errorf("disk full")
}

func (suite *CSVWriterTestSuite) TestFinalizeReportsCloseError() {
	buf := &failingCloser{}
	writer := &CSVWriter{
		meta:       SeriesMeta{Symbol: "BTC-USD", Source: types.SourceLive},
		outputPath: filepath.Join(suite.tempDir, "btc.csv"),
		create: func(string) (io.WriteCloser, error) {
			return buf, nil
		},
	}
	suite.Require().NoError(writer.Initialize())
	suite.Require().NoError(writer.Write(types.PricePoint{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Close: 42000}))

	path, err := writer.Finalize()
	suite.Require().Error(err)
	suite.Empty(path)
	suite.Equal(errors.ErrCodeMarketDataWriteFailed, errors.GetCode(err))
	suite.Contains(err.Error(), "disk full")
	suite.Contains(buf.String(), "2024-01-01,42000,live")
}

func (suite *CSVWriterTestSuite) TestReadCSVInvalidDate() {
	path := filepath.Join(suite.tempDir, "bad.csv")
	suite.Require().NoError(os.WriteFile(path, []byte("date,close,source\n01/02/2024,1.0,live\n"), 0o644))

	_, err := ReadCSV(path)
	suite.Error(err)
	suite.Equal(errors.ErrCodeMarketDataParseFailed, errors.GetCode(err))
}
