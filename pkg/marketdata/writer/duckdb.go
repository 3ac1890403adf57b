package writer

import (
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

const priceSeriesTable = "price_series"

var priceSeriesColumns = []string{"id", "symbol", "time", "close", "source"}

// DuckDBWriter buffers points in an in-memory DuckDB table and exports them to Parquet.
type DuckDBWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	sq         squirrel.StatementBuilderType
	meta       SeriesMeta
	outputPath string
}

// NewDuckDBWriter creates a new DuckDBWriter.
// outputPath is the Parquet file written by Finalize.
func NewDuckDBWriter(outputPath string, meta SeriesMeta) SeriesWriter {
	return &DuckDBWriter{
		sq:         squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		meta:       meta,
		outputPath: outputPath,
	}
}

// Initialize opens an in-memory database, creates the table, begins a transaction
// and prepares the insert statement.
func (w *DuckDBWriter) Initialize() (err error) {
	w.db, err = sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to open DuckDB connection", err)
	}

	_, err = w.db.Exec(`
		CREATE TABLE IF NOT EXISTS price_series (
			id TEXT,
			symbol TEXT,
			time TIMESTAMP,
			close DOUBLE,
			source TEXT
		)
	`)
	if err != nil {
		w.db.Close()
		w.db = nil

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create table", err)
	}

	w.tx, err = w.db.Begin()
	if err != nil {
		w.db.Close()
		w.db = nil

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to begin transaction", err)
	}

	//nolint:exhaustruct // placeholder row used only to render the statement
	insertSQL, _, err := w.sq.
		Insert(priceSeriesTable).
		Columns(priceSeriesColumns...).
		Values("", "", nil, 0.0, "").
		ToSql()
	if err != nil {
		w.rollbackAndClose()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to build insert statement", err)
	}

	w.stmt, err = w.tx.Prepare(insertSQL)
	if err != nil {
		w.rollbackAndClose()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to prepare statement", err)
	}

	return nil
}

// Write inserts a single point using the prepared statement within the transaction.
func (w *DuckDBWriter) Write(point types.PricePoint) error {
	if w.stmt == nil {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized or statement is nil")
	}

	_, err := w.stmt.Exec(
		uuid.New().String(),
		w.meta.Symbol,
		point.Time.UTC(),
		point.Close,
		string(w.meta.Source),
	)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to insert price point", err)
	}

	return nil
}

// Finalize commits the transaction and exports the table, ordered by time, to a Parquet file.
func (w *DuckDBWriter) Finalize() (outputPath string, err error) {
	if w.tx == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized or transaction is nil")
	}

	if w.stmt != nil {
		w.stmt.Close()
		w.stmt = nil
	}

	if err = w.tx.Commit(); err != nil {
		w.tx.Rollback()
		w.tx = nil

		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to commit transaction", err)
	}

	w.tx = nil

	_, err = w.db.Exec(fmt.Sprintf(`COPY (SELECT * FROM %s ORDER BY time) TO '%s' (FORMAT PARQUET)`, priceSeriesTable, w.outputPath))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to export to Parquet", err)
	}

	return w.outputPath, nil
}

// GetOutputPath returns the configured output file path.
func (w *DuckDBWriter) GetOutputPath() string {
	return w.outputPath
}

// Close releases the statement, transaction and database connection.
func (w *DuckDBWriter) Close() error {
	var closeErrors []error

	if w.stmt != nil {
		if err := w.stmt.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("failed to close statement: %w", err))
		}

		w.stmt = nil
	}

	// Finalize was not called or failed
	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}

	if w.db != nil {
		if err := w.db.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("failed to close db connection: %w", err))
		}

		w.db = nil
	}

	if len(closeErrors) > 0 {
		errMsg := "errors occurred during close:"
		for _, e := range closeErrors {
			errMsg += fmt.Sprintf("\n- %v", e)
		}

		return errors.New(errors.ErrCodeMarketDataWriteFailed, errMsg)
	}

	return nil
}

func (w *DuckDBWriter) rollbackAndClose() {
	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}

	if w.db != nil {
		w.db.Close()
		w.db = nil
	}
}

// ReadParquet loads a series previously written by DuckDBWriter, ordered by time.
func ReadParquet(path string) ([]types.PricePoint, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to open DuckDB connection", err)
	}
	defer db.Close()

	query, args, err := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question).
		Select("time", "close").
		From(fmt.Sprintf("read_parquet('%s')", path)).
		OrderBy("time ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to build select statement", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "failed to read parquet file %s", path)
	}
	defer rows.Close()

	points := make([]types.PricePoint, 0)

	for rows.Next() {
		var point types.PricePoint
		if err := rows.Scan(&point.Time, &point.Close); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to scan price point", err)
		}

		point.Time = point.Time.UTC()
		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to iterate parquet rows", err)
	}

	return points, nil
}
