// Package export writes correlated event and rate rows to report files.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"infrafi/analytics"
)

// Format selects the report files written for a run.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatBoth    Format = "both"
)

const reportName = "analytics-export"

// ErrUnknownFormat is returned for a format other than csv, parquet or both.
var ErrUnknownFormat = errors.New("export: unknown format")

// ParseFormat validates a format name, case-insensitively.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatCSV, FormatParquet, FormatBoth:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

func (f Format) csv() bool     { return f == FormatCSV || f == FormatBoth }
func (f Format) parquet() bool { return f == FormatParquet || f == FormatBoth }

// Header is the CSV header row.
var Header = []string{
	"Block Number",
	"Timestamp",
	"Date/Time (UTC)",
	"Event Type",
	"User",
	"Amount (WOORT)",
	"Transaction Hash",
	"Supply APY (Before)",
	"Borrow APY (Before)",
	"Supply APY (After)",
	"Borrow APY (After)",
	"Supply APY Change",
	"Borrow APY Change",
	"Utilization (Before)",
	"Utilization (After)",
	"Borrow Index (Before)",
	"Supply Index (Before)",
	"Borrow Index (After)",
	"Supply Index (After)",
	"Total Liquidity",
	"Total Debt",
	"Seconds Since Last Event",
}

// Options controls where and how a run is written.
type Options struct {
	// Dir is the parent directory; each run gets its own subdirectory.
	Dir    string
	Format Format
	// Now stamps the run directory. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Result describes the files written by a run.
type Result struct {
	RunID       uuid.UUID      `json:"runId"`
	Dir         string         `json:"dir"`
	CSVPath     string         `json:"csvPath,omitempty"`
	ParquetPath string         `json:"parquetPath,omitempty"`
	Rows        int            `json:"rows"`
	ByType      map[string]int `json:"byType"`
}

// Write stores rows under a fresh run directory named by date and run id.
func Write(rows []analytics.CombinedRow, opts Options) (*Result, error) {
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("export: output dir required")
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runID := uuid.New()
	runDir := filepath.Join(opts.Dir, fmt.Sprintf("%s_%s", now().UTC().Format("20060102"), runID.String()))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("export: ensure output dir: %w", err)
	}

	result := &Result{RunID: runID, Dir: runDir, Rows: len(rows), ByType: CountByType(rows)}
	if format.csv() {
		path := filepath.Join(runDir, reportName+".csv")
		if err := WriteCSV(path, rows); err != nil {
			return nil, err
		}
		result.CSVPath = path
		logger.Info("export written", "path", path, "rows", len(rows))
	}
	if format.parquet() {
		path := filepath.Join(runDir, reportName+".parquet")
		if err := WriteParquet(path, rows); err != nil {
			return nil, err
		}
		result.ParquetPath = path
		logger.Info("export written", "path", path, "rows", len(rows))
	}
	return result, nil
}

// CountByType tallies rows by event type.
func CountByType(rows []analytics.CombinedRow) map[string]int {
	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.EventType]++
	}
	return counts
}

// SortedTypes returns the keys of counts in lexical order.
func SortedTypes(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func record(row analytics.CombinedRow) []string {
	return []string{
		strconv.FormatUint(row.BlockNumber, 10),
		strconv.FormatInt(row.Timestamp, 10),
		row.DateTime,
		row.EventType,
		row.User,
		row.Amount,
		row.TxHash,
		row.SupplyAPYBefore,
		row.BorrowAPYBefore,
		row.SupplyAPYAfter,
		row.BorrowAPYAfter,
		row.SupplyAPYChange,
		row.BorrowAPYChange,
		row.UtilizationBefore,
		row.UtilizationAfter,
		row.BorrowIndexBefore,
		row.SupplyIndexBefore,
		row.BorrowIndexAfter,
		row.SupplyIndexAfter,
		row.TotalLiquidity,
		row.TotalDebt,
		strconv.FormatInt(row.SecondsSinceLastEvent, 10),
	}
}

// WriteCSV writes rows with Header to path.
func WriteCSV(path string, rows []analytics.CombinedRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(Header); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(record(row)); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	BlockNumber           int64  `parquet:"name=block_number, type=INT64"`
	Timestamp             int64  `parquet:"name=timestamp, type=INT64"`
	DateTime              string `parquet:"name=date_time, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventType             string `parquet:"name=event_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	User                  string `parquet:"name=user, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount                string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	TxHash                string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	SupplyAPYBefore       string `parquet:"name=supply_apy_before, type=BYTE_ARRAY, convertedtype=UTF8"`
	BorrowAPYBefore       string `parquet:"name=borrow_apy_before, type=BYTE_ARRAY, convertedtype=UTF8"`
	SupplyAPYAfter        string `parquet:"name=supply_apy_after, type=BYTE_ARRAY, convertedtype=UTF8"`
	BorrowAPYAfter        string `parquet:"name=borrow_apy_after, type=BYTE_ARRAY, convertedtype=UTF8"`
	SupplyAPYChange       string `parquet:"name=supply_apy_change, type=BYTE_ARRAY, convertedtype=UTF8"`
	BorrowAPYChange       string `parquet:"name=borrow_apy_change, type=BYTE_ARRAY, convertedtype=UTF8"`
	UtilizationBefore     string `parquet:"name=utilization_before, type=BYTE_ARRAY, convertedtype=UTF8"`
	UtilizationAfter      string `parquet:"name=utilization_after, type=BYTE_ARRAY, convertedtype=UTF8"`
	BorrowIndexBefore     string `parquet:"name=borrow_index_before, type=BYTE_ARRAY, convertedtype=UTF8"`
	SupplyIndexBefore     string `parquet:"name=supply_index_before, type=BYTE_ARRAY, convertedtype=UTF8"`
	BorrowIndexAfter      string `parquet:"name=borrow_index_after, type=BYTE_ARRAY, convertedtype=UTF8"`
	SupplyIndexAfter      string `parquet:"name=supply_index_after, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalLiquidity        string `parquet:"name=total_liquidity, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalDebt             string `parquet:"name=total_debt, type=BYTE_ARRAY, convertedtype=UTF8"`
	SecondsSinceLastEvent int64  `parquet:"name=seconds_since_last_event, type=INT64"`
}

func toParquetRow(row analytics.CombinedRow) *parquetRow {
	return &parquetRow{
		BlockNumber:           int64(row.BlockNumber),
		Timestamp:             row.Timestamp,
		DateTime:              row.DateTime,
		EventType:             row.EventType,
		User:                  row.User,
		Amount:                row.Amount,
		TxHash:                row.TxHash,
		SupplyAPYBefore:       row.SupplyAPYBefore,
		BorrowAPYBefore:       row.BorrowAPYBefore,
		SupplyAPYAfter:        row.SupplyAPYAfter,
		BorrowAPYAfter:        row.BorrowAPYAfter,
		SupplyAPYChange:       row.SupplyAPYChange,
		BorrowAPYChange:       row.BorrowAPYChange,
		UtilizationBefore:     row.UtilizationBefore,
		UtilizationAfter:      row.UtilizationAfter,
		BorrowIndexBefore:     row.BorrowIndexBefore,
		SupplyIndexBefore:     row.SupplyIndexBefore,
		BorrowIndexAfter:      row.BorrowIndexAfter,
		SupplyIndexAfter:      row.SupplyIndexAfter,
		TotalLiquidity:        row.TotalLiquidity,
		TotalDebt:             row.TotalDebt,
		SecondsSinceLastEvent: row.SecondsSinceLastEvent,
	}
}

// WriteParquet writes rows to path as a SNAPPY-compressed parquet file.
func WriteParquet(path string, rows []analytics.CombinedRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(toParquetRow(row)); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("export: close parquet file: %w", err)
	}
	return nil
}
