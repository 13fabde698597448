package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"infrafi/analytics"
)

func sampleRows() []analytics.CombinedRow {
	return []analytics.CombinedRow{
		{
			BlockNumber:       10,
			Timestamp:         1_700_000_000,
			DateTime:          "2023-11-14T22:13:20.000Z",
			EventType:         "Supply",
			User:              "0xabc...",
			Amount:            "1.000000",
			TxHash:            "0xaa",
			SupplyAPYBefore:   analytics.NotAvailable,
			BorrowAPYBefore:   analytics.NotAvailable,
			SupplyAPYAfter:    "3.0000%",
			BorrowAPYAfter:    "5.0000%",
			SupplyAPYChange:   analytics.NotAvailable,
			BorrowAPYChange:   analytics.NotAvailable,
			UtilizationBefore: analytics.NotAvailable,
			UtilizationAfter:  "40.0000%",
			BorrowIndexBefore: analytics.NotAvailable,
			SupplyIndexBefore: analytics.NotAvailable,
			BorrowIndexAfter:  "1.000000000000000000",
			SupplyIndexAfter:  "1.000000000000000000",
			TotalLiquidity:    "10.000000",
			TotalDebt:         "4.000000",
		},
		{
			BlockNumber:           12,
			Timestamp:             1_700_000_030,
			DateTime:              "2023-11-14T22:13:50.000Z",
			EventType:             "Borrow",
			User:                  "0xdef...",
			Amount:                "2.500000",
			SecondsSinceLastEvent: 30,
		},
		{BlockNumber: 13, EventType: "Supply"},
	}
}

func fixedNow() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"csv": FormatCSV, " Parquet ": FormatParquet, "BOTH": FormatBoth, "": FormatCSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseFormat("xlsx")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteCSV(t *testing.T) {
	res, err := Write(sampleRows(), Options{Dir: t.TempDir(), Format: FormatCSV, Now: fixedNow})
	require.NoError(t, err)
	require.Empty(t, res.ParquetPath)
	require.True(t, strings.HasPrefix(filepath.Base(res.Dir), "20240301_"+res.RunID.String()))
	require.Equal(t, 3, res.Rows)
	require.Equal(t, map[string]int{"Supply": 2, "Borrow": 1}, res.ByType)

	file, err := os.Open(res.CSVPath)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Equal(t, Header, records[0])
	require.Len(t, records[1], len(Header))
	require.Equal(t, "10", records[1][0])
	require.Equal(t, "2023-11-14T22:13:20.000Z", records[1][2])
	require.Equal(t, "N/A", records[1][7])
	require.Equal(t, "40.0000%", records[1][14])
	require.Equal(t, "30", records[2][21])
}

func TestWriteBothFormats(t *testing.T) {
	res, err := Write(sampleRows(), Options{Dir: t.TempDir(), Format: FormatBoth, Now: fixedNow})
	require.NoError(t, err)
	require.FileExists(t, res.CSVPath)
	require.FileExists(t, res.ParquetPath)

	fr, err := local.NewLocalFileReader(res.ParquetPath)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(3), pr.GetNumRows())

	rows := make([]parquetRow, 3)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, "Supply", rows[0].EventType)
	require.Equal(t, "2.500000", rows[1].Amount)
	require.Equal(t, int64(30), rows[1].SecondsSinceLastEvent)
}

func TestWriteRejectsBadOptions(t *testing.T) {
	_, err := Write(nil, Options{Dir: t.TempDir(), Format: "pdf"})
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Write(nil, Options{Format: FormatCSV})
	require.Error(t, err)
}

func TestRunsGetDistinctDirectories(t *testing.T) {
	dir := t.TempDir()
	a, err := Write(nil, Options{Dir: dir, Format: FormatCSV})
	require.NoError(t, err)
	b, err := Write(nil, Options{Dir: dir, Format: FormatCSV})
	require.NoError(t, err)
	require.NotEqual(t, a.Dir, b.Dir)
	require.Equal(t, []string{"Borrow", "Supply"}, SortedTypes(CountByType(sampleRows())))
}
