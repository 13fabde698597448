package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"infrafi/export"
	"infrafi/native/lending"
	"infrafi/subgraph"
)

const testNow int64 = 1_700_000_000

type fakeSource struct {
	mu        sync.Mutex
	events    []subgraph.Event
	rates     []subgraph.RateSnapshot
	err       error
	gotStarts []int64
}

func (f *fakeSource) record(start int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotStarts = append(f.gotStarts, start)
}

func (f *fakeSource) EventsSince(_ context.Context, start int64) ([]subgraph.Event, error) {
	f.record(start)
	return f.events, f.err
}

func (f *fakeSource) RateSnapshotsSince(_ context.Context, start int64) ([]subgraph.RateSnapshot, error) {
	f.record(start)
	return f.rates, nil
}

func tokens(n uint64) lending.TokenAmount {
	return lending.ParseDecimalString(strconv.FormatUint(n, 10), 18)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func clock() time.Time { return time.Unix(testNow, 0).UTC() }

func TestRunWritesReport(t *testing.T) {
	src := &fakeSource{
		events: []subgraph.Event{
			{ID: "1", Kind: lending.EventSupply, User: "0x00000000000000000000000000000000000000aa", Timestamp: testNow - 7_200, BlockNumber: 100, Amount: tokens(10)},
			{ID: "2", Kind: lending.EventBorrow, User: "0x00000000000000000000000000000000000000aa", Timestamp: testNow - 3_600, BlockNumber: 200, Amount: tokens(4)},
		},
		rates: []subgraph.RateSnapshot{
			{ID: "r1", Timestamp: testNow - 8_000, BlockNumber: 90, SupplyAPY: 300, BorrowAPY: 500},
			{ID: "r2", Timestamp: testNow - 3_600, BlockNumber: 200, SupplyAPY: 320, BorrowAPY: 540},
		},
	}
	cfg := &Config{Days: 2, Out: t.TempDir(), Format: export.FormatBoth}
	var out bytes.Buffer

	result, err := Run(context.Background(), src, cfg, clock, quietLogger(), &out)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 2, result.Rows)
	require.Equal(t, map[string]int{"Supply": 1, "Borrow": 1}, result.ByType)
	require.Equal(t, []int64{testNow - 2*86_400, testNow - 2*86_400}, src.gotStarts)

	for _, path := range []string{result.CSVPath, result.ParquetPath} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Positive(t, info.Size())
	}
	require.Contains(t, out.String(), "Exported 2 events")
	require.Contains(t, out.String(), "Borrow")
}

func TestRunWithoutEvents(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	result, err := Run(context.Background(), &fakeSource{}, &Config{Days: 30, Out: dir, Format: export.FormatCSV}, clock, quietLogger(), &out)
	require.NoError(t, err)
	require.Nil(t, result)
	require.Contains(t, out.String(), "No events found")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunPropagatesFetchErrors(t *testing.T) {
	boom := errors.New("indexer down")
	_, err := Run(context.Background(), &fakeSource{err: boom}, &Config{Days: 1, Out: t.TempDir()}, clock, quietLogger(), io.Discard)
	require.ErrorIs(t, err, boom)
}

func TestParseFlags(t *testing.T) {
	c := Command()
	require.NoError(t, c.Flags().Parse([]string{"--subgraph", " http://localhost:8000/subgraphs/name/infrafi ", "--days", "7", "--format", "PARQUET"}))
	cfg, err := ParseFlags(c.Flags())
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000/subgraphs/name/infrafi", cfg.Subgraph)
	require.Equal(t, 7, cfg.Days)
	require.Equal(t, export.FormatParquet, cfg.Format)
	require.Equal(t, "exports", cfg.Out)
}

func TestParseFlagsRejectsBadInput(t *testing.T) {
	cases := map[string][]string{
		"days":   {"--subgraph", "http://x", "--days", "0"},
		"format": {"--subgraph", "http://x", "--format", "xlsx"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			c := Command()
			require.NoError(t, c.Flags().Parse(args))
			_, err := ParseFlags(c.Flags())
			require.Error(t, err)
		})
	}

	t.Setenv(subgraphEnv, "")
	c := Command()
	require.NoError(t, c.Flags().Parse(nil))
	_, err := ParseFlags(c.Flags())
	require.Error(t, err)
}
