package restock

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/integrahub/orderflow/internal/orders"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"1,5",
		"2, 10",
		"onlyonefield",
		"abc,5",
		"3,xyz",
		"4,0",
		"5,-2",
		"",
		"6,1,extra",
	}, "\n")

	valid, invalid := Parse(strings.NewReader(input))

	wantValid := []Line{
		{Num: 1, ProductID: 1, Qty: 5},
		{Num: 2, ProductID: 2, Qty: 10},
		{Num: 9, ProductID: 6, Qty: 1}, // extra fields beyond the second are ignored
	}
	if len(valid) != len(wantValid) {
		t.Fatalf("valid = %+v, want %+v", valid, wantValid)
	}
	for i, l := range valid {
		if l != wantValid[i] {
			t.Errorf("valid[%d] = %+v, want %+v", i, l, wantValid[i])
		}
	}

	wantReasons := map[int]string{
		3: "fewer than 2 fields",
		4: "non-numeric fields",
		5: "non-numeric fields",
		6: "quantity must be positive",
		7: "quantity must be positive",
	}
	if len(invalid) != len(wantReasons) {
		t.Fatalf("invalid = %+v, want %d entries", invalid, len(wantReasons))
	}
	for _, bad := range invalid {
		if want := wantReasons[bad.Num]; bad.Reason != want {
			t.Errorf("line %d: reason = %q, want %q", bad.Num, bad.Reason, want)
		}
	}
}

type fakeStore struct {
	calls   int
	batches [][]orders.StockAdjustment
	unknown []int64
	err     error
}

func (s *fakeStore) ApplyRestock(ctx context.Context, adds []orders.StockAdjustment) ([]int64, error) {
	s.calls++
	s.batches = append(s.batches, adds)
	return s.unknown, s.err
}

func TestProcessFileAppliesAndRenames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "restock1.csv")
	content := "1,5\n999,5\nbad line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &fakeStore{unknown: []int64{999}}
	in := &Ingestor{Store: store, Dir: dir, Log: zerolog.Nop()}

	in.Scan(context.Background())

	if store.calls != 1 {
		t.Fatalf("ApplyRestock calls = %d, want 1", store.calls)
	}
	want := []orders.StockAdjustment{{ProductID: 1, Qty: 5}, {ProductID: 999, Qty: 5}}
	got := store.batches[0]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("batch = %+v, want %+v", got, want)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("original file still present, want renamed")
	}
	if _, err := os.Stat(path + processedSuffix); err != nil {
		t.Fatalf("processed file missing: %v", err)
	}

	// A later scan must not reprocess the renamed file.
	in.Scan(context.Background())
	if store.calls != 1 {
		t.Fatalf("ApplyRestock calls after rescan = %d, want 1", store.calls)
	}
}

func TestProcessFileStoreErrorLeavesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "restock1.csv")
	if err := os.WriteFile(path, []byte("1,5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &fakeStore{err: os.ErrDeadlineExceeded}
	in := &Ingestor{Store: store, Dir: dir, Log: zerolog.Nop()}

	in.Scan(context.Background())

	// File stays in the inbox so the next scan retries it.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should remain after store error: %v", err)
	}

	store.err = nil
	in.Scan(context.Background())
	if store.calls != 2 {
		t.Fatalf("ApplyRestock calls = %d, want retry on next scan", store.calls)
	}
	if _, err := os.Stat(path + processedSuffix); err != nil {
		t.Fatalf("processed file missing after successful retry: %v", err)
	}
}

func TestScanIgnoresNonCSV(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "restock1.csv.processed"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("1,5\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store := &fakeStore{}
	in := &Ingestor{Store: store, Dir: dir, Log: zerolog.Nop()}

	in.Scan(context.Background())
	if store.calls != 0 {
		t.Fatalf("ApplyRestock calls = %d, want 0", store.calls)
	}
}
