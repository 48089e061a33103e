package restock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/integrahub/orderflow/internal/orders"
)

const processedSuffix = ".processed"

type Store interface {
	ApplyRestock(ctx context.Context, adds []orders.StockAdjustment) (unknown []int64, err error)
}

// Ingestor polls an inbox directory for batch stock-adjustment files and
// applies them to the store. It runs independently of the order consumer;
// the two serialize on product rows inside the store.
type Ingestor struct {
	Store    Store
	Dir      string
	Interval time.Duration
	Log      zerolog.Logger
}

func (in *Ingestor) Run(ctx context.Context) error {
	if err := os.MkdirAll(in.Dir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	interval := in.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	in.Log.Info().Str("dir", in.Dir).Dur("interval", interval).Msg("restock ingestion started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		in.Scan(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan processes every unprocessed .csv file currently in the inbox.
func (in *Ingestor) Scan(ctx context.Context) {
	entries, err := os.ReadDir(in.Dir)
	if err != nil {
		in.Log.Error().Err(err).Str("dir", in.Dir).Msg("inbox scan failed")
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		path := filepath.Join(in.Dir, e.Name())
		if err := in.processFile(ctx, path); err != nil {
			// File stays in the inbox and is retried on the next scan.
			in.Log.Error().Err(err).Str("file", path).Msg("restock file failed")
		}
	}
}

func (in *Ingestor) processFile(ctx context.Context, path string) error {
	log := in.Log.With().Str("file", path).Str("batch_id", uuid.NewString()).Logger()
	log.Info().Msg("processing restock file")

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	valid, invalid := Parse(f)
	_ = f.Close()

	adds := make([]orders.StockAdjustment, 0, len(valid))
	for _, l := range valid {
		adds = append(adds, orders.StockAdjustment{ProductID: l.ProductID, Qty: l.Qty})
	}
	unknown, err := in.Store.ApplyRestock(ctx, adds)
	if err != nil {
		return fmt.Errorf("apply restock batch: %w", err)
	}

	unknownSet := make(map[int64]bool, len(unknown))
	for _, id := range unknown {
		unknownSet[id] = true
	}
	applied := 0
	for _, l := range valid {
		if unknownSet[l.ProductID] {
			log.Warn().Int("line", l.Num).Int64("product_id", l.ProductID).
				Str("reason", "unknown product").Msg("invalid restock line")
			continue
		}
		applied++
		log.Info().Int64("product_id", l.ProductID).Int("qty", l.Qty).Msg("restocked product")
	}
	for _, bad := range invalid {
		log.Warn().Int("line", bad.Num).Str("content", truncate(bad.Raw, 50)).
			Str("reason", bad.Reason).Msg("invalid restock line")
	}
	log.Info().Int("applied", applied).Int("rejected", len(invalid)+len(valid)-applied).Msg("restock file done")

	// Rename so a later scan never reprocesses the same file.
	return os.Rename(path, path+processedSuffix)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
