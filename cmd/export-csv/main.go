// Command export-csv writes the cached character manifest as CSV, one row per
// character, sorted by name.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"wuwaguides/internal/app"
	"wuwaguides/internal/cache"
	"wuwaguides/internal/store"
)

var header = []string{"id", "name", "rarity", "attribute", "card_url", "illust_url", "guide_name", "likes", "last_updated_utc"}

func main() {
	outPath := flag.String("out", "data/characters.csv", "output CSV path")
	flag.Parse()

	cfg, logger, err := app.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := store.Open(cfg.Store)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer backend.Close()

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		logger.Fatal("mkdir failed", zap.Error(err))
	}
	f, err := os.Create(*outPath)
	if err != nil {
		logger.Fatal("create failed", zap.Error(err))
	}
	defer f.Close()

	n, err := exportCharacters(ctx, cache.NewReader(backend), f)
	if err != nil {
		logger.Fatal("export failed", zap.Error(err))
	}
	logger.Info("exported characters", zap.Int("rows", n), zap.String("path", *outPath))
}

func exportCharacters(ctx context.Context, reader *cache.Reader, out io.Writer) (int, error) {
	m, err := reader.Manifest(ctx)
	if err != nil {
		return 0, err
	}
	chars, err := reader.Characters(ctx)
	if err != nil {
		return 0, err
	}

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return 0, err
	}

	for _, c := range chars {
		guideName, likes := "", ""
		doc, err := reader.Guide(ctx, c.ID)
		switch {
		case err == nil:
			guideName = deref(doc.GuideMeta.GuideName)
			likes = strconv.FormatInt(doc.GuideMeta.Likes, 10)
		case !errors.Is(err, cache.ErrNotFound):
			return 0, fmt.Errorf("guide %d: %w", c.ID, err)
		}

		if err := w.Write([]string{
			strconv.FormatInt(c.ID, 10),
			deref(c.Name),
			c.Rarity.String(),
			deref(c.Attribute),
			c.CardURL.String(),
			c.IllustURL.String(),
			guideName,
			likes,
			m.LastUpdatedUTC,
		}); err != nil {
			return 0, err
		}
	}

	w.Flush()
	return len(chars), w.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
