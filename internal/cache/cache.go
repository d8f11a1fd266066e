// Package cache maps guide documents and the manifest onto store keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wuwaguides/internal/store"
	"wuwaguides/pkg/models"
)

// ManifestKey holds the manifest; guides live under GuideKey(id).
const ManifestKey = "manifest"

// ErrNotFound is returned when a manifest or guide has not been cached yet.
var ErrNotFound = errors.New("cache: not found")

func GuideKey(id int64) string {
	return "guide:" + strconv.FormatInt(id, 10)
}

// Writer persists pipeline output. Each call is one unconditional overwrite;
// nothing groups calls together, so callers decide the order.
type Writer struct {
	kv store.KV
}

func NewWriter(kv store.KV) *Writer {
	return &Writer{kv: kv}
}

func (w *Writer) PutGuide(ctx context.Context, id int64, doc models.NormalizedGuide) error {
	if doc.CharacterInfo.ID != id {
		return fmt.Errorf("cache: guide for %d carries character id %d", id, doc.CharacterInfo.ID)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cache: marshal guide %d: %w", id, err)
	}
	if err := w.kv.Set(ctx, GuideKey(id), string(b)); err != nil {
		return fmt.Errorf("cache: put guide %d: %w", id, err)
	}
	return nil
}

func (w *Writer) PutManifest(ctx context.Context, m *models.Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal manifest: %w", err)
	}
	if err := w.kv.Set(ctx, ManifestKey, string(b)); err != nil {
		return fmt.Errorf("cache: put manifest: %w", err)
	}
	return nil
}

// Reader serves cached documents to the read API.
type Reader struct {
	kv store.KV
}

func NewReader(kv store.KV) *Reader {
	return &Reader{kv: kv}
}

func (r *Reader) Manifest(ctx context.Context) (*models.Manifest, error) {
	raw, err := r.get(ctx, ManifestKey)
	if err != nil {
		return nil, err
	}
	var m models.Manifest
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("cache: decode manifest: %w", err)
	}
	if m.Characters == nil {
		m.Characters = map[string]models.CharacterInfo{}
	}
	return &m, nil
}

// GuideJSON returns the stored document text as is.
func (r *Reader) GuideJSON(ctx context.Context, id int64) (string, error) {
	return r.get(ctx, GuideKey(id))
}

func (r *Reader) Guide(ctx context.Context, id int64) (*models.NormalizedGuide, error) {
	raw, err := r.GuideJSON(ctx, id)
	if err != nil {
		return nil, err
	}
	var g models.NormalizedGuide
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("cache: decode guide %d: %w", id, err)
	}
	return &g, nil
}

// Characters lists the manifest entries sorted by name.
func (r *Reader) Characters(ctx context.Context) ([]models.CharacterInfo, error) {
	m, err := r.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.CharacterInfo, 0, len(m.Characters))
	for _, c := range m.Characters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := nameOf(out[i]), nameOf(out[j])
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindByName resolves a display name through the manifest. Matching ignores
// case, spaces and colons, so "rover: havoc" and "RoverHavoc" both work.
func (r *Reader) FindByName(ctx context.Context, name string) (*models.CharacterInfo, error) {
	m, err := r.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	want := NormalizeName(name)
	var found *models.CharacterInfo
	for _, c := range m.Characters {
		if c.Name == nil || NormalizeName(*c.Name) != want {
			continue
		}
		// lowest id wins so duplicate names resolve the same way every time
		if found == nil || c.ID < found.ID {
			info := c
			found = &info
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func NormalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, ":", "")
}

func (r *Reader) get(ctx context.Context, key string) (string, error) {
	v, err := r.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("cache: get %s: %w", key, err)
	}
	return v, nil
}

func nameOf(c models.CharacterInfo) string {
	if c.Name == nil {
		return ""
	}
	return *c.Name
}
