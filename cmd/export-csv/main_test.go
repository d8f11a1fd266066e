package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wuwaguides/internal/cache"
	"wuwaguides/internal/store"
	"wuwaguides/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func TestExportCharacters(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	w := cache.NewWriter(kv)

	jinhsi := models.CharacterInfo{ID: 1304, Name: ptr("Jinhsi"), Rarity: models.LooseID(`5`), Attribute: ptr("Spectro")}
	require.NoError(t, w.PutGuide(ctx, 1304, models.NormalizedGuide{
		CharacterInfo: jinhsi,
		GuideMeta:     models.GuideMeta{GuideName: ptr("Jinhsi Build"), Likes: 42},
	}))

	m := models.NewManifest()
	m.Characters["1304"] = jinhsi
	m.Characters["1102"] = models.CharacterInfo{ID: 1102, Name: ptr("Sanhua")}
	m.LastUpdatedUTC = "2025-06-01T00:00:00Z"
	require.NoError(t, w.PutManifest(ctx, m))

	var buf bytes.Buffer
	n, err := exportCharacters(ctx, cache.NewReader(kv), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"1304", "Jinhsi", "5", "Spectro", "", "", "Jinhsi Build", "42", "2025-06-01T00:00:00Z"}, rows[1])
	assert.Equal(t, []string{"1102", "Sanhua", "", "", "", "", "", "", "2025-06-01T00:00:00Z"}, rows[2])
}

func TestExportWithoutManifest(t *testing.T) {
	_, err := exportCharacters(context.Background(), cache.NewReader(store.NewMemory()), &bytes.Buffer{})
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
