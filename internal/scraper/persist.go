package scraper

import (
	"context"

	"wuwaguides/internal/cache"
	"wuwaguides/pkg/models"
)

// Sink receives pipeline output. Each call is an independent overwrite, so a
// run must finish every PutGuide before it calls PutManifest: the manifest may
// only name characters whose documents are already stored.
type Sink interface {
	PutGuide(ctx context.Context, id int64, doc models.NormalizedGuide) error
	PutManifest(ctx context.Context, m *models.Manifest) error
}

var _ Sink = (*cache.Writer)(nil)

// Broadcaster is told about run progress. The websocket hub implements it.
type Broadcaster interface {
	BroadcastJSON(v any)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastJSON(any) {}
