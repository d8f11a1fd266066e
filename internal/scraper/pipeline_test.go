package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wuwaguides/internal/cache"
	"wuwaguides/internal/store"
	"wuwaguides/internal/upstream"
	"wuwaguides/pkg/models"
)

var errFlaky = &upstream.MissError{URL: "test", Reason: upstream.MissExhausted, Attempts: 3, Err: errors.New("timeout")}

// fakeSource serves canned roster/guide data and can fail a character's first
// N guide-list or detail calls.
type fakeSource struct {
	mu          sync.Mutex
	roster      []models.RosterEntry
	rosterErr   error
	guides      map[int64][]models.GuideCandidate
	listFails   map[int64]int
	detailFails map[int64]int
	calls       []string
}

func newFakeSource(roster ...models.RosterEntry) *fakeSource {
	f := &fakeSource{
		roster:      roster,
		guides:      map[int64][]models.GuideCandidate{},
		listFails:   map[int64]int{},
		detailFails: map[int64]int{},
	}
	for _, e := range roster {
		f.guides[e.ID] = []models.GuideCandidate{{ID: models.LooseID(fmt.Sprintf("%d", e.ID*10)), LikeCount: 1}}
	}
	return f
}

func (f *fakeSource) Roster(ctx context.Context) ([]models.RosterEntry, error) {
	f.record("roster")
	return f.roster, f.rosterErr
}

func (f *fakeSource) Guides(ctx context.Context, id int64) ([]models.GuideCandidate, error) {
	f.record(fmt.Sprintf("list:%d", id))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listFails[id] > 0 {
		f.listFails[id]--
		return nil, errFlaky
	}
	return f.guides[id], nil
}

func (f *fakeSource) GuideDetail(ctx context.Context, id int64, guideID models.LooseID) (*upstream.GuideDetail, error) {
	f.record(fmt.Sprintf("detail:%d:%s", id, guideID.String()))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailFails[id] > 0 {
		f.detailFails[id]--
		return nil, upstream.ErrNoData
	}
	var d upstream.GuideDetail
	raw := fmt.Sprintf(`{"role":{"texts":[{"name":"char-%d"}],"star":5,"element":{"gbId":3}},"weapon":{"id":%d}}`, id, id)
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// recordingKV logs every write so tests can check ordering.
type recordingKV struct {
	*store.Memory
	mu     sync.Mutex
	writes []string
	fail   map[string]bool
}

func newRecordingKV() *recordingKV {
	return &recordingKV{Memory: store.NewMemory(), fail: map[string]bool{}}
}

func (r *recordingKV) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	r.writes = append(r.writes, key)
	fail := r.fail[key]
	r.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return r.Memory.Set(ctx, key, value)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.RunEvent
}

func (l *eventLog) BroadcastJSON(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev, ok := v.(models.RunEvent); ok {
		l.events = append(l.events, ev)
	}
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func seq(n int) *int { return &n }

func newTestPipeline(src Source, kv store.KV, events Broadcaster) *Pipeline {
	fixed := time.Date(2025, 6, 1, 12, 30, 45, 999, time.UTC)
	return NewPipeline(src, cache.NewWriter(kv), Options{
		Events:   events,
		Now:      func() time.Time { return fixed },
		NewRunID: func() string { return "run-1" },
	})
}

func readManifest(t *testing.T, kv store.KV) *models.Manifest {
	t.Helper()
	m, err := cache.NewReader(kv).Manifest(context.Background())
	require.NoError(t, err)
	return m
}

func TestRunProcessesInSequenceOrder(t *testing.T) {
	src := newFakeSource(
		models.RosterEntry{ID: 1, Name: "A", Status: 1, Sequence: seq(2)},
		models.RosterEntry{ID: 2, Name: "B", Status: 1, Sequence: seq(1)},
	)
	kv := newRecordingKV()

	res := newTestPipeline(src, kv, nil).Run(context.Background())

	assert.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Equal(t, "Cached 2 guides.", res.Message)
	assert.Equal(t, "run-1", res.RunID)
	assert.Empty(t, res.Failed)

	assert.Equal(t, []string{"roster", "list:2", "detail:2:20", "list:1", "detail:1:10"}, src.Calls())
	assert.Equal(t, []string{"guide:2", "guide:1", "manifest"}, kv.writes)

	m := readManifest(t, kv)
	assert.Len(t, m.Characters, 2)
	assert.Contains(t, m.Characters, "1")
	assert.Contains(t, m.Characters, "2")
	assert.Equal(t, "Electro", *m.Characters["1"].Attribute)
	assert.Equal(t, "2025-06-01T12:30:45Z", m.LastUpdatedUTC)
}

func TestRunSkipsInactiveCharacters(t *testing.T) {
	src := newFakeSource(
		models.RosterEntry{ID: 1, Status: 1},
		models.RosterEntry{ID: 2, Status: 2},
		models.RosterEntry{ID: 3, Status: 3},
	)
	kv := newRecordingKV()

	res := newTestPipeline(src, kv, nil).Run(context.Background())

	require.Equal(t, models.RunStatusSuccess, res.Status)
	m := readManifest(t, kv)
	assert.Contains(t, m.Characters, "1")
	assert.Contains(t, m.Characters, "3")
	assert.NotContains(t, m.Characters, "2")
	assert.NotContains(t, src.Calls(), "list:2")
}

func TestRunAbortsWithoutRoster(t *testing.T) {
	for name, src := range map[string]*fakeSource{
		"miss":  {rosterErr: upstream.ErrNoData},
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			kv := newRecordingKV()
			require.NoError(t, kv.Memory.Set(context.Background(), "manifest", `{"characters":{},"last_updated_utc":"old"}`))
			events := &eventLog{}

			res := newTestPipeline(src, kv, events).Run(context.Background())

			assert.Equal(t, models.RunStatusError, res.Status)
			assert.Equal(t, "Could not fetch character list.", res.Message)
			assert.Empty(t, kv.writes, "no cache key may be written")
			assert.Equal(t, "old", readManifest(t, kv).LastUpdatedUTC)
			assert.Equal(t, []string{models.EventRunFinished}, events.types())
		})
	}
}

func TestRunRetriesFailedCharacterOnce(t *testing.T) {
	src := newFakeSource(
		models.RosterEntry{ID: 1, Name: "A", Status: 1, Sequence: seq(1)},
		models.RosterEntry{ID: 2, Name: "B", Status: 1, Sequence: seq(2)},
	)
	src.detailFails[1] = 1 // fails on the first pass only
	kv := newRecordingKV()
	events := &eventLog{}

	res := newTestPipeline(src, kv, events).Run(context.Background())

	require.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 2, res.Cached)

	// the retry restarts from the guide list
	assert.Equal(t, []string{
		"roster",
		"list:1", "detail:1:10",
		"list:2", "detail:2:20",
		"list:1", "detail:1:10",
	}, src.Calls())

	// exactly one document write for A, and the manifest written last
	assert.Equal(t, []string{"guide:2", "guide:1", "manifest"}, kv.writes)
	m := readManifest(t, kv)
	assert.Len(t, m.Characters, 2)

	assert.Equal(t, []string{
		models.EventRunStarted,
		models.EventCharacterFailed,
		models.EventCharacterCached,
		models.EventRunRetrying,
		models.EventCharacterCached,
		models.EventRunFinished,
	}, events.types())
}

func TestRunTerminalFailureIsOmitted(t *testing.T) {
	src := newFakeSource(
		models.RosterEntry{ID: 1, Status: 1, Sequence: seq(1)},
		models.RosterEntry{ID: 2, Status: 1, Sequence: seq(2)},
	)
	src.listFails[1] = 5
	kv := newRecordingKV()

	res := newTestPipeline(src, kv, nil).Run(context.Background())

	require.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Equal(t, []int64{1}, res.Failed)
	assert.Equal(t, "Cached 1 guides.", res.Message)

	// one first-pass attempt plus one retry, never more
	n := 0
	for _, c := range src.Calls() {
		if c == "list:1" {
			n++
		}
	}
	assert.Equal(t, 2, n)

	m := readManifest(t, kv)
	assert.NotContains(t, m.Characters, "1")
	assert.Contains(t, m.Characters, "2")
	_, err := kv.Get(context.Background(), "guide:1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunEmptyGuideListFails(t *testing.T) {
	src := newFakeSource(models.RosterEntry{ID: 1, Status: 1})
	src.guides[1] = nil
	kv := newRecordingKV()

	res := newTestPipeline(src, kv, nil).Run(context.Background())

	require.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Equal(t, []int64{1}, res.Failed)
	assert.NotContains(t, src.Calls(), "detail:1:10")
	assert.Equal(t, []string{"manifest"}, kv.writes)
	assert.Empty(t, readManifest(t, kv).Characters)
}

func TestRunPicksMostLikedGuide(t *testing.T) {
	src := newFakeSource(models.RosterEntry{ID: 1, Status: 1})
	src.guides[1] = []models.GuideCandidate{
		{ID: models.LooseID(`101`), LikeCount: 5},
		{ID: models.LooseID(`102`), LikeCount: 9},
		{ID: models.LooseID(`103`), LikeCount: 9},
		{ID: models.LooseID(`104`), LikeCount: 2},
	}
	kv := newRecordingKV()

	newTestPipeline(src, kv, nil).Run(context.Background())

	assert.Contains(t, src.Calls(), "detail:1:102")
	g, err := cache.NewReader(kv).Guide(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "102", g.GuideMeta.GuideID.String())
	assert.EqualValues(t, 9, g.GuideMeta.Likes)
}

func TestRunStoreFailureKeepsManifestConsistent(t *testing.T) {
	src := newFakeSource(
		models.RosterEntry{ID: 1, Status: 1, Sequence: seq(1)},
		models.RosterEntry{ID: 2, Status: 1, Sequence: seq(2)},
	)
	kv := newRecordingKV()
	kv.fail["guide:1"] = true

	res := newTestPipeline(src, kv, nil).Run(context.Background())

	require.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Equal(t, []int64{1}, res.Failed)
	m := readManifest(t, kv)
	assert.NotContains(t, m.Characters, "1", "manifest must not name a character whose document was not written")
	assert.Contains(t, m.Characters, "2")
}

func TestRunManifestWriteFailure(t *testing.T) {
	src := newFakeSource(models.RosterEntry{ID: 1, Status: 1})
	kv := newRecordingKV()
	kv.fail["manifest"] = true

	res := newTestPipeline(src, kv, nil).Run(context.Background())

	assert.Equal(t, models.RunStatusError, res.Status)
	assert.Equal(t, "Could not write manifest.", res.Message)
}

func TestRunPacesBetweenCharacters(t *testing.T) {
	src := newFakeSource(
		models.RosterEntry{ID: 1, Status: 1},
		models.RosterEntry{ID: 2, Status: 1},
	)
	p := NewPipeline(src, cache.NewWriter(store.NewMemory()), Options{Pacing: 20 * time.Millisecond})

	start := time.Now()
	res := p.Run(context.Background())

	require.Equal(t, models.RunStatusSuccess, res.Status)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.NotEmpty(t, res.RunID)
}

func TestRunInterruptedLeavesPreviousManifest(t *testing.T) {
	src := newFakeSource(models.RosterEntry{ID: 1, Status: 1})
	kv := newRecordingKV()
	p := NewPipeline(src, cache.NewWriter(kv), Options{Pacing: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := p.Run(ctx)

	assert.Equal(t, models.RunStatusError, res.Status)
	assert.Equal(t, []string{"guide:1"}, kv.writes)
}
