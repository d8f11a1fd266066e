package guide

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wuwaguides/internal/auth"
	"wuwaguides/internal/cache"
	"wuwaguides/internal/store"
	"wuwaguides/pkg/models"
)

type fakeRunner struct {
	ran chan string
}

func (f *fakeRunner) RunWithID(ctx context.Context, runID string) models.RunResult {
	f.ran <- runID
	return models.RunResult{Status: models.RunStatusSuccess, RunID: runID}
}

func strPtr(s string) *string { return &s }

func setup(t *testing.T, seed bool) (*gin.Engine, *fakeRunner, auth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv := store.NewMemory()
	if seed {
		w := cache.NewWriter(kv)
		ctx := context.Background()
		doc := models.NormalizedGuide{
			CharacterInfo: models.CharacterInfo{ID: 1501, Name: strPtr("Rover: Spectro")},
			Weapons:       json.RawMessage(`{"b":1,"a":2}`),
		}
		require.NoError(t, w.PutGuide(ctx, 1501, doc))

		m := models.NewManifest()
		m.Characters["1501"] = doc.CharacterInfo
		m.Characters["1102"] = models.CharacterInfo{ID: 1102, Name: strPtr("Sanhua")} // document missing
		m.LastUpdatedUTC = "2025-06-01T00:00:00Z"
		require.NoError(t, w.PutManifest(ctx, m))
	}

	tokens := auth.TokenService{Secret: []byte("s"), Issuer: "test", Duration: time.Hour}
	runner := &fakeRunner{ran: make(chan string, 1)}

	r := gin.New()
	NewHandler(cache.NewReader(kv), runner, tokens, nil).RegisterRoutes(r)
	return r, runner, tokens
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatus(t *testing.T) {
	r, _, _ := setup(t, true)
	w := do(r, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2025-06-01T00:00:00Z", body["last_updated_utc"])
	assert.EqualValues(t, 2, body["cached_characters"])

	empty, _, _ := setup(t, false)
	w = do(empty, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"last_updated_utc":"N/A"`)
}

func TestListCharacters(t *testing.T) {
	r, _, _ := setup(t, true)
	w := do(r, http.MethodGet, "/api/characters", "")
	require.Equal(t, http.StatusOK, w.Code)

	var chars []models.CharacterInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chars))
	require.Len(t, chars, 2)
	assert.Equal(t, "Rover: Spectro", *chars[0].Name)
	assert.Equal(t, "Sanhua", *chars[1].Name)

	empty, _, _ := setup(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, do(empty, http.MethodGet, "/api/characters", "").Code)
}

func TestGetGuide(t *testing.T) {
	r, _, _ := setup(t, true)

	w := do(r, http.MethodGet, "/api/guide/roverspectro", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"weapons":{"b":1,"a":2}`)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/characters/1501/guide", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/guide/Jinhsi", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/guide/Sanhua", "").Code, "document missing")
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/characters/42/guide", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/characters/abc/guide", "").Code)

	empty, _, _ := setup(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, do(empty, http.MethodGet, "/api/guide/Sanhua", "").Code)
}

func TestTrigger(t *testing.T) {
	r, runner, tokens := setup(t, false)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/cron/fetch-guides", "").Code)

	tok, _, err := tokens.Sign("cron", auth.ScopeTrigger)
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/cron/fetch-guides", tok)
	require.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	require.NotEmpty(t, body["run_id"])

	select {
	case id := <-runner.ran:
		assert.Equal(t, body["run_id"], id)
	case <-time.After(2 * time.Second):
		t.Fatal("run was not started")
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) RunWithID(ctx context.Context, runID string) models.RunResult {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return models.RunResult{Status: models.RunStatusError, RunID: runID, Message: "Run interrupted"}
}

func TestWaitDrainsBackgroundRuns(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHandler(cache.NewReader(store.NewMemory()), runner, auth.TokenService{}, nil)
	h.BaseCtx = ctx
	require.NotEmpty(t, h.StartRun("startup"))
	<-runner.started

	waited := make(chan struct{})
	go func() {
		h.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the run finished")
	}
}
