package scraper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wuwaguides/pkg/models"
)

var errNoGuides = errors.New("no guides available")

// Options configure a Pipeline. Zero values give the production behaviour
// except Pacing, which is taken as given so tests can run without delays.
type Options struct {
	Language string
	Pacing   time.Duration // pause after every character, success or not
	Logger   *zap.Logger
	Events   Broadcaster
	Now      func() time.Time
	NewRunID func() string
}

// Pipeline fetches every active character's best guide and caches it.
// Characters are processed one at a time; the pacing delay is the rate limit
// we promise the guide service, so never run them in parallel.
type Pipeline struct {
	src      Source
	sink     Sink
	language string
	pacing   time.Duration
	logger   *zap.Logger
	events   Broadcaster
	now      func() time.Time
	newRunID func() string
}

func NewPipeline(src Source, sink Sink, opts Options) *Pipeline {
	p := &Pipeline{
		src:      src,
		sink:     sink,
		language: opts.Language,
		pacing:   opts.Pacing,
		logger:   opts.Logger,
		events:   opts.Events,
		now:      opts.Now,
		newRunID: opts.NewRunID,
	}
	if p.language == "" {
		p.language = "en"
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.Named("pipeline")
	if p.events == nil {
		p.events = nopBroadcaster{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	return p
}

// Run performs one full refresh. Only a missing roster fails the run; a
// character that cannot be fetched is retried once at the end and otherwise
// left out of the manifest. Documents already written are never rolled back.
func (p *Pipeline) Run(ctx context.Context) models.RunResult {
	return p.RunWithID(ctx, p.newRunID())
}

// RunWithID is Run with a caller-chosen run id, so a trigger can hand the id
// back before the run finishes.
func (p *Pipeline) RunWithID(ctx context.Context, runID string) models.RunResult {
	res := models.RunResult{RunID: runID, StartedAt: p.now().UTC()}
	log := p.logger.With(zap.String("run_id", res.RunID))
	log.Info("starting guide fetch")

	roster, err := p.src.Roster(ctx)
	if err != nil || len(roster) == 0 {
		log.Error("could not fetch character list, aborting", zap.Error(err))
		return p.finish(res, models.RunStatusError, "Could not fetch character list.")
	}

	queue := Queue(roster)
	log.Info("characters to process", zap.Int("queued", len(queue)), zap.Int("roster", len(roster)))
	p.emit(models.RunEvent{Type: models.EventRunStarted, RunID: res.RunID,
		Message: fmt.Sprintf("%d characters queued", len(queue))})

	manifest := models.NewManifest()

	var failed []models.RosterEntry
	for _, entry := range queue {
		if err := p.processAndStore(ctx, res.RunID, entry, manifest); err != nil {
			failed = append(failed, entry)
		}
		if err := p.pace(ctx); err != nil {
			return p.finish(res, models.RunStatusError, "Run interrupted: "+err.Error())
		}
	}

	if len(failed) > 0 {
		log.Info("retrying failed characters once", zap.Int("failed", len(failed)))
		p.emit(models.RunEvent{Type: models.EventRunRetrying, RunID: res.RunID,
			Message: fmt.Sprintf("retrying %d characters", len(failed))})

		for _, entry := range failed {
			if err := p.processAndStore(ctx, res.RunID, entry, manifest); err != nil {
				log.Warn("final failure after retry",
					zap.Int64("character_id", entry.ID),
					zap.String("name", entry.Name),
					zap.Error(err),
				)
				res.Failed = append(res.Failed, entry.ID)
			}
			if err := p.pace(ctx); err != nil {
				return p.finish(res, models.RunStatusError, "Run interrupted: "+err.Error())
			}
		}
	}

	// Last write of the run: every id in the manifest already has its document.
	manifest.Stamp(p.now())
	if err := p.sink.PutManifest(ctx, manifest); err != nil {
		log.Error("could not write manifest", zap.Error(err))
		return p.finish(res, models.RunStatusError, "Could not write manifest.")
	}

	res.Cached = len(manifest.Characters)
	log.Info("guide fetch complete", zap.Int("cached", res.Cached), zap.Int("failed", len(res.Failed)))
	return p.finish(res, models.RunStatusSuccess, fmt.Sprintf("Cached %d guides.", res.Cached))
}

// processAndStore handles one character end to end and records it in the
// manifest only once its document is stored.
func (p *Pipeline) processAndStore(ctx context.Context, runID string, entry models.RosterEntry, manifest *models.Manifest) error {
	log := p.logger.With(
		zap.String("run_id", runID),
		zap.Int64("character_id", entry.ID),
		zap.String("name", entry.Name),
	)

	doc, err := p.process(ctx, entry)
	if err == nil {
		err = p.sink.PutGuide(ctx, entry.ID, doc)
	}
	if err != nil {
		log.Warn("character failed", zap.Error(err))
		p.emit(models.RunEvent{Type: models.EventCharacterFailed, RunID: runID,
			CharacterID: entry.ID, Name: entry.Name, Message: err.Error()})
		return err
	}

	manifest.Characters[strconv.FormatInt(entry.ID, 10)] = doc.CharacterInfo
	log.Info("cached guide", zap.String("guide_id", doc.GuideMeta.GuideID.String()))
	p.emit(models.RunEvent{Type: models.EventCharacterCached, RunID: runID,
		CharacterID: entry.ID, Name: entry.Name})
	return nil
}

// process fetches and transforms one character. A retry starts over from the
// guide list; nothing from an earlier attempt is reused.
func (p *Pipeline) process(ctx context.Context, entry models.RosterEntry) (models.NormalizedGuide, error) {
	guides, err := p.src.Guides(ctx, entry.ID)
	if err != nil {
		return models.NormalizedGuide{}, fmt.Errorf("guide list: %w", err)
	}

	best, ok := SelectGuide(guides)
	if !ok {
		return models.NormalizedGuide{}, fmt.Errorf("guide list: %w", errNoGuides)
	}

	detail, err := p.src.GuideDetail(ctx, entry.ID, best.ID)
	if err != nil {
		return models.NormalizedGuide{}, fmt.Errorf("guide %s detail: %w", best.ID.String(), err)
	}
	if detail == nil {
		return models.NormalizedGuide{}, fmt.Errorf("guide %s detail: empty", best.ID.String())
	}

	return Transform(entry, best, detail, p.language), nil
}

func (p *Pipeline) pace(ctx context.Context) error {
	if p.pacing <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.pacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pipeline) finish(res models.RunResult, status, msg string) models.RunResult {
	res.Status = status
	res.Message = msg
	res.FinishedAt = p.now().UTC()
	p.emit(models.RunEvent{Type: models.EventRunFinished, RunID: res.RunID, Message: msg})
	return res
}

func (p *Pipeline) emit(ev models.RunEvent) {
	ev.At = p.now().UTC()
	p.events.BroadcastJSON(ev)
}
