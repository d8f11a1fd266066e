package guide

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wuwaguides/internal/auth"
	"wuwaguides/internal/cache"
	"wuwaguides/pkg/models"
)

// Runner starts a pipeline run. *scraper.Pipeline implements it.
type Runner interface {
	RunWithID(ctx context.Context, runID string) models.RunResult
}

// Handler serves cached guides and the cron trigger. It only reads the cache;
// the pipeline is the sole writer.
type Handler struct {
	Reader *cache.Reader
	Runner Runner
	Tokens auth.TokenService
	Logger *zap.Logger

	// BaseCtx bounds background runs; cancel it on shutdown.
	BaseCtx context.Context

	runs sync.WaitGroup
}

func NewHandler(reader *cache.Reader, runner Runner, tokens auth.TokenService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Reader:  reader,
		Runner:  runner,
		Tokens:  tokens,
		Logger:  logger.Named("api"),
		BaseCtx: context.Background(),
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.status)

	api := r.Group("/api")
	api.GET("/characters", h.listCharacters)
	api.GET("/characters/:id/guide", h.getGuideByID)
	api.GET("/guide/:name", h.getGuideByName) // name match ignores case, spaces and colons

	cron := api.Group("/cron", auth.RequireScope(h.Tokens, auth.ScopeTrigger))
	cron.GET("/fetch-guides", h.trigger)
	cron.POST("/fetch-guides", h.trigger)
}

func (h *Handler) status(c *gin.Context) {
	resp := gin.H{
		"status":            "Wuthering Waves Guide API is running.",
		"last_updated_utc":  "N/A",
		"cached_characters": 0,
	}
	m, err := h.Reader.Manifest(c.Request.Context())
	switch {
	case err == nil:
		resp["last_updated_utc"] = m.LastUpdatedUTC
		resp["cached_characters"] = len(m.Characters)
	case !errors.Is(err, cache.ErrNotFound):
		h.Logger.Error("read manifest", zap.Error(err))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listCharacters(c *gin.Context) {
	chars, err := h.Reader.Characters(c.Request.Context())
	if err != nil {
		h.manifestError(c, err)
		return
	}
	c.JSON(http.StatusOK, chars)
}

func (h *Handler) getGuideByName(c *gin.Context) {
	name := c.Param("name")
	info, err := h.Reader.FindByName(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			if _, mErr := h.Reader.Manifest(c.Request.Context()); mErr != nil {
				h.manifestError(c, mErr)
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "Guide for character '" + name + "' not found in manifest."})
			return
		}
		h.manifestError(c, err)
		return
	}
	h.writeGuide(c, info.ID, name)
}

func (h *Handler) getGuideByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid character id"})
		return
	}
	h.writeGuide(c, id, c.Param("id"))
}

func (h *Handler) writeGuide(c *gin.Context, id int64, label string) {
	raw, err := h.Reader.GuideJSON(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cached guide for '" + label + "' not found on server."})
			return
		}
		h.Logger.Error("read guide", zap.Int64("character_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	// stored text is already the JSON document
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(raw))
}

// trigger starts a run in the background and returns at once; the caller
// never sees the run's result.
func (h *Handler) trigger(c *gin.Context) {
	var subject string
	if claims := auth.MustGetClaims(c); claims != nil {
		subject = claims.Subject
	}
	runID := h.StartRun(subject)

	c.JSON(http.StatusAccepted, gin.H{
		"status":  models.RunStatusSuccess,
		"message": "Guide fetching process started in the background.",
		"run_id":  runID,
	})
}

// StartRun launches a pipeline run bound to BaseCtx and returns its id.
// requestedBy is only logged.
func (h *Handler) StartRun(requestedBy string) string {
	runID := uuid.NewString()
	log := h.Logger.With(zap.String("run_id", runID))
	if requestedBy != "" {
		log = log.With(zap.String("subject", requestedBy))
	}
	log.Info("fetch triggered")

	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		res := h.Runner.RunWithID(h.BaseCtx, runID)
		log.Info("background fetch finished",
			zap.String("status", res.Status),
			zap.String("message", res.Message),
			zap.Int("cached", res.Cached),
			zap.Int64s("failed", res.Failed),
		)
	}()
	return runID
}

// Wait blocks until every run started by StartRun has returned. Call it after
// canceling BaseCtx and before closing the store the runs write to.
func (h *Handler) Wait() {
	h.runs.Wait()
}

func (h *Handler) manifestError(c *gin.Context, err error) {
	if errors.Is(err, cache.ErrNotFound) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Cache manifest not found. The fetch job may not have run yet."})
		return
	}
	h.Logger.Error("read manifest", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load manifest."})
}
