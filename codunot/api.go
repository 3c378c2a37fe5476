package codunot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const (
	apiPathMediaWebhook = "/webhook"
	apiPathMediaResult  = "/result/:id"
	apiPathHealth       = "/health"
	apiPathTopGGWebhook = "/topgg-webhook"

	topggSignatureHeader = "x-topgg-signature"
	eventJobCompleted    = "job.completed"
	eventVoteCreate      = "vote.create"

	pprofPrefix = "/debug"
)

// MediaResults holds completed media-job payloads by request ID until
// they're fetched.
type MediaResults struct {
	mu      sync.Mutex
	results map[string]map[string]any
}

func NewMediaResults() *MediaResults {
	return &MediaResults{results: map[string]map[string]any{}}
}

func (r *MediaResults) Set(id string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[id] = data
}

func (r *MediaResults) Get(id string) (map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.results[id]
	return data, ok
}

// API is the webhook HTTP server: media-job callbacks, media result
// polling, health, and the top.gg vote webhook.
type API struct {
	config     *APIConfig
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	results    *MediaResults
	votes      *VoteStore
}

func newAPI(config *APIConfig, votes *VoteStore) *API {
	logger := newLogger("api", config.LogLevel)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := &API{
		config:  config,
		logger:  logger,
		engine:  engine,
		results: NewMediaResults(),
		votes:   votes,
	}

	engine.Use(api.requestLogger())
	if len(config.CORS.AllowOrigins) > 0 {
		engine.Use(cors.New(config.CORS.GINConfig()))
	}
	ginPprof.Register(engine, pprofPrefix+"/pprof")

	engine.GET(apiPathHealth, api.handleHealth)
	engine.POST(apiPathMediaWebhook, api.handleMediaWebhook)
	engine.GET(apiPathMediaResult, api.handleMediaResult)
	engine.POST(apiPathTopGGWebhook, api.handleTopGGWebhook)

	api.httpServer = &http.Server{
		Handler:           engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return api
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type mediaWebhookPayload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// handleMediaWebhook records a media-job callback keyed by its request
// ID. A payload counts as completed when the event says so, or when it
// already carries a result.
func (a *API) handleMediaWebhook(c *gin.Context) {
	var payload mediaWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.Data == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	requestID, _ := payload.Data["job_request_id"].(string)
	if requestID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	_, hasResultURL := payload.Data["result_url"]
	_, hasTranscription := payload.Data["transcription"]
	_, hasText := payload.Data["text"]
	if payload.Event == eventJobCompleted || hasResultURL || hasTranscription || hasText {
		a.results.Set(requestID, payload.Data)
		a.logger.Info("recorded media job result", "request_id", requestID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) handleMediaResult(c *gin.Context) {
	id := c.Param("id")
	if data, ok := a.results.Get(id); ok {
		c.JSON(http.StatusOK, gin.H{"status": "done", "data": data})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}

type topggVotePayload struct {
	Type string `json:"type"`
	Data struct {
		User struct {
			PlatformID string `json:"platform_id"`
		} `json:"user"`
	} `json:"data"`
}

// handleTopGGWebhook verifies the vote signature and records the vote.
// Verification failures return a bare 401 that never reveals whether
// the timestamp or the MAC was wrong.
func (a *API) handleTopGGWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	signature := c.GetHeader(topggSignatureHeader)
	if !VerifyTopGGSignature(a.config.TopGGSecret, signature, body) {
		a.logger.Warn("rejected vote webhook signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var payload topggVotePayload
	if err = json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.Type == eventVoteCreate && payload.Data.User.PlatformID != "" {
		a.votes.RecordVote(payload.Data.User.PlatformID)
		a.logger.Info("recorded vote", "user_id", payload.Data.User.PlatformID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Serve listens and serves until ctx is cancelled.
func (a *API) Serve(ctx context.Context) error {
	listener, err := net.Listen(a.config.ListenNetwork, a.config.Listen)
	if err != nil {
		return err
	}
	a.listener = listener
	a.logger.Info("webhook server listening", "listen", a.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()
		if err = a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("webhook server shutdown error", tint.Err(err))
		}
		return nil
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
