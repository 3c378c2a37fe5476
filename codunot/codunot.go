package codunot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

// App is the composition root: every sub-store is owned here and passed
// explicitly to the handlers that need it. There are no package-level
// singletons.
type App struct {
	config *Config
	logger *slog.Logger

	discord *Discord
	memory  *MemoryStore
	mute    *MuteController
	egress  *EgressQueue
	guilds  *GuildRateLimiter
	allow   *GuildChatConfig
	router  *ProviderRouter
	human   *Humanizer
	images  *ImagePipeline
	lichess *LichessClient
	archive *Archive
	cache   *ChatCacheWriter
	usage   *UsageCounter
	votes   *VoteStore
	api     *API
	pinger  *DeadChannelPinger

	chessMu sync.Mutex
	chess   map[string]*ChessSession

	removeHandlerFuncs []func()
}

// New assembles an App from the given config. Nothing is started; call
// Run to connect and serve.
func New(config *Config) (*App, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}
	if config.Discord == nil || config.Discord.Token == "" {
		return nil, errors.New("discord token is required")
	}
	if config.Provider == nil || config.Provider.Token == "" {
		return nil, errors.New("provider token is required")
	}
	if err := structValidator.Struct(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger := newLogger("codunot", config.LogLevel)
	slog.SetDefault(logger)

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Provider.RequestTimeout}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	app := &App{
		config:  config,
		logger:  logger,
		discord: newDiscord(config.Discord),
		memory:  NewMemoryStore(config.MemoryFile, config.HistorySize, logger),
		mute:    NewMuteController(),
		guilds: NewGuildRateLimiter(
			config.Egress.GuildLimit,
			config.Egress.GuildWindow,
		),
		allow:   NewGuildChatConfig(config.GuildConfigFile, logger),
		router:  NewProviderRouter(config.Provider, httpClient, rng),
		human:   NewHumanizer(rng),
		lichess: NewLichessClient(config.Chess, logger),
		cache:   NewChatCacheWriter(config.ChatCacheFile, logger),
		usage:   NewUsageCounter(config.UsageFile, logger),
		votes:   NewVoteStore(config.VotesFile, logger),
		chess:   map[string]*ChessSession{},
	}

	var ocr OCRClient
	if config.OCR != nil && config.OCR.Endpoint != "" {
		ocr = NewHTTPOCRClient(config.OCR)
	}
	app.images = NewImagePipeline(nil, ocr, logger)

	archive, err := NewArchive(
		config.Database,
		config.DatabaseSlowThreshold,
		config.DatabaseLogLevel,
	)
	if err != nil {
		return nil, fmt.Errorf("error opening archive: %w", err)
	}
	app.archive = archive

	app.api = newAPI(config.API, app.votes)
	return app, nil
}

// chessSession returns the channel's active chess session, if any.
func (app *App) chessSession(chanID string) (*ChessSession, bool) {
	app.chessMu.Lock()
	defer app.chessMu.Unlock()
	s, ok := app.chess[chanID]
	return s, ok
}

// newChessSession replaces the channel's session with a fresh board.
func (app *App) newChessSession(chanID string) *ChessSession {
	app.chessMu.Lock()
	defer app.chessMu.Unlock()
	s := NewChessSession(app.lichess, app.logger)
	app.chess[chanID] = s
	return s
}

func (app *App) endChessSession(chanID string) {
	app.chessMu.Lock()
	defer app.chessMu.Unlock()
	delete(app.chess, chanID)
}

// Run connects to discord and serves until ctx is cancelled or a
// subsystem fails.
func (app *App) Run(ctx context.Context) error {
	startCtx, startCancel := context.WithTimeout(ctx, app.config.StartupTimeout)
	defer startCancel()

	session, err := app.discord.newSession()
	if err != nil {
		return err
	}
	app.discord.session = session
	app.egress = NewEgressQueue(session, app.config.Egress.Pacing, app.logger)

	if app.config.Pinger != nil && app.config.Pinger.Enabled {
		app.pinger = NewDeadChannelPinger(
			app.config.Pinger,
			app.memory,
			app.egress,
			rand.New(rand.NewSource(time.Now().UnixNano())),
			app.logger,
		)
	}

	app.removeHandlerFuncs = append(
		app.removeHandlerFuncs,
		session.AddHandler(app.discord.handlerReady()),
		session.AddHandler(app.discord.handlerConnect()),
		session.AddHandler(app.discord.handlerDisconnect()),
		session.AddHandler(
			func(s *discordgo.Session, m *discordgo.MessageCreate) {
				app.HandleMessage(ctx, m.Message)
			},
		),
	)

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}
	app.logger.Info("discord session open")
	if startCtx.Err() != nil {
		return fmt.Errorf("startup timed out: %w", startCtx.Err())
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(
		func() error {
			app.egress.Drain(groupCtx)
			return nil
		},
	)
	group.Go(
		func() error {
			return app.api.Serve(groupCtx)
		},
	)
	if app.pinger != nil {
		group.Go(
			func() error {
				app.pinger.Run(groupCtx)
				return nil
			},
		)
	}

	runErr := group.Wait()
	app.shutdown()
	return runErr
}

func (app *App) shutdown() {
	for _, remove := range app.removeHandlerFuncs {
		remove()
	}
	if app.discord.session != nil {
		if err := app.discord.session.Close(); err != nil {
			app.logger.Error("error closing discord session", tint.Err(err))
		}
	}
	if err := app.memory.Close(); err != nil {
		app.logger.Error("error persisting memory on shutdown", tint.Err(err))
	}
	app.logger.Info("shutdown complete")
}
