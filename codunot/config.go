//nolint:lll // struct tags can't be split
package codunot

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
	"github.com/go-playground/validator/v10"
)

// structValidator validates Config against its binding tags.
var structValidator = validator.New()

func init() {
	structValidator.SetTagName("binding")
}

const (
	EnvvarSetEnvPrefix = "CODUNOT_ENV_PREFIX"
	DefaultEnvPrefix   = "CODUNOT"

	DefaultDatabase              = "codunot.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond

	DefaultLogLevel          = slog.LevelInfo
	DefaultDatabaseLogLevel  = slog.LevelInfo
	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultProviderLogLevel  = slog.LevelInfo
	DefaultAPILogLevel       = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultBotName       = "Codunot"
	DefaultContextLength = 12
	DefaultHistorySize   = 60

	// Discord caps messages at 2000 characters; replies are chunked
	// well below that so they read like normal chat messages.
	DefaultMaxMessageLen    = 200
	discordMaxMessageLength = 2000

	DefaultMemoryFile      = "codunot_memory.json"
	DefaultGuildConfigFile = "guild_chat_config.json"
	DefaultVotesFile       = "topgg_votes.json"
	DefaultUsageFile       = "usage_counts.json"
	DefaultChatCacheFile   = "chat_cache.json"

	DefaultDiscordGatewayIntent = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentsMessageContent |
		discordgo.IntentsDirectMessages
	DefaultDiscordCustomStatus = "@ me and let's talk"

	DefaultProviderBaseURL        = "https://api.groq.com/openai/v1"
	DefaultTextModel              = "llama-3.3-70b-versatile"
	DefaultVisionModel            = "meta-llama/llama-4-scout-17b-16e-instruct"
	DefaultProviderMaxRetries     = 4
	DefaultProviderMaxTokens      = 512
	DefaultProviderRequestTimeout = 30 * time.Second

	DefaultChessEvalURL     = "https://lichess.org/api/cloud-eval"
	DefaultChessEvalTimeout = 2 * time.Second

	DefaultEgressPacing    = 20 * time.Millisecond
	DefaultGuildSendLimit  = 900
	DefaultGuildSendWindow = time.Minute

	DefaultAPIListen         = "127.0.0.1:5000"
	DefaultListenNetwork     = "tcp"
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
	DefaultCORSMaxAge        = 12 * time.Hour

	DefaultOCRTimeout = 15 * time.Second

	DefaultPingerInterval  = time.Hour
	DefaultPingerIdleAge   = 3 * time.Hour
	DefaultPingerMaxNudges = 2

	DefaultVoteTTL      = 12 * time.Hour
	DefaultVoteCacheTTL = time.Minute
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodOptions,
		http.MethodHead,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
	}
)

// Config is the top-level Codunot configuration, loaded via viper from
// the environment and/or a .env file.
type Config struct {
	// Database is the sqlite path for the message archive
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout bounds bot initialization time
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// BotName is the display name baked into persona prompts
	BotName string `yaml:"bot_name" mapstructure:"bot_name" json:"bot_name"`

	// OwnerID is the discord user ID allowed to use !quiet / !speak
	OwnerID string `yaml:"owner_id" mapstructure:"owner_id" json:"owner_id"`

	// ContextLength is the number of history entries included in prompts
	ContextLength int `yaml:"context_length" mapstructure:"context_length" json:"context_length" binding:"min=1"`

	// HistorySize caps per-channel retained history
	HistorySize int `yaml:"history_size" mapstructure:"history_size" json:"history_size" binding:"min=1"`

	// MaxMessageLen is the outbound chunking limit
	MaxMessageLen int `yaml:"max_message_len" mapstructure:"max_message_len" json:"max_message_len" binding:"min=1,max=2000"`

	MemoryFile      string `yaml:"memory_file" mapstructure:"memory_file" json:"memory_file"`
	GuildConfigFile string `yaml:"guild_config_file" mapstructure:"guild_config_file" json:"guild_config_file"`
	VotesFile       string `yaml:"votes_file" mapstructure:"votes_file" json:"votes_file"`
	UsageFile       string `yaml:"usage_file" mapstructure:"usage_file" json:"usage_file"`
	ChatCacheFile   string `yaml:"chat_cache_file" mapstructure:"chat_cache_file" json:"chat_cache_file"`

	// Discord configures the discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Provider configures the AI provider integration
	Provider *ProviderConfig `yaml:"provider" mapstructure:"provider" json:"provider"`

	// Chess configures the cloud-eval engine endpoint
	Chess *ChessConfig `yaml:"chess" mapstructure:"chess" json:"chess"`

	// Egress configures outbound send pacing and guild rate limiting
	Egress *EgressConfig `yaml:"egress" mapstructure:"egress" json:"egress"`

	// API configures the webhook HTTP server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// OCR configures the OCR collaborator endpoint
	OCR *OCRConfig `yaml:"ocr" mapstructure:"ocr" json:"ocr"`

	// Media configures the media-job webhook collaborator
	Media *MediaConfig `yaml:"media" mapstructure:"media" json:"media"`

	// Pinger configures the dead-channel nudge job
	Pinger *PingerConfig `yaml:"pinger" mapstructure:"pinger" json:"pinger"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. Message content and DM intents are required.
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// CustomStatus is set on the bot user after connecting
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	httpClient *http.Client
}

// ProviderConfig configures the OpenAI-compatible AI provider.
type ProviderConfig struct {
	// Provider API key
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// BaseURL is the OpenAI-compatible endpoint root
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// TextModel handles general/roast/chess chatter
	TextModel string `yaml:"text_model" mapstructure:"text_model" json:"text_model"`

	// VisionModel handles image-understanding requests
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model" json:"vision_model"`

	// MaxRetries caps provider call attempts
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries" binding:"min=1"`

	// MaxTokens caps completion length
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens" json:"max_tokens"`

	// RequestTimeout bounds each individual attempt
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`
}

// ChessConfig configures the cloud-eval engine endpoint.
type ChessConfig struct {
	EvalURL     string        `yaml:"eval_url" mapstructure:"eval_url" json:"eval_url"`
	EvalTimeout time.Duration `yaml:"eval_timeout" mapstructure:"eval_timeout" json:"eval_timeout"`
}

// EgressConfig configures the outbound queue drainer.
type EgressConfig struct {
	// Pacing is the inter-send sleep interval
	Pacing time.Duration `yaml:"pacing" mapstructure:"pacing" json:"pacing"`

	// GuildLimit is the max sends per guild per window
	GuildLimit int `yaml:"guild_limit" mapstructure:"guild_limit" json:"guild_limit" binding:"min=1"`

	// GuildWindow is the sliding-window span for GuildLimit
	GuildWindow time.Duration `yaml:"guild_window" mapstructure:"guild_window" json:"guild_window"`
}

// APIConfig configures the webhook HTTP server.
type APIConfig struct {
	// The address and port on which the server should listen
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix")
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"oneof=tcp tcp4 tcp6 unix"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// TopGGToken authenticates against the top.gg API
	TopGGToken string `yaml:"topgg_token" mapstructure:"topgg_token" json:"topgg_token" log:"[redacted]"`

	// TopGGSecret is the shared secret for vote webhook signatures
	TopGGSecret string `yaml:"topgg_secret" mapstructure:"topgg_secret" json:"topgg_secret" log:"[redacted]"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// OCRConfig configures the external OCR collaborator.
type OCRConfig struct {
	// Endpoint receives POSTed image bytes and returns {"text": ...}.
	// Empty disables OCR (image replies fall back to the vision model alone).
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint" json:"endpoint"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`
}

// MediaConfig configures the media-job (TTS/video/transcription) webhook.
type MediaConfig struct {
	// WebhookURL is advertised to the media provider as the callback target
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url" json:"webhook_url"`

	// ResultBase is the public base URL for /result/{id} lookups
	ResultBase string `yaml:"result_base" mapstructure:"result_base" json:"result_base"`
}

// PingerConfig configures the dead-channel nudge job.
type PingerConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// Interval between scans
	Interval time.Duration `yaml:"interval" mapstructure:"interval" json:"interval"`

	// IdleAge is the last-message age that marks a channel dead
	IdleAge time.Duration `yaml:"idle_age" mapstructure:"idle_age" json:"idle_age"`

	// MaxNudges caps nudges per target per process lifetime
	MaxNudges int `yaml:"max_nudges" mapstructure:"max_nudges" json:"max_nudges"`

	// Targets are channel IDs to watch
	Targets []string `yaml:"targets" mapstructure:"targets" json:"targets"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	MaxAge       time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins: c.AllowOrigins,
		AllowMethods: c.AllowMethods,
		AllowHeaders: c.AllowHeaders,
		MaxAge:       c.MaxAge,
	}
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	providerLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	providerLogLevel.Set(DefaultProviderLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		BotName:               DefaultBotName,
		ContextLength:         DefaultContextLength,
		HistorySize:           DefaultHistorySize,
		MaxMessageLen:         DefaultMaxMessageLen,
		MemoryFile:            DefaultMemoryFile,
		GuildConfigFile:       DefaultGuildConfigFile,
		VotesFile:             DefaultVotesFile,
		UsageFile:             DefaultUsageFile,
		ChatCacheFile:         DefaultChatCacheFile,
		Discord: &DiscordConfig{
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			GatewayIntents:    DefaultDiscordGatewayIntent,
			CustomStatus:      DefaultDiscordCustomStatus,
		},
		Provider: &ProviderConfig{
			BaseURL:        DefaultProviderBaseURL,
			LogLevel:       providerLogLevel,
			TextModel:      DefaultTextModel,
			VisionModel:    DefaultVisionModel,
			MaxRetries:     DefaultProviderMaxRetries,
			MaxTokens:      DefaultProviderMaxTokens,
			RequestTimeout: DefaultProviderRequestTimeout,
		},
		Chess: &ChessConfig{
			EvalURL:     DefaultChessEvalURL,
			EvalTimeout: DefaultChessEvalTimeout,
		},
		Egress: &EgressConfig{
			Pacing:      DefaultEgressPacing,
			GuildLimit:  DefaultGuildSendLimit,
			GuildWindow: DefaultGuildSendWindow,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ListenNetwork:     DefaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS: CORSConfig{
				AllowMethods: append([]string{}, DefaultCORSAllowMethods...),
				AllowHeaders: append([]string{}, DefaultCORSAllowHeaders...),
				AllowOrigins: []string{},
				MaxAge:       DefaultCORSMaxAge,
			},
		},
		OCR: &OCRConfig{
			Timeout: DefaultOCRTimeout,
		},
		Media: &MediaConfig{},
		Pinger: &PingerConfig{
			Interval:  DefaultPingerInterval,
			IdleAge:   DefaultPingerIdleAge,
			MaxNudges: DefaultPingerMaxNudges,
		},
	}
}
