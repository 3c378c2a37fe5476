package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/codunot/codunot/codunot"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = codunot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "codunot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes log level strings into *slog.LevelVar
// while unmarshaling the viper config.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", codunot.DefaultDatabase)
	viper.SetDefault("database_log_level", codunot.DefaultDatabaseLogLevel.String())
	viper.SetDefault("database_slow_threshold", codunot.DefaultDatabaseSlowThreshold)

	viper.SetDefault("log_level", codunot.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", codunot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", codunot.DefaultShutdownTimeout)

	viper.SetDefault("bot_name", codunot.DefaultBotName)
	viper.SetDefault("owner_id", "")
	viper.SetDefault("context_length", codunot.DefaultContextLength)
	viper.SetDefault("history_size", codunot.DefaultHistorySize)
	viper.SetDefault("max_message_len", codunot.DefaultMaxMessageLen)

	viper.SetDefault("memory_file", codunot.DefaultMemoryFile)
	viper.SetDefault("guild_config_file", codunot.DefaultGuildConfigFile)
	viper.SetDefault("votes_file", codunot.DefaultVotesFile)
	viper.SetDefault("usage_file", codunot.DefaultUsageFile)
	viper.SetDefault("chat_cache_file", codunot.DefaultChatCacheFile)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.log_level", codunot.DefaultDiscordLogLevel.String())
	viper.SetDefault(
		"discord.discordgo_log_level",
		codunot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault("discord.gateway_intents", codunot.DefaultDiscordGatewayIntent)
	viper.SetDefault("discord.custom_status", codunot.DefaultDiscordCustomStatus)

	// Provider config
	viper.SetDefault("provider.token", "")
	viper.SetDefault("provider.base_url", codunot.DefaultProviderBaseURL)
	viper.SetDefault("provider.log_level", codunot.DefaultProviderLogLevel.String())
	viper.SetDefault("provider.text_model", codunot.DefaultTextModel)
	viper.SetDefault("provider.vision_model", codunot.DefaultVisionModel)
	viper.SetDefault("provider.max_retries", codunot.DefaultProviderMaxRetries)
	viper.SetDefault("provider.max_tokens", codunot.DefaultProviderMaxTokens)
	viper.SetDefault("provider.request_timeout", codunot.DefaultProviderRequestTimeout)

	// Chess config
	viper.SetDefault("chess.eval_url", codunot.DefaultChessEvalURL)
	viper.SetDefault("chess.eval_timeout", codunot.DefaultChessEvalTimeout)

	// Egress config
	viper.SetDefault("egress.pacing", codunot.DefaultEgressPacing)
	viper.SetDefault("egress.guild_limit", codunot.DefaultGuildSendLimit)
	viper.SetDefault("egress.guild_window", codunot.DefaultGuildSendWindow)

	// Webhook/API server config
	viper.SetDefault("api.listen", codunot.DefaultAPIListen)
	viper.SetDefault("api.listen_network", codunot.DefaultListenNetwork)
	viper.SetDefault("api.log_level", codunot.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", codunot.DefaultReadTimeout)
	viper.SetDefault("api.read_header_timeout", codunot.DefaultReadHeaderTimeout)
	viper.SetDefault("api.write_timeout", codunot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", codunot.DefaultIdleTimeout)
	viper.SetDefault("api.topgg_secret", "")
	viper.SetDefault("api.cors.allow_headers", codunot.DefaultCORSAllowHeaders)
	viper.SetDefault("api.cors.allow_methods", codunot.DefaultCORSAllowMethods)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.max_age", codunot.DefaultCORSMaxAge)

	// OCR collaborator
	viper.SetDefault("ocr.endpoint", "")
	viper.SetDefault("ocr.timeout", codunot.DefaultOCRTimeout)

	// Media job webhook collaborator
	viper.SetDefault("media.webhook_url", "")
	viper.SetDefault("media.result_base", "")

	// Dead-channel pinger
	viper.SetDefault("pinger.enabled", false)
	viper.SetDefault("pinger.interval", codunot.DefaultPingerInterval)
	viper.SetDefault("pinger.idle_age", codunot.DefaultPingerIdleAge)
	viper.SetDefault("pinger.max_nudges", codunot.DefaultPingerMaxNudges)
	viper.SetDefault("pinger.targets", []string{})

	fatalErr := func(err error) {
		if err != nil {
			log.Fatalf("error: %v", err)
		}
	}

	// The deployment environment uses these exact (unprefixed) variable
	// names, so bind them explicitly alongside the prefixed forms.
	fatalErr(viper.BindEnv("discord.token", "DISCORD_TOKEN"))
	fatalErr(viper.BindEnv("provider.token", "GROQ_API_KEY"))
	fatalErr(viper.BindEnv("bot_name", "BOT_NAME"))
	fatalErr(viper.BindEnv("context_length", "CONTEXT_LENGTH"))
	fatalErr(viper.BindEnv("api.topgg_token", "TOPGG_TOKEN"))
	fatalErr(viper.BindEnv("api.topgg_secret", "TOPGG_WEBHOOK_AUTH"))
	fatalErr(viper.BindEnv("media.webhook_url", "DEAPI_WEBHOOK_URL"))
	fatalErr(viper.BindEnv("media.result_base", "DEAPI_RESULT_BASE"))
	fatalErr(viper.BindEnv("api.port", "PORT"))

	envPrefix := os.Getenv(codunot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = codunot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	viper.Set(
		"api.cors.allow_headers",
		viper.GetStringSlice("api.cors.allow_headers"),
	)
	viper.Set(
		"api.cors.allow_methods",
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	viper.Set(
		"api.cors.allow_origins",
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	viper.Set(
		"pinger.targets",
		viper.GetStringSlice("pinger.targets"),
	)

	// PORT overrides api.listen when set (platform convention)
	if port := viper.GetString("api.port"); port != "" {
		viper.Set("api.listen", ":"+port)
	}

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"provider.log_level",
		"api.log_level",
	} {
		lvlVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, lvlVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
