package codunot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// HandleMessage runs one inbound message through the pipeline: admission,
// owner overrides, mute gate, mode commands, then the image, chess, roast
// or general branch. At most one reply (possibly chunked) leaves per
// inbound message.
func (app *App) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	botID := app.discord.BotUserID()
	if botID != "" && m.Author.ID == botID {
		return
	}
	if m.GuildID != "" {
		if !messageMentionsUser(m, botID) {
			return
		}
		if !app.allow.Allows(m.GuildID, m.ChannelID) {
			return
		}
		if !app.guilds.Allow(m.GuildID) {
			app.logger.Warn(
				"guild send budget exhausted, dropping message",
				"guild_id", m.GuildID,
				"channel_id", m.ChannelID,
			)
			return
		}
	}

	chanID := channelKey(m)
	content := stripMention(m.Content, botID)

	logger := app.logger.With(
		"channel_id", chanID,
		"user_id", m.Author.ID,
	)
	ctx = WithLogger(ctx, logger)

	if app.config.OwnerID != "" && m.Author.ID == app.config.OwnerID {
		if d, spelled, ok := ParseQuiet(content); ok {
			app.mute.MuteFor(chanID, d)
			logger.Info("channel muted by owner", "duration", d)
			app.sendReply(
				m, chanID, app.memory.GetMode(chanID), KindGeneral,
				fmt.Sprintf("I'll stop yapping for %s", spelled), false,
			)
			return
		}
		if strings.TrimSpace(content) == cmdSpeak {
			app.mute.Unmute(chanID)
			logger.Info("channel unmuted by owner")
			app.sendReply(
				m, chanID, app.memory.GetMode(chanID), KindGeneral,
				ackSpeak, false,
			)
			return
		}
	}

	if app.mute.Muted(chanID) {
		return
	}

	if ack, handled := app.handleModeCommand(chanID, content); handled {
		_ = app.memory.Persist()
		app.sendReply(
			m, chanID, app.memory.GetMode(chanID), KindGeneral, ack, false,
		)
		return
	}

	username := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		username = m.Member.Nick
	}
	mode := app.memory.GetMode(chanID)

	app.memory.Add(chanID, username, content)
	app.archive.RecordInbound(
		InboundMessage{
			MessageID: m.ID,
			ChannelID: m.ChannelID,
			GuildID:   m.GuildID,
			UserID:    m.Author.ID,
			Username:  username,
			Content:   content,
			Mode:      string(mode),
		},
	)
	defer func() {
		_ = app.memory.Persist()
	}()

	if HasImage(m) || urlPattern.MatchString(content) {
		if data, mimeType, ok := app.images.ExtractImageBytes(ctx, m); ok {
			app.handleImage(ctx, m, chanID, mode, content, data, mimeType)
			return
		}
	}

	if mode == ModeChess {
		session, ok := app.chessSession(chanID)
		if !ok {
			// chess mode survived a restart but the board didn't
			session = app.newChessSession(chanID)
		}
		app.handleChess(ctx, m, chanID, session, content)
		return
	}

	if mode == ModeRoast {
		app.handleRoast(ctx, m, chanID, username, content)
		return
	}

	app.handleGeneral(ctx, m, chanID, mode)
}

// handleModeCommand applies a public mode command and returns its
// acknowledgement. "!roastmode <name>" also pins the roast target.
func (app *App) handleModeCommand(chanID string, content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", false
	}
	switch strings.ToLower(fields[0]) {
	case cmdFunMode:
		app.memory.SetMode(chanID, ModeFunny)
		return ackFunMode, true
	case cmdRoastMode:
		app.memory.SetMode(chanID, ModeRoast)
		target := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
		app.memory.SetRoastTarget(chanID, target)
		return ackRoastMode, true
	case cmdSeriousMode:
		app.memory.SetMode(chanID, ModeSerious)
		return ackSeriousMode, true
	case cmdChessMode:
		app.memory.SetMode(chanID, ModeChess)
		app.newChessSession(chanID)
		return ackChessMode, true
	}
	return "", false
}

func (app *App) handleImage(
	ctx context.Context,
	m *discordgo.Message,
	chanID string,
	mode Mode,
	content string,
	data []byte,
	mimeType string,
) {
	ocrText := app.images.OCRText(ctx, data)
	prompt := BuildImagePrompt(personaImage, content, ocrText)

	fallback := false
	reply, err := app.router.CompleteVision(ctx, prompt, data, mimeType)
	if err != nil {
		reply = imageFallbackReply
		fallback = true
	} else {
		reply = app.human.Humanize(reply, mode)
	}
	app.usage.Increment(m.Author.ID)
	app.sendReply(m, chanID, mode, KindImage, reply, fallback)
}

func (app *App) handleChess(
	ctx context.Context,
	m *discordgo.Message,
	chanID string,
	session *ChessSession,
	content string,
) {
	input := session.Classify(content)

	switch input.Kind {
	case ChessInputResign:
		session.Resign()
		verdict := session.Verdict()
		app.endChessSession(chanID)
		app.memory.SetMode(chanID, ModeFunny)
		app.sendReply(m, chanID, ModeChess, KindGeneral, verdict, false)

	case ChessInputChatter:
		prompt := BuildChessChatterPrompt(session.FEN(), content)
		fallback := false
		reply, err := app.router.Complete(ctx, prompt, ModeChess, KindChessChat)
		if err != nil {
			reply = app.router.Fallback()
			fallback = true
		}
		app.usage.Increment(m.Author.ID)
		app.sendReply(m, chanID, ModeChess, KindChessChat, reply, fallback)

	case ChessInputMove:
		if err := session.Push(input.Move); err != nil {
			app.sendReply(
				m, chanID, ModeChess, KindGeneral, chessIllegalMoveReply, false,
			)
			return
		}
		if session.GameOver() {
			verdict := session.Verdict()
			app.endChessSession(chanID)
			app.memory.SetMode(chanID, ModeFunny)
			app.sendReply(m, chanID, ModeChess, KindGeneral, verdict, false)
			return
		}

		uci, san, err := session.EngineMove(ctx)
		if err != nil {
			// board unchanged, session stays alive
			app.sendReply(
				m, chanID, ModeChess, KindGeneral, chessEngineGlitchReply, false,
			)
			return
		}
		reply := fmt.Sprintf("%s (%s)", uci, san)
		if session.GameOver() {
			reply += "\n" + session.Verdict()
			app.endChessSession(chanID)
			app.memory.SetMode(chanID, ModeFunny)
		}
		app.sendReply(m, chanID, ModeChess, KindGeneral, reply, false)

	case ChessInputIllegal:
		app.sendReply(
			m, chanID, ModeChess, KindGeneral, chessIllegalMoveReply, false,
		)

	case ChessInputNotAMove:
		app.sendReply(
			m, chanID, ModeChess, KindGeneral, chessNotAMoveReply, false,
		)
	}
}

func (app *App) handleRoast(
	ctx context.Context,
	m *discordgo.Message,
	chanID string,
	username string,
	content string,
) {
	prompt := BuildRoastPrompt(
		app.memory.GetRoastTarget(chanID),
		username,
		content,
	)
	fallback := false
	reply, err := app.router.Complete(ctx, prompt, ModeRoast, KindRoast)
	if err != nil {
		reply = app.router.Fallback()
		fallback = true
	} else {
		reply = app.human.Humanize(reply, ModeRoast)
	}
	app.usage.Increment(m.Author.ID)
	app.sendReply(m, chanID, ModeRoast, KindRoast, reply, fallback)
}

func (app *App) handleGeneral(
	ctx context.Context,
	m *discordgo.Message,
	chanID string,
	mode Mode,
) {
	history := app.memory.RecentFlat(chanID, app.config.ContextLength)
	prompt := BuildGeneralPrompt(app.config.BotName, mode, history)

	fallback := false
	reply, err := app.router.Complete(ctx, prompt, mode, KindGeneral)
	if err != nil {
		reply = app.router.Fallback()
		fallback = true
	} else {
		reply = app.human.Humanize(reply, mode)
		app.cache.Append(prompt, reply)
	}
	app.usage.Increment(m.Author.ID)
	app.sendReply(m, chanID, mode, KindGeneral, reply, fallback)
}

// sendReply archives, remembers and enqueues one outbound reply. Replies
// over the chunk limit are split with continuation marks before queueing.
func (app *App) sendReply(
	m *discordgo.Message,
	chanID string,
	mode Mode,
	kind PromptKind,
	reply string,
	fallback bool,
) {
	if strings.TrimSpace(reply) == "" {
		return
	}
	app.archive.RecordOutbound(
		OutboundReply{
			ChannelID: m.ChannelID,
			Mode:      string(mode),
			Kind:      string(kind),
			Content:   reply,
			Fallback:  fallback,
		},
	)
	app.memory.Add(chanID, app.config.BotName, reply)
	for _, chunk := range SplitMessage(reply, app.config.MaxMessageLen) {
		app.egress.Enqueue(m.ChannelID, chunk)
	}
}
