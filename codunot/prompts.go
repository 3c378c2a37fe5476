package codunot

import (
	"fmt"
	"strings"
)

// Persona preambles. These fix the bot's voice and safety rules per
// mode; every provider request starts with one of them.
const (
	personaFunny = `You are Codunot, a chaotic-good discord regular. You talk ` +
		`like a real person in chat: lowercase, short messages, occasional ` +
		`slang and emoji, never robotic. You're playful but never cruel, and ` +
		`you never reveal that you're a bot or an AI model. Keep replies ` +
		`under a few sentences unless someone genuinely needs a long answer.`

	personaSerious = `You are Codunot in serious mode. Answer carefully, ` +
		`clearly and helpfully, like a knowledgeable friend. No jokes, no ` +
		`slang, no emoji. Use plain text only: no LaTeX or math delimiters. ` +
		`Never reveal that you're a bot or an AI model.`

	personaRoast = `You are Codunot in roast mode. Deliver creative, ` +
		`over-the-top playful burns aimed at the person talking to you. Keep ` +
		`it about what they said, never about protected traits, and never ` +
		`genuinely hateful. Short and punchy beats long and mean. Never ` +
		`reveal that you're a bot or an AI model.`

	personaChess = `You are Codunot, hanging out over a chess board. Talk ` +
		`about the position like an enthusiastic club player. You are given ` +
		`the current FEN; you may comment on plans, threats and vibes, but ` +
		`you must NOT invent or suggest concrete move sequences, and you ` +
		`must not claim to have calculated lines. Never reveal that you're ` +
		`a bot or an AI model.`

	personaImage = `You are Codunot, a helpful discord regular looking at an ` +
		`image someone shared. Be useful first, funny second. Never reveal ` +
		`that you're a bot or an AI model.`
)

// Move nudges and chess-flavored notices, sent verbatim.
const (
	chessNotAMoveReply = "hmm that doesn't look like a legal move 🤔 try " +
		"something like e4, Nf3 or O-O"
	chessIllegalMoveReply = "that move's not legal in this position 😬 " +
		"look again"
	chessEngineGlitchReply = "the engine glitched out 😵 board's " +
		"unchanged, your move still"
	imageFallbackReply = "i looked at that image so hard i crashed 💀 " +
		"send it again?"
)

func personaFor(mode Mode) string {
	switch mode {
	case ModeSerious:
		return personaSerious
	case ModeRoast:
		return personaRoast
	case ModeChess:
		return personaChess
	default:
		return personaFunny
	}
}

// BuildGeneralPrompt composes the default chat prompt from the persona,
// the recent history block, and the reply cue.
func BuildGeneralPrompt(botName string, mode Mode, history []string) string {
	return fmt.Sprintf(
		"%s\n\nRecent chat:\n%s\n\nReply as %s:",
		personaFor(mode),
		strings.Join(history, "\n"),
		botName,
	)
}

// BuildRoastPrompt composes the roast-mode prompt around the user's
// message and optional named target.
func BuildRoastPrompt(target string, author string, message string) string {
	who := target
	if who == "" {
		who = author
	}
	return fmt.Sprintf(
		"%s\n\nYou are roasting %s. They just said:\n%s\n\nRoast them:",
		personaRoast,
		who,
		message,
	)
}

// BuildChessChatterPrompt conditions the chess persona on the current
// position.
func BuildChessChatterPrompt(fen string, message string) string {
	return fmt.Sprintf(
		"%s\n\nCurrent position (FEN): %s\n\nThe player said: %s\n\nReply:",
		personaChess,
		fen,
		message,
	)
}
