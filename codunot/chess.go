package codunot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/notnil/chess"
)

// ChessInputKind is the outcome of classifying a chess-mode message.
type ChessInputKind int

const (
	// ChessInputResign ends the game on a resignation phrase
	ChessInputResign ChessInputKind = iota
	// ChessInputChatter is talk about the game, answered by the model
	ChessInputChatter
	// ChessInputMove is a legal move, ready to push
	ChessInputMove
	// ChessInputIllegal looked like a move but isn't legal here
	ChessInputIllegal
	// ChessInputNotAMove is anything else
	ChessInputNotAMove
)

// ChessInput is the classified form of a chess-mode message.
type ChessInput struct {
	Kind ChessInputKind
	Move *chess.Move
	Raw  string
}

var resignPhrases = []string{
	"resign", "gg", "surrender", "forfeit", "quit",
	"i give up", "done", "im done", "i'm done",
}

var chessChatterKeywords = []string{
	"hint", "help", "strategy", "analysis", "analyse", "analyze",
	"eval", "best move", "what should", "why", "how", "think",
	"plan", "opening", "blunder", "mistake", "nice", "wow",
	"lol", "haha", "damn", "bruh", "good move", "bad move",
}

var (
	sanMovePattern    = regexp.MustCompile(`^[KQRBN]?[a-h]?x?[a-h][1-8](=[QRBN])?[+#]?$`)
	castlePattern     = regexp.MustCompile(`^O-O(-O)?[+#]?$`)
	uciMovePattern    = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][+#]?$`)
	singleSquare      = regexp.MustCompile(`^[a-h][1-8]$`)
	coordinateDash    = regexp.MustCompile(`^([a-h][1-8])-([a-h][1-8])$`)
	castleSpellings   = regexp.MustCompile(`^(?i)[o0]-[o0](-[o0])?([+#]?)$`)
	sanPieceLowercase = regexp.MustCompile(`^[kqrbn][a-hx1-8]`)
)

// errEngineUnavailable marks a cloud-eval failure. The session stays
// alive; the user just moves again.
var errEngineUnavailable = errors.New("engine unavailable")

// LichessClient fetches engine replies from the lichess cloud-eval
// endpoint.
type LichessClient struct {
	evalURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewLichessClient(config *ChessConfig, logger *slog.Logger) *LichessClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.EvalTimeout
	if timeout <= 0 {
		timeout = DefaultChessEvalTimeout
	}
	return &LichessClient{
		evalURL:    config.EvalURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(loggerNameKey, "lichess"),
	}
}

type cloudEvalResponse struct {
	Pvs []struct {
		Moves string `json:"moves"`
	} `json:"pvs"`
}

// BestMove returns the first UCI token of the top principal variation
// for the given FEN.
func (c *LichessClient) BestMove(ctx context.Context, fen string) (string, error) {
	query := url.Values{}
	query.Set("fen", fen)
	query.Set("multiPv", "1")

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.evalURL+"?"+query.Encode(),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errEngineUnavailable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("cloud-eval request failed", tint.Err(err))
		return "", fmt.Errorf("%w: %s", errEngineUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("cloud-eval returned non-200", "status", resp.StatusCode)
		return "", fmt.Errorf("%w: status %d", errEngineUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errEngineUnavailable, err)
	}
	var eval cloudEvalResponse
	if err = json.Unmarshal(body, &eval); err != nil {
		return "", fmt.Errorf("%w: %s", errEngineUnavailable, err)
	}
	if len(eval.Pvs) == 0 {
		return "", fmt.Errorf("%w: empty pvs", errEngineUnavailable)
	}
	tokens := strings.Fields(eval.Pvs[0].Moves)
	if len(tokens) == 0 {
		return "", fmt.Errorf("%w: empty pv moves", errEngineUnavailable)
	}
	return tokens[0], nil
}

// ChessSession is the per-channel board plus the engine client. One is
// created on !chessmode and replaced on game end. Sessions are only
// ever touched from the orchestrator, so they carry no lock.
type ChessSession struct {
	game   *chess.Game
	engine *LichessClient
	logger *slog.Logger
}

func NewChessSession(engine *LichessClient, logger *slog.Logger) *ChessSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChessSession{
		game:   chess.NewGame(),
		engine: engine,
		logger: logger.With(loggerNameKey, "chess"),
	}
}

// FEN returns the current position.
func (s *ChessSession) FEN() string {
	return s.game.Position().String()
}

// GameOver reports any terminal verdict from the rules library.
func (s *ChessSession) GameOver() bool {
	return s.game.Outcome() != chess.NoOutcome
}

// normalizeMoveText applies the move-input normalizations: castling
// spellings, algebraic e2-e4 coordinates, and lowercase piece letters.
// Single-square inputs are resolved against the legal moves separately.
func normalizeMoveText(text string) string {
	text = strings.TrimSpace(text)

	if m := castleSpellings.FindStringSubmatch(text); m != nil {
		castle := "O-O"
		if m[1] != "" {
			castle = "O-O-O"
		}
		return castle + m[2]
	}
	if m := coordinateDash.FindStringSubmatch(strings.ToLower(text)); m != nil {
		return m[1] + m[2]
	}
	if sanPieceLowercase.MatchString(text) {
		upcased := strings.ToUpper(text[:1]) + text[1:]
		if sanMovePattern.MatchString(upcased) {
			return upcased
		}
	}
	return text
}

// uniqueMoveTo returns the single legal move ending on the given square,
// if exactly one exists.
func (s *ChessSession) uniqueMoveTo(square string) *chess.Move {
	var match *chess.Move
	for _, mv := range s.game.ValidMoves() {
		if mv.S2().String() != square {
			continue
		}
		if match != nil {
			return nil
		}
		match = mv
	}
	return match
}

// parseMove decodes normalized move text via SAN first, then UCI, and
// verifies the result against the legal moves.
func (s *ChessSession) parseMove(text string) (*chess.Move, bool) {
	pos := s.game.Position()

	var decoded *chess.Move
	if mv, err := (chess.AlgebraicNotation{}).Decode(pos, text); err == nil {
		decoded = mv
	} else if mv, err := (chess.UCINotation{}).Decode(
		pos,
		strings.TrimRight(strings.ToLower(text), "+#"),
	); err == nil {
		decoded = mv
	}
	if decoded == nil {
		return nil, false
	}
	for _, legal := range s.game.ValidMoves() {
		if legal.String() == decoded.String() {
			return decoded, true
		}
	}
	return nil, false
}

// Classify buckets a chess-mode message, in order: resignation phrases,
// game chatter (keywords or more than three tokens), a move matching
// the SAN/castling/UCI grammar, then everything else.
func (s *ChessSession) Classify(text string) ChessInput {
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)

	for _, phrase := range resignPhrases {
		if strings.Contains(lowered, phrase) {
			return ChessInput{Kind: ChessInputResign, Raw: trimmed}
		}
	}

	tokens := strings.Fields(lowered)
	if len(tokens) > 3 {
		return ChessInput{Kind: ChessInputChatter, Raw: trimmed}
	}
	for _, kw := range chessChatterKeywords {
		if strings.Contains(lowered, kw) {
			return ChessInput{Kind: ChessInputChatter, Raw: trimmed}
		}
	}

	normalized := normalizeMoveText(trimmed)

	// A bare square like "e4" means "the move that ends there" when
	// that's unambiguous. Otherwise it falls through to SAN parsing.
	if singleSquare.MatchString(strings.ToLower(normalized)) {
		if mv := s.uniqueMoveTo(strings.ToLower(normalized)); mv != nil {
			return ChessInput{Kind: ChessInputMove, Move: mv, Raw: trimmed}
		}
	}

	looksLikeMove := sanMovePattern.MatchString(normalized) ||
		castlePattern.MatchString(normalized) ||
		uciMovePattern.MatchString(strings.ToLower(normalized))
	if !looksLikeMove {
		return ChessInput{Kind: ChessInputNotAMove, Raw: trimmed}
	}

	if mv, ok := s.parseMove(normalized); ok {
		return ChessInput{Kind: ChessInputMove, Move: mv, Raw: trimmed}
	}
	return ChessInput{Kind: ChessInputIllegal, Raw: trimmed}
}

// Push applies a move previously validated by Classify.
func (s *ChessSession) Push(mv *chess.Move) error {
	return s.game.Move(mv)
}

// Resign concedes the game for the side to move.
func (s *ChessSession) Resign() {
	s.game.Resign(s.game.Position().Turn())
}

// EngineMove fetches the engine reply for the current position, pushes
// it, and returns the move in both UCI and SAN. On engine failure the
// board is unchanged and the session stays alive.
func (s *ChessSession) EngineMove(ctx context.Context) (uci string, san string, err error) {
	fen := s.FEN()
	uci, err = s.engine.BestMove(ctx, fen)
	if err != nil {
		return "", "", err
	}

	pos := s.game.Position()
	mv, decodeErr := chess.UCINotation{}.Decode(pos, uci)
	if decodeErr != nil {
		s.logger.Warn(
			"engine returned undecodable move",
			"uci", uci,
			"fen", fen,
			tint.Err(decodeErr),
		)
		return "", "", fmt.Errorf("%w: bad engine move %q", errEngineUnavailable, uci)
	}
	san = chess.AlgebraicNotation{}.Encode(pos, mv)
	if err = s.game.Move(mv); err != nil {
		return "", "", fmt.Errorf("%w: illegal engine move %q", errEngineUnavailable, uci)
	}
	return uci, san, nil
}

// Verdict describes a finished game in chat terms.
func (s *ChessSession) Verdict() string {
	switch s.game.Method() {
	case chess.Checkmate:
		if s.game.Outcome() == chess.WhiteWon {
			return "checkmate! white takes it 👑"
		}
		return "checkmate! black takes it 👑"
	case chess.Stalemate:
		return "stalemate... nobody wins that one 🤝"
	case chess.Resignation:
		return "resignation accepted, gg ♟️"
	default:
		return "game over! " + s.game.Outcome().String()
	}
}
