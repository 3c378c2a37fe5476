package codunot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChessSession(t testing.TB, evalURL string) *ChessSession {
	t.Helper()
	engine := NewLichessClient(
		&ChessConfig{EvalURL: evalURL, EvalTimeout: DefaultChessEvalTimeout},
		testLogger(t),
	)
	return NewChessSession(engine, testLogger(t))
}

func newEvalServer(t testing.TB, moves string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				require.NotEmpty(t, r.URL.Query().Get("fen"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"pvs":[{"moves":"` + moves + `"}]}`))
			},
		),
	)
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifyResignation(t *testing.T) {
	s := newTestChessSession(t, "")
	for _, input := range []string{"resign", "gg", "ok i give up", "I QUIT"} {
		got := s.Classify(input)
		assert.Equal(t, ChessInputResign, got.Kind, "input: %q", input)
	}
}

func TestClassifyChatter(t *testing.T) {
	s := newTestChessSession(t, "")
	tests := []string{
		"any hints for me",
		"what should i play here",
		"wow nice",
		"this position is really quite complicated", // >3 tokens
	}
	for _, input := range tests {
		got := s.Classify(input)
		assert.Equal(t, ChessInputChatter, got.Kind, "input: %q", input)
	}
}

func TestClassifyMoves(t *testing.T) {
	s := newTestChessSession(t, "")
	tests := []string{
		"e4",    // single square, unique pawn push
		"e2e4",  // UCI
		"e2-e4", // coordinate with dash
		"Nf3",   // SAN
		"nf3",   // lowercase piece letter
	}
	for _, input := range tests {
		got := s.Classify(input)
		require.Equal(t, ChessInputMove, got.Kind, "input: %q", input)
		require.NotNil(t, got.Move, "input: %q", input)
	}
}

func TestClassifyIllegalAndNotAMove(t *testing.T) {
	s := newTestChessSession(t, "")

	// grammatical moves that aren't legal from the start position
	for _, input := range []string{"e5", "Ke2", "O-O", "a1a3"} {
		got := s.Classify(input)
		assert.Equal(t, ChessInputIllegal, got.Kind, "input: %q", input)
	}

	// not move-shaped at all
	for _, input := range []string{"banana", "e9", "zz top"} {
		got := s.Classify(input)
		assert.Equal(t, ChessInputNotAMove, got.Kind, "input: %q", input)
	}
}

func TestClassifyDoesNotMutateBoard(t *testing.T) {
	s := newTestChessSession(t, "")
	before := s.FEN()
	s.Classify("e4")
	s.Classify("Nf3")
	s.Classify("resign")
	assert.Equal(t, before, s.FEN())
}

func TestCastlingSpellingsNormalized(t *testing.T) {
	s := newTestChessSession(t, "")
	// castling is illegal from the start position but must still be
	// recognized as move-shaped in every spelling
	for _, input := range []string{"O-O", "o-o", "0-0", "0-0-0", "O-O-O"} {
		got := s.Classify(input)
		assert.Equal(t, ChessInputIllegal, got.Kind, "input: %q", input)
	}
}

func TestPushAndEngineMove(t *testing.T) {
	srv := newEvalServer(t, "e7e5 g8f6")
	s := newTestChessSession(t, srv.URL)

	input := s.Classify("e4")
	require.Equal(t, ChessInputMove, input.Kind)
	require.NoError(t, s.Push(input.Move))

	uci, san, err := s.EngineMove(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "e7e5", uci)
	assert.Equal(t, "e5", san)
	assert.False(t, s.GameOver())
}

func TestEngineFailureLeavesBoardUnchanged(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		),
	)
	t.Cleanup(srv.Close)
	s := newTestChessSession(t, srv.URL)

	input := s.Classify("e4")
	require.Equal(t, ChessInputMove, input.Kind)
	require.NoError(t, s.Push(input.Move))
	before := s.FEN()

	_, _, err := s.EngineMove(context.Background())
	require.Error(t, err)
	assert.Equal(t, before, s.FEN())
	assert.False(t, s.GameOver())
}

func TestResignEndsGame(t *testing.T) {
	s := newTestChessSession(t, "")
	s.Resign()
	assert.True(t, s.GameOver())
	assert.Contains(t, s.Verdict(), "resignation")
}

func TestSingleSquareAmbiguityFallsThrough(t *testing.T) {
	s := newTestChessSession(t, "")
	// "a3" is reachable by both the a-pawn and the b1 knight, so the
	// destination shortcut is ambiguous. It must still parse as the SAN
	// pawn push instead of being rejected.
	got := s.Classify("a3")
	assert.Equal(t, ChessInputMove, got.Kind)
}
