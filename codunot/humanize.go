package codunot

import (
	"math/rand"
	"strings"
	"sync"
)

// Mood is an advisory classification of the user's message. It is
// computed for every inbound message but currently only exposed for
// future persona tuning.
type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodSad     Mood = "sad"
	MoodAngry   Mood = "angry"
	MoodNeutral Mood = "neutral"
)

var moodKeywords = map[Mood][]string{
	MoodHappy: {
		"lol", "lmao", "haha", "nice", "great", "awesome", "love",
		"pog", "yay", "thanks", "ty", "cool", "w",
	},
	MoodSad: {
		"sad", "cry", "depressed", "miss", "lonely", "tired",
		"sigh", "unlucky", "lost", "bad day",
	},
	MoodAngry: {
		"angry", "mad", "hate", "wtf", "annoying", "stupid",
		"trash", "bruh moment", "screw", "furious",
	},
}

// DetectMood scans the input for mood keywords. First match in
// happy/sad/angry order wins; anything else is neutral.
func DetectMood(text string) Mood {
	lowered := strings.ToLower(text)
	for _, mood := range []Mood{MoodHappy, MoodSad, MoodAngry} {
		for _, kw := range moodKeywords[mood] {
			if strings.Contains(lowered, kw) {
				return mood
			}
		}
	}
	return MoodNeutral
}

const (
	typoProbability    = 0.12
	nvmProbability     = 0.07
	idkProbability     = 0.07
	fillerProbability  = 0.45
	shortOutputRuneMax = 40
	lowercaseAlphabet  = "abcdefghijklmnopqrstuvwxyz"
)

var fillerPrefixes = []string{"lol", "bruh", "ngl"}

var mathDelimiterReplacer = strings.NewReplacer(
	"\\(", "",
	"\\)", "",
	"\\[", "",
	"\\]", "",
	"$$", "",
	"$", "",
)

// Humanizer applies small stochastic edits to replies so they read less
// machine-generated. The randomness source is injected so tests can
// seed determinism.
type Humanizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewHumanizer(rng *rand.Rand) *Humanizer {
	return &Humanizer{rng: rng}
}

func (h *Humanizer) chance(p float64) bool {
	return h.rng.Float64() < p
}

// Humanize transforms text according to the channel mode. Serious mode
// gets no stylistic edits beyond stripping math delimiters; other modes
// may get one inserted "typo" letter, a filler prefix, and/or a trailing
// hedge.
func (h *Humanizer) Humanize(text string, mode Mode) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}

	if mode == ModeSerious {
		return ensureSentenceEnd(mathDelimiterReplacer.Replace(text))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.chance(typoProbability) {
		runes := []rune(text)
		pos := h.rng.Intn(len(runes) + 1)
		letter := rune(lowercaseAlphabet[h.rng.Intn(len(lowercaseAlphabet))])
		runes = append(runes[:pos], append([]rune{letter}, runes[pos:]...)...)
		text = string(runes)
	}
	if h.chance(nvmProbability) {
		text += " *nvm"
	}
	if h.chance(idkProbability) {
		text += " idk"
	}
	if h.chance(fillerProbability) {
		text = fillerPrefixes[h.rng.Intn(len(fillerPrefixes))] + " " + text
	}
	return ensureSentenceEnd(text)
}

// ensureSentenceEnd appends a period to short outputs that end without
// sentence punctuation. Long outputs are left alone: they usually end in
// markdown or multi-sentence text already.
func ensureSentenceEnd(text string) string {
	runes := []rune(text)
	if len(runes) == 0 || len(runes) > shortOutputRuneMax {
		return text
	}
	switch runes[len(runes)-1] {
	case '.', '!', '?', '…':
		return text
	}
	return text + "."
}
