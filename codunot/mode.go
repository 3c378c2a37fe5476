package codunot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Chat commands. Mode commands are public; quiet/speak are owner-only.
const (
	cmdQuiet       = "!quiet"
	cmdSpeak       = "!speak"
	cmdFunMode     = "!funmode"
	cmdRoastMode   = "!roastmode"
	cmdSeriousMode = "!seriousmode"
	cmdChessMode   = "!chessmode"
)

// Mode command acknowledgements, sent verbatim.
const (
	ackFunMode     = "😜 FUN MODE ACTIVATED"
	ackRoastMode   = "🔥 ROAST MODE ACTIVATED"
	ackSeriousMode = "🧐 serious mode on. ask away."
	ackChessMode   = "♟️ chess time! you're white, make a move"
	ackSpeak       = "ok I can talk again 🗣️"
)

var quietPattern = regexp.MustCompile(`^!quiet\s+(\d+)([smhd])$`)

var quietUnits = map[string]struct {
	d    time.Duration
	word string
}{
	"s": {time.Second, "second"},
	"m": {time.Minute, "minute"},
	"h": {time.Hour, "hour"},
	"d": {24 * time.Hour, "day"},
}

// ParseQuiet parses an owner "!quiet <N><unit>" command. It returns the
// mute duration, a spelled-out form for the acknowledgement (e.g.
// "2 minutes"), and whether the input was a well-formed quiet command.
func ParseQuiet(content string) (time.Duration, string, bool) {
	m := quietPattern.FindStringSubmatch(strings.TrimSpace(content))
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, "", false
	}
	unit := quietUnits[m[2]]
	spelled := fmt.Sprintf("%d %s", n, unit.word)
	if n != 1 {
		spelled += "s"
	}
	return time.Duration(n) * unit.d, spelled, true
}

// MuteController tracks per-channel owner mute windows. Mute state is
// intentionally in-memory only; a restart clears it.
type MuteController struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMuteController() *MuteController {
	return &MuteController{
		until: map[string]time.Time{},
		now:   time.Now,
	}
}

// MuteFor silences the channel for d from now.
func (c *MuteController) MuteFor(chanID string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[chanID] = c.now().Add(d)
}

// Unmute clears any mute window for the channel.
func (c *MuteController) Unmute(chanID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.until, chanID)
}

// Muted reports whether the channel is inside a mute window. Expired
// windows are cleaned up on read.
func (c *MuteController) Muted(chanID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.until[chanID]
	if !ok {
		return false
	}
	if c.now().After(until) {
		delete(c.until, chanID)
		return false
	}
	return true
}
