package codunot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	gocache "github.com/patrickmn/go-cache"
)

// VoteStore records top.gg votes. Each vote entitles the user for 12
// hours. Reads go through a short-TTL cache since vote checks happen on
// hot paths; the JSON file (user ID → expiry unix seconds) is the
// durable record.
type VoteStore struct {
	mu     sync.Mutex
	path   string
	votes  map[string]int64
	cache  *gocache.Cache
	logger *slog.Logger
	now    func() time.Time
}

func NewVoteStore(path string, logger *slog.Logger) *VoteStore {
	if logger == nil {
		logger = slog.Default()
	}
	v := &VoteStore{
		path:   path,
		votes:  map[string]int64{},
		cache:  gocache.New(DefaultVoteCacheTTL, 5*time.Minute),
		logger: logger.With(loggerNameKey, "votes"),
		now:    time.Now,
	}
	v.load()
	return v
}

func (v *VoteStore) load() {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if !os.IsNotExist(err) {
			v.logger.Warn("could not read votes file", tint.Err(err))
		}
		return
	}
	if err = json.Unmarshal(data, &v.votes); err != nil {
		v.logger.Warn("votes file corrupt, starting empty", tint.Err(err))
		v.votes = map[string]int64{}
	}
}

// RecordVote stores a vote valid until now + DefaultVoteTTL and
// persists the file. Persistence failures are logged, non-fatal.
func (v *VoteStore) RecordVote(userID string) {
	v.mu.Lock()
	expiry := v.now().Add(DefaultVoteTTL).Unix()
	v.votes[userID] = expiry
	snapshot := make(map[string]int64, len(v.votes))
	for k, val := range v.votes {
		snapshot[k] = val
	}
	v.mu.Unlock()

	v.cache.Set(userID, expiry, gocache.DefaultExpiration)
	if err := writeJSONFileAtomic(v.path, snapshot); err != nil {
		v.logger.Error("failed to persist votes", tint.Err(err))
	}
}

// HasVoted reports whether the user has an unexpired vote.
func (v *VoteStore) HasVoted(userID string) bool {
	if cached, ok := v.cache.Get(userID); ok {
		if expiry, isInt := cached.(int64); isInt {
			return v.now().Unix() < expiry
		}
	}

	v.mu.Lock()
	expiry, ok := v.votes[userID]
	v.mu.Unlock()
	if !ok {
		return false
	}
	v.cache.Set(userID, expiry, gocache.DefaultExpiration)
	return v.now().Unix() < expiry
}

// VerifyTopGGSignature checks an `x-topgg-signature: t=<unix>,v1=<hex>`
// header against HMAC-SHA-256 of "<t>." + body using the shared secret.
// Comparison is constant time, and the caller gets a single yes/no —
// nothing reveals which half failed.
func VerifyTopGGSignature(secret string, header string, body []byte) bool {
	if secret == "" || header == "" {
		return false
	}

	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return false
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}
