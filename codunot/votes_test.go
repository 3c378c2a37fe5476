package codunot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTopGG(secret string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyTopGGSignature(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"type":"vote.create"}`)
	header := signTopGG(secret, "1717171717", body)

	assert.True(t, VerifyTopGGSignature(secret, header, body))

	assert.False(
		t,
		VerifyTopGGSignature("other-secret", header, body),
		"wrong secret",
	)
	assert.False(
		t,
		VerifyTopGGSignature(secret, header, []byte(`{"type":"tampered"}`)),
		"tampered body",
	)
}

func TestVerifyTopGGSignatureMalformedHeaders(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{}`)

	for _, header := range []string{
		"",
		"t=123",
		"v1=abcd",
		"t=123,v1=nothex",
		"nonsense",
		"t123,v1abcd",
	} {
		assert.False(
			t,
			VerifyTopGGSignature(secret, header, body),
			"header: %q", header,
		)
	}

	valid := signTopGG(secret, "123", body)
	assert.False(t, VerifyTopGGSignature("", valid, body), "empty secret")
}

func TestVerifyTopGGSignatureTimestampIsBound(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{}`)

	// a signature computed over one timestamp must not verify when the
	// header claims another
	good := signTopGG(secret, "100", body)
	var v1 string
	_, err := fmt.Sscanf(good, "t=100,v1=%s", &v1)
	require.NoError(t, err)

	forged := "t=200,v1=" + v1
	assert.False(t, VerifyTopGGSignature(secret, forged, body))
}

func TestVoteStoreRecordAndExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.json")
	v := NewVoteStore(path, testLogger(t))

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return current }

	assert.False(t, v.HasVoted("user-1"))

	v.RecordVote("user-1")
	assert.True(t, v.HasVoted("user-1"))
	assert.False(t, v.HasVoted("user-2"))

	current = current.Add(DefaultVoteTTL + time.Minute)
	assert.False(t, v.HasVoted("user-1"), "vote expired")
}

func TestVoteStorePersistRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.json")

	v := NewVoteStore(path, testLogger(t))
	v.RecordVote("user-1")

	reloaded := NewVoteStore(path, testLogger(t))
	assert.True(t, reloaded.HasVoted("user-1"))
}
