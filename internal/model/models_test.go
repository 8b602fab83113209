package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	base := TransferIntent{
		Recipient: "0x2222222222222222222222222222222222222222",
		Amount:    decimal.RequireFromString("1.5"),
		Currency:  "ETH",
		Network:   "sepolia",
	}

	// 相同内容指纹稳定
	assert.Equal(t, base.Fingerprint(), base.Fingerprint())

	// 任一字段变化都会改变指纹
	changed := base
	changed.Amount = decimal.RequireFromString("1.50001")
	assert.NotEqual(t, base.Fingerprint(), changed.Fingerprint())

	changed = base
	changed.Recipient = "0x3333333333333333333333333333333333333333"
	assert.NotEqual(t, base.Fingerprint(), changed.Fingerprint())

	changed = base
	changed.Calldata = []byte{0x01}
	assert.NotEqual(t, base.Fingerprint(), changed.Fingerprint())
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []SessionState{StateSuccess, StateError, StateAborted} {
		assert.True(t, s.IsTerminal(), string(s))
	}
	for _, s := range []SessionState{StateDraft, StateReviewing, StateDeploying, StateAuthorizing, StateSubmitting} {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestChallengeExpired(t *testing.T) {
	now := time.Now()

	c := &AuthorizationChallenge{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, c.Expired(now))

	c = &AuthorizationChallenge{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, c.Expired(now))

	// 零值视为不过期 (由签发方决定有效期)
	c = &AuthorizationChallenge{}
	assert.False(t, c.Expired(now))
}
