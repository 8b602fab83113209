package errno

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	code, msg := Decode(nil)
	assert.Equal(t, OK.Code, code)
	assert.Equal(t, OK.Message, msg)

	code, msg = Decode(ErrSessionNotFound)
	assert.Equal(t, ErrSessionNotFound.Code, code)
	assert.Equal(t, ErrSessionNotFound.Message, msg)

	// 非 Errno 错误退化为 internal error code，消息透传
	code, msg = Decode(errors.New("boom"))
	assert.Equal(t, InternalServerError.Code, code)
	assert.Equal(t, "boom", msg)
}

// WithMessage 只替换消息，Code 和 Kind 保持不变
func TestWithMessage(t *testing.T) {
	e := ErrSubmitRejected.WithMessage("bundler rejected: nonce too low")

	code, msg := Decode(e)
	assert.Equal(t, ErrSubmitRejected.Code, code)
	assert.Equal(t, "bundler rejected: nonce too low", msg)
	assert.Equal(t, ErrSubmitRejected.Kind, KindOf(e))

	// 原值不受影响
	assert.NotEqual(t, ErrSubmitRejected.Message, e.Message)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(ErrInvalidRecipient))
	assert.Equal(t, KindRetryable, KindOf(ErrCeremonyBusy))
	assert.Equal(t, KindRecoverable, KindOf(ErrCeremonyCancelled))
	assert.Equal(t, KindTerminal, KindOf(ErrNeedsFunds))
	// 未知错误一律按 terminal 处置
	assert.Equal(t, KindTerminal, KindOf(errors.New("unknown")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrCeremonyBusy))
	assert.True(t, IsRetryable(ErrChallengeExpired))
	assert.True(t, IsRetryable(ErrDeployUnsettled))
	assert.False(t, IsRetryable(ErrNeedsFunds))
	assert.False(t, IsRetryable(ErrCeremonyCancelled))
}
