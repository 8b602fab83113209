package authz

import (
	"context"
	"sync"
	"testing"
	"time"

	"passkey-core/internal/client"
	"passkey-core/internal/model"
	"passkey-core/pkg/errno"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIssuer struct {
	err error
	ttl time.Duration
}

func (f *fakeIssuer) Request(ctx context.Context, intent model.TransferIntent) (*model.AuthorizationChallenge, error) {
	if f.err != nil {
		return nil, f.err
	}
	ttl := f.ttl
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &model.AuthorizationChallenge{
		Challenge: []byte("challenge"),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

type fakeAuthenticator struct {
	err     error
	delay   time.Duration
	started chan struct{} // 可选：仪式开始时关闭
}

func (f *fakeAuthenticator) Sign(ctx context.Context, challenge *model.AuthorizationChallenge) (*client.SignedPayload, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &client.SignedPayload{CredentialID: "cred-1", Signature: []byte("sig")}, nil
}

type fakeSubmitter struct {
	err  error
	keys []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, intent model.TransferIntent, payload *client.SignedPayload, method model.GasOption, idempotencyKey string) (*client.SubmitResult, error) {
	f.keys = append(f.keys, idempotencyKey)
	if f.err != nil {
		return nil, f.err
	}
	return &client.SubmitResult{OperationHash: "0xabc"}, nil
}

func newTestBroker(authn Authenticator) *Broker {
	return NewBroker(&fakeIssuer{}, authn, &fakeSubmitter{}, NewCeremonyLock(), time.Minute)
}

func TestAuthorizeSuccess(t *testing.T) {
	b := newTestBroker(&fakeAuthenticator{})

	payload, err := b.Authorize(context.Background(), model.TransferIntent{})
	require.NoError(t, err)
	assert.Equal(t, "cred-1", payload.CredentialID)
	// 锁已释放
	assert.False(t, b.ceremonyLock.Held())
}

// 仪式进行中第二次请求快速失败，不排队
func TestAuthorizeBusy(t *testing.T) {
	started := make(chan struct{})
	authn := &fakeAuthenticator{delay: time.Second, started: started}
	b := newTestBroker(authn)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Authorize(context.Background(), model.TransferIntent{})
	}()

	<-started
	_, err := b.Authorize(context.Background(), model.TransferIntent{})
	require.Error(t, err)
	code, _ := errno.Decode(err)
	assert.Equal(t, errno.ErrCeremonyBusy.Code, code)
	assert.Equal(t, errno.KindRetryable, errno.KindOf(err))

	wg.Wait()
	assert.False(t, b.ceremonyLock.Held())
}

func TestAuthorizeReleasesOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		authn    Authenticator
		wantCode int
	}{
		{
			name:     "用户取消",
			authn:    &fakeAuthenticator{err: &client.CeremonyError{Kind: "cancelled"}},
			wantCode: errno.ErrCeremonyCancelled.Code,
		},
		{
			name:     "认证器状态异常",
			authn:    &fakeAuthenticator{err: &client.CeremonyError{Kind: "invalid_state"}},
			wantCode: errno.ErrAuthInvalidState.Code,
		},
		{
			name:     "安全限制",
			authn:    &fakeAuthenticator{err: &client.CeremonyError{Kind: "security"}},
			wantCode: errno.ErrAuthInsecure.Code,
		},
		{
			name:     "未知认证器错误",
			authn:    &fakeAuthenticator{err: &client.CeremonyError{Kind: "generic", Message: "boom"}},
			wantCode: errno.ErrAuthFailed.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker(tt.authn)
			_, err := b.Authorize(context.Background(), model.TransferIntent{})
			require.Error(t, err)
			code, _ := errno.Decode(err)
			assert.Equal(t, tt.wantCode, code)
			// 失败路径同样释放锁
			assert.False(t, b.ceremonyLock.Held())
		})
	}
}

func TestAuthorizeTimeout(t *testing.T) {
	authn := &fakeAuthenticator{delay: time.Second}
	b := NewBroker(&fakeIssuer{}, authn, &fakeSubmitter{}, NewCeremonyLock(), 20*time.Millisecond)

	_, err := b.Authorize(context.Background(), model.TransferIntent{})
	require.Error(t, err)
	code, _ := errno.Decode(err)
	assert.Equal(t, errno.ErrCeremonyTimeout.Code, code)
	assert.True(t, errno.IsRetryable(err))
	assert.False(t, b.ceremonyLock.Held())
}

func TestAuthorizeExpiredChallenge(t *testing.T) {
	b := NewBroker(&fakeIssuer{ttl: -time.Minute}, &fakeAuthenticator{}, &fakeSubmitter{}, NewCeremonyLock(), time.Minute)

	_, err := b.Authorize(context.Background(), model.TransferIntent{})
	require.Error(t, err)
	code, _ := errno.Decode(err)
	assert.Equal(t, errno.ErrChallengeExpired.Code, code)
	assert.False(t, b.ceremonyLock.Held())
}

// Session ID 作为幂等键随提交请求携带
func TestSubmitCarriesIdempotencyKey(t *testing.T) {
	submitter := &fakeSubmitter{}
	b := NewBroker(&fakeIssuer{}, &fakeAuthenticator{}, submitter, NewCeremonyLock(), time.Minute)

	result, err := b.Submit(context.Background(), model.TransferIntent{},
		&client.SignedPayload{}, model.GasSponsored, "session-42")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", result.OperationHash)
	assert.Equal(t, []string{"session-42"}, submitter.keys)
}
