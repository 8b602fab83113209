package client

import (
	"context"
	"encoding/base64"

	"passkey-core/internal/model"
)

// AuthenticatorClient 把挑战转交给平台认证器 (用户设备上的 passkey)。
// 签名的密码学细节对我们不透明：发出 options，收回签名或一个失败种类。
type AuthenticatorClient struct {
	http *httpClient
	url  string
}

func NewAuthenticatorClient(url string) *AuthenticatorClient {
	return &AuthenticatorClient{http: newHTTPClient(), url: url}
}

// CeremonyError 认证器返回的失败种类
type CeremonyError struct {
	Kind    string `json:"kind"` // cancelled / invalid_state / security / 其它
	Message string `json:"message"`
}

func (e *CeremonyError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind
}

type ceremonyRequest struct {
	Challenge string                 `json:"challenge"` // base64
	Options   map[string]interface{} `json:"options"`
}

type ceremonyResponse struct {
	CredentialID string         `json:"credentialId"`
	Signature    string         `json:"signature"`  // base64
	ClientData   string         `json:"clientData"` // base64
	Error        *CeremonyError `json:"error,omitempty"`
}

// Sign 驱动一次认证器仪式。
// ctx 控制超时 (平台认证器惯例 60s)；用户取消不在这里特殊处理，
// 由调用方根据 CeremonyError.Kind 决定是否可恢复。
func (c *AuthenticatorClient) Sign(ctx context.Context, challenge *model.AuthorizationChallenge) (*SignedPayload, error) {
	req := ceremonyRequest{
		Challenge: base64.StdEncoding.EncodeToString(challenge.Challenge),
		Options:   challenge.Options,
	}

	var resp ceremonyResponse
	if err := c.http.postJSON(ctx, c.url, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	sig, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return nil, err
	}
	clientData, err := base64.StdEncoding.DecodeString(resp.ClientData)
	if err != nil {
		return nil, err
	}

	return &SignedPayload{
		CredentialID: resp.CredentialID,
		Signature:    sig,
		ClientData:   clientData,
	}, nil
}
