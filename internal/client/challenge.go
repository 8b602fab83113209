package client

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"time"

	"passkey-core/internal/model"
)

// ChallengeClient 调用挑战签发服务。
// 意图的关键字段 (收款人/金额/calldata) 被绑定进挑战，
// 签名无法被重放到另一笔意图上。
type ChallengeClient struct {
	http *httpClient
	url  string
}

func NewChallengeClient(url string) *ChallengeClient {
	return &ChallengeClient{http: newHTTPClient(), url: url}
}

type challengeRequest struct {
	Recipient        string `json:"recipient"`
	Value            string `json:"value"`
	Data             string `json:"data,omitempty"` // hex calldata
	IncludeDeviceKey bool   `json:"includeDeviceKey"`
}

type challengeResponse struct {
	Challenge string                 `json:"challenge"` // base64
	Options   map[string]interface{} `json:"options"`
	ExpiresAt time.Time              `json:"expiresAt"`
}

// Request 签发一个绑定了意图内容的挑战
func (c *ChallengeClient) Request(ctx context.Context, intent model.TransferIntent) (*model.AuthorizationChallenge, error) {
	req := challengeRequest{
		Recipient:        intent.Recipient,
		Value:            intent.Amount.String(),
		IncludeDeviceKey: true,
	}
	if len(intent.Calldata) > 0 {
		req.Data = "0x" + hex.EncodeToString(intent.Calldata)
	}

	var resp challengeResponse
	if err := c.http.postJSON(ctx, c.url, req, &resp); err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Challenge)
	if err != nil {
		return nil, err
	}

	expires := resp.ExpiresAt
	if expires.IsZero() {
		// 服务端没给过期时间时本地兜底 5 分钟
		expires = time.Now().Add(5 * time.Minute)
	}

	return &model.AuthorizationChallenge{
		Challenge: raw,
		Options:   resp.Options,
		ExpiresAt: expires,
	}, nil
}
