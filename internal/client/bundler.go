package client

import (
	"context"
	"encoding/base64"
	"encoding/hex"

	"passkey-core/internal/model"
	"passkey-core/pkg/errno"
)

// BundlerClient 把签名后的操作提交给链提交端点。
// 请求携带 Session ID 作为幂等键，重试导致的重复提交由接收方识别。
type BundlerClient struct {
	http *httpClient
	url  string
}

func NewBundlerClient(url string) *BundlerClient {
	return &BundlerClient{http: newHTTPClient(), url: url}
}

// SignedPayload 认证器仪式产出的签名结果
type SignedPayload struct {
	CredentialID string `json:"credentialId"`
	Signature    []byte `json:"signature"`
	ClientData   []byte `json:"clientData"`
}

type submitRequest struct {
	To              string `json:"to"`
	Value           string `json:"value"`
	Data            string `json:"data,omitempty"`
	GasOption       string `json:"gasOption"`
	SignedAuthProof string `json:"signedAuthProof"`
	IdempotencyKey  string `json:"idempotencyKey"`
}

type submitResponse struct {
	OperationHash string `json:"operationHash"`
	ExplorerURL   string `json:"explorerUrl"`
	Error         *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// SubmitResult 提交成功的返回
type SubmitResult struct {
	OperationHash string
	ExplorerURL   string
}

// Submit 提交签名后的操作。失败时返回结构化的 errno。
func (c *BundlerClient) Submit(ctx context.Context, intent model.TransferIntent, payload *SignedPayload, method model.GasOption, idempotencyKey string) (*SubmitResult, error) {
	req := submitRequest{
		To:              intent.Recipient,
		Value:           intent.Amount.String(),
		GasOption:       string(method),
		SignedAuthProof: base64.StdEncoding.EncodeToString(payload.Signature),
		IdempotencyKey:  idempotencyKey,
	}
	if len(intent.Calldata) > 0 {
		req.Data = "0x" + hex.EncodeToString(intent.Calldata)
	}

	var resp submitResponse
	if err := c.http.postJSON(ctx, c.url, req, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		if resp.Error.Kind == "challenge_expired" {
			return nil, errno.ErrChallengeExpired
		}
		return nil, errno.ErrSubmitRejected.WithMessage(resp.Error.Message)
	}

	return &SubmitResult{
		OperationHash: resp.OperationHash,
		ExplorerURL:   resp.ExplorerURL,
	}, nil
}

type deployRequest struct {
	UserID         string `json:"userId"`
	Address        string `json:"address"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// DeployAccount 触发智能账户的链上部署。
// 幂等键用地址本身，重复触发由接收方去重。
func (c *BundlerClient) DeployAccount(ctx context.Context, userID string, address string) error {
	req := deployRequest{
		UserID:         userID,
		Address:        address,
		IdempotencyKey: address,
	}

	var resp submitResponse
	if err := c.http.postJSON(ctx, c.url+"/deploy", req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return errno.ErrSubmitRejected.WithMessage(resp.Error.Message)
	}
	return nil
}
