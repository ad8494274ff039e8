// internal/infra/solana/rpc_client.go
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SPL Token Program ID (Tokenkeg...)
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// JSON-RPC error codes we branch on.
const (
	// node has not yet processed the requested minContextSlot
	RPCCodeMinContextSlotNotReached = -32016
)

// Solana confirmation levels reported by getSignatureStatuses.
const (
	ConfirmationProcessed = "processed"
	ConfirmationConfirmed = "confirmed"
	ConfirmationFinalized = "finalized"
)

// RPCClient is the read side of the Solana RPC we depend on.
type RPCClient interface {
	// GetTokenAccountsByOwner calls `getTokenAccountsByOwner` (jsonParsed, finalized).
	// minContextSlot = 0 means no constraint.
	GetTokenAccountsByOwner(ctx context.Context, owner string, programID string, minContextSlot uint64) (GetTokenAccountsByOwnerResult, error)

	// GetSignatureStatuses returns one entry per signature; nil when the node does not know it.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// AccountExists reports whether getAccountInfo returns a non-null value.
	AccountExists(ctx context.Context, address string) (bool, error)
}

// RPCError is a JSON-RPC level error returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("solana rpc: error code=%d message=%s", e.Code, e.Message)
}

// JSONRPCClient is a simple HTTP JSON-RPC client for Solana.
type JSONRPCClient struct {
	Endpoint string
	HTTP     *http.Client

	// transport retries for 429 / 5xx / network errors
	MaxRetries uint64
	RetryDelay time.Duration

	requestID atomic.Uint64
}

// NewJSONRPCClient creates a Solana JSON-RPC client for endpoint.
func NewJSONRPCClient(endpoint string) *JSONRPCClient {
	return &JSONRPCClient{
		Endpoint:   strings.TrimSpace(endpoint),
		HTTP:       &http.Client{Timeout: 12 * time.Second},
		MaxRetries: 2,
		RetryDelay: 300 * time.Millisecond,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var errRetryableStatus = errors.New("solana rpc: retryable http status")

func (c *JSONRPCClient) call(ctx context.Context, method string, params any, out any) error {
	if c == nil || c.Endpoint == "" || c.HTTP == nil {
		return fmt.Errorf("solana rpc: client not configured")
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("solana rpc: marshal request: %w", err)
	}

	var rr rpcResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("solana rpc: new request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return fmt.Errorf("solana rpc: http do: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: %d", errRetryableStatus, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("solana rpc: http status=%d", resp.StatusCode))
		}

		rr = rpcResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return backoff.Permanent(fmt.Errorf("solana rpc: decode response: %w", err))
		}
		return nil
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(c.RetryDelay)
	b = backoff.WithContext(backoff.WithMaxRetries(b, c.MaxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("solana rpc: %s: %w", method, err)
	}

	if rr.Error != nil {
		return rr.Error
	}
	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("solana rpc: unmarshal result: %w", err)
		}
	}
	return nil
}

// TokenAccount is one entry of getTokenAccountsByOwner (jsonParsed).
type TokenAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data struct {
			Program string `json:"program"`
			Parsed  struct {
				Info struct {
					Mint        string `json:"mint"`
					Owner       string `json:"owner"`
					TokenAmount struct {
						Amount   string `json:"amount"`
						Decimals int    `json:"decimals"`
					} `json:"tokenAmount"`
				} `json:"info"`
				Type string `json:"type"`
			} `json:"parsed"`
		} `json:"data"`
		Owner string `json:"owner"`
	} `json:"account"`
}

// GetTokenAccountsByOwnerResult is the decoded `result` object for getTokenAccountsByOwner.
type GetTokenAccountsByOwnerResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []TokenAccount `json:"value"`
}

func (c *JSONRPCClient) GetTokenAccountsByOwner(ctx context.Context, owner string, programID string, minContextSlot uint64) (GetTokenAccountsByOwnerResult, error) {
	var out GetTokenAccountsByOwnerResult

	owner = strings.TrimSpace(owner)
	if owner == "" {
		return out, fmt.Errorf("solana rpc: owner is empty")
	}
	if programID == "" {
		programID = TokenProgramID
	}

	cfg := map[string]any{
		"commitment": ConfirmationFinalized,
		"encoding":   "jsonParsed",
	}
	if minContextSlot > 0 {
		cfg["minContextSlot"] = minContextSlot
	}
	params := []any{
		owner,
		map[string]any{"programId": programID},
		cfg,
	}

	if err := c.call(ctx, "getTokenAccountsByOwner", params, &out); err != nil {
		return GetTokenAccountsByOwnerResult{}, err
	}
	return out, nil
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Failed reports whether the transaction executed with an error.
func (s *SignatureStatus) Failed() bool {
	if s == nil {
		return false
	}
	e := strings.TrimSpace(string(s.Err))
	return e != "" && e != "null"
}

func (c *JSONRPCClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	var out struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []any{
		signatures,
		map[string]any{"searchTransactionHistory": true},
	}
	if err := c.call(ctx, "getSignatureStatuses", params, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (c *JSONRPCClient) AccountExists(ctx context.Context, address string) (bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return false, fmt.Errorf("solana rpc: address is empty")
	}
	var out struct {
		Value json.RawMessage `json:"value"`
	}
	params := []any{
		address,
		map[string]any{"encoding": "base64", "commitment": ConfirmationConfirmed},
	}
	if err := c.call(ctx, "getAccountInfo", params, &out); err != nil {
		return false, err
	}
	v := strings.TrimSpace(string(out.Value))
	return v != "" && v != "null", nil
}
