// internal/infra/solana/ledger_writer.go
package solana

import (
	"context"
	"strings"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"
)

// LedgerWriter is the write side of the Solana RPC: what transaction building and sending need.
type LedgerWriter interface {
	LatestBlockhash(ctx context.Context) (string, error)
	MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error)
	SendTransaction(ctx context.Context, tx types.Transaction) (string, error)
}

// SDKLedgerWriter adapts the blocto SDK client.
type SDKLedgerWriter struct {
	RPC *client.Client
}

func NewSDKLedgerWriter(endpoint string) *SDKLedgerWriter {
	return &SDKLedgerWriter{RPC: client.NewClient(endpoint)}
}

func (w *SDKLedgerWriter) LatestBlockhash(ctx context.Context) (string, error) {
	res, err := w.RPC.GetLatestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	return res.Blockhash, nil
}

func (w *SDKLedgerWriter) MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	return w.RPC.GetMinimumBalanceForRentExemption(ctx, dataLen)
}

func (w *SDKLedgerWriter) SendTransaction(ctx context.Context, tx types.Transaction) (string, error) {
	return w.RPC.SendTransaction(ctx, tx)
}

// EndpointForNetwork resolves the RPC URL. override wins when set.
func EndpointForNetwork(network, override string) string {
	if u := strings.TrimSpace(override); u != "" {
		return u
	}
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "mainnet", "mainnet-beta":
		return rpc.MainnetRPCEndpoint
	case "testnet":
		return rpc.TestnetRPCEndpoint
	case "localnet":
		return "http://127.0.0.1:8899"
	default:
		return rpc.DevnetRPCEndpoint
	}
}
