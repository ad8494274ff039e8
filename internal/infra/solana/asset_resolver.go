// internal/infra/solana/asset_resolver.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	usecase "blockto/internal/application/usecase"
	mintdom "blockto/internal/domain/mint"
)

var (
	errNodeBehind     = errors.New("asset_resolver: node behind watermark")
	errAssetNotListed = errors.New("asset_resolver: asset not listed yet")
)

// AssetResolver finds the asset a finalized mint created in the custodial wallet.
type AssetResolver struct {
	Client RPCClient

	MaxAttempts int
	Interval    time.Duration

	now func() time.Time
}

var _ usecase.AssetResolver = (*AssetResolver)(nil)

func NewAssetResolver(c RPCClient, maxAttempts int, interval time.Duration) *AssetResolver {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &AssetResolver{Client: c, MaxAttempts: maxAttempts, Interval: interval, now: time.Now}
}

// ResolveLatestAsset lists token accounts of owner at or after minLedgerVersion.
// With expectedAssetID it matches that mint; otherwise it takes the last held 1-of-1 in list order.
func (r *AssetResolver) ResolveLatestAsset(ctx context.Context, owner string, minLedgerVersion uint64, expectedAssetID string) (mintdom.MintedAsset, error) {
	if r == nil || r.Client == nil {
		return mintdom.MintedAsset{}, fmt.Errorf("asset_resolver: client not configured")
	}
	owner = strings.TrimSpace(owner)
	expected := strings.TrimSpace(expectedAssetID)
	if owner == "" {
		return mintdom.MintedAsset{}, fmt.Errorf("%w: owner is empty", mintdom.ErrAssetNotFound)
	}

	var found string
	attempts := 0
	op := func() error {
		attempts++
		res, err := r.Client.GetTokenAccountsByOwner(ctx, owner, TokenProgramID, minLedgerVersion)
		if err != nil {
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) && rpcErr.Code == RPCCodeMinContextSlotNotReached {
				return errNodeBehind
			}
			return err
		}
		if res.Context.Slot < minLedgerVersion {
			return errNodeBehind
		}
		id := pickAsset(res.Value, expected)
		if id == "" {
			return errAssetNotListed
		}
		found = id
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Interval), uint64(r.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		log.Printf(
			"[asset_resolver] not found owner=%s minSlot=%d expected=%s attempts=%d err=%v",
			maskShort(owner), minLedgerVersion, maskShort(expected), attempts, err,
		)
		return mintdom.MintedAsset{}, fmt.Errorf("%w: after %d attempts: %v", mintdom.ErrAssetNotFound, attempts, err)
	}

	asset, err := mintdom.NewMintedAsset(found, owner, minLedgerVersion, r.now())
	if err != nil {
		return mintdom.MintedAsset{}, fmt.Errorf("%w: %v", mintdom.ErrAssetNotFound, err)
	}
	return asset, nil
}

// pickAsset selects the mint address from the listed token accounts.
func pickAsset(accounts []TokenAccount, expected string) string {
	last := ""
	for _, v := range accounts {
		info := v.Account.Data.Parsed.Info
		mint := strings.TrimSpace(info.Mint)
		amt := strings.TrimSpace(info.TokenAmount.Amount)
		if mint == "" || amt == "" || amt == "0" {
			continue
		}
		if expected != "" {
			if mint == expected {
				return mint
			}
			continue
		}
		if info.TokenAmount.Decimals == 0 && amt == "1" {
			last = mint
		}
	}
	return last
}
