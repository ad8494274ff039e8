// internal/infra/solana/token_transfer.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/types"

	ledgerdom "blockto/internal/domain/ledger"
)

var ErrSourceATAAbsent = errors.New("token_transfer: source ATA not found")

// buildTransferTransaction moves the single token of in.AssetID from custody to in.Recipient.
// - derive ATA(custody, mint) / ATA(recipient, mint)
// - create destination ATA if missing (payer = custody)
// - SPL token transfer (amount = 1)
func buildTransferTransaction(
	ctx context.Context,
	w LedgerWriter,
	r RPCClient,
	custody types.Account,
	in ledgerdom.TransferIntent,
) (types.Transaction, error) {
	mintAddr := strings.TrimSpace(in.AssetID)
	toWallet := strings.TrimSpace(in.Recipient)

	mint := common.PublicKeyFromString(mintAddr)
	toOwner := common.PublicKeyFromString(toWallet)
	fromOwner := custody.PublicKey

	fromATA, _, err := common.FindAssociatedTokenAddress(fromOwner, mint)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("token_transfer: derive from ATA failed: %w", err)
	}
	toATA, _, err := common.FindAssociatedTokenAddress(toOwner, mint)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("token_transfer: derive to ATA failed: %w", err)
	}

	// 1) existence checks
	fromExists, err := r.AccountExists(ctx, fromATA.ToBase58())
	if err != nil {
		return types.Transaction{}, fmt.Errorf("token_transfer: check from ATA failed: %w", err)
	}
	if !fromExists {
		return types.Transaction{}, ErrSourceATAAbsent
	}
	toExists, err := r.AccountExists(ctx, toATA.ToBase58())
	if err != nil {
		return types.Transaction{}, fmt.Errorf("token_transfer: check to ATA failed: %w", err)
	}

	// 2) instructions
	ins := make([]types.Instruction, 0, 2)
	if !toExists {
		ins = append(ins, associated_token_account.CreateAssociatedTokenAccount(associated_token_account.CreateAssociatedTokenAccountParam{
			Funder:                 fromOwner,
			Owner:                  toOwner,
			Mint:                   mint,
			AssociatedTokenAccount: toATA,
		}))
		log.Printf(
			"[token_transfer] will create ATA: owner=%s mint=%s ata=%s",
			maskShort(toWallet), maskShort(mintAddr), maskShort(toATA.ToBase58()),
		)
	}
	ins = append(ins, token.Transfer(token.TransferParam{
		From:   fromATA,
		To:     toATA,
		Auth:   fromOwner,
		Amount: 1,
	}))

	// 3) recent blockhash
	recent, err := w.LatestBlockhash(ctx)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("token_transfer: GetLatestBlockhash: %w", err)
	}

	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        fromOwner,
			RecentBlockhash: recent,
			Instructions:    ins,
		}),
		Signers: []types.Account{custody},
	})
	if err != nil {
		return types.Transaction{}, fmt.Errorf("token_transfer: NewTransaction: %w", err)
	}
	return tx, nil
}

func maskShort(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	if len(t) <= 10 {
		return t
	}
	return t[:4] + "***" + t[len(t)-4:]
}
