// internal/infra/solana/nft_mint.go
package solana

import (
	"context"
	"fmt"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/metaplex/token_metadata"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/types"

	ledgerdom "blockto/internal/domain/ledger"
)

// SPL Memo program (v2). The memo carries the correlation tag of the run.
const memoProgramID = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

// memo prefix; data = prefix + correlation tag
const mintMemoPrefix = "blockto:mint:"

// buildMintTransaction builds a 1-of-1 Metaplex NFT mint owned by the custodial account.
// 戻り値: 署名済み tx, 新規 mint アドレス (= asset id)
func buildMintTransaction(
	ctx context.Context,
	w LedgerWriter,
	custody types.Account,
	in ledgerdom.MintIntent,
	sellerFeeBasisPoints uint16,
) (types.Transaction, string, error) {
	mint := types.NewAccount()
	owner := custody.PublicKey

	ata, _, err := common.FindAssociatedTokenAddress(owner, mint.PublicKey)
	if err != nil {
		return types.Transaction{}, "", fmt.Errorf("nft_mint: FindAssociatedTokenAddress: %w", err)
	}

	metadataPubkey, err := token_metadata.GetTokenMetaPubkey(mint.PublicKey)
	if err != nil {
		return types.Transaction{}, "", fmt.Errorf("nft_mint: GetTokenMetaPubkey: %w", err)
	}
	masterEditionPubkey, err := token_metadata.GetMasterEdition(mint.PublicKey)
	if err != nil {
		return types.Transaction{}, "", fmt.Errorf("nft_mint: GetMasterEdition: %w", err)
	}

	mintRent, err := w.MinimumBalanceForRentExemption(ctx, token.MintAccountSize)
	if err != nil {
		return types.Transaction{}, "", fmt.Errorf("nft_mint: GetMinimumBalanceForRentExemption: %w", err)
	}
	recent, err := w.LatestBlockhash(ctx)
	if err != nil {
		return types.Transaction{}, "", fmt.Errorf("nft_mint: GetLatestBlockhash: %w", err)
	}

	// ★ 1 asset = 1 token (MaxSupply = 1)
	maxSupply := uint64(1)

	ins := []types.Instruction{
		// 1) Mint アカウント作成
		system.CreateAccount(system.CreateAccountParam{
			From:     owner,
			New:      mint.PublicKey,
			Owner:    common.TokenProgramID,
			Lamports: mintRent,
			Space:    token.MintAccountSize,
		}),
		// 2) Mint 初期化 (decimals = 0)
		token.InitializeMint(token.InitializeMintParam{
			Decimals:   0,
			Mint:       mint.PublicKey,
			MintAuth:   owner,
			FreezeAuth: &owner,
		}),
		// 3) Metaplex Metadata
		token_metadata.CreateMetadataAccountV3(token_metadata.CreateMetadataAccountV3Param{
			Metadata:                metadataPubkey,
			Mint:                    mint.PublicKey,
			MintAuthority:           owner,
			UpdateAuthority:         owner,
			Payer:                   owner,
			UpdateAuthorityIsSigner: true,
			IsMutable:               true,
			Data: token_metadata.DataV2{
				Name:                 in.Name,
				Symbol:               in.Symbol,
				Uri:                  in.URI,
				SellerFeeBasisPoints: sellerFeeBasisPoints,
				Creators: &[]token_metadata.Creator{
					{Address: owner, Verified: true, Share: 100},
				},
			},
		}),
		// 4) custody の ATA
		associated_token_account.CreateAssociatedTokenAccount(associated_token_account.CreateAssociatedTokenAccountParam{
			Funder:                 owner,
			Owner:                  owner,
			Mint:                   mint.PublicKey,
			AssociatedTokenAccount: ata,
		}),
		// 5) 1 枚ミント
		token.MintTo(token.MintToParam{
			Mint:   mint.PublicKey,
			To:     ata,
			Auth:   owner,
			Amount: 1,
		}),
		// 6) MasterEdition v3 (MaxSupply=1)
		token_metadata.CreateMasterEditionV3(token_metadata.CreateMasterEditionParam{
			Edition:         masterEditionPubkey,
			Mint:            mint.PublicKey,
			UpdateAuthority: owner,
			MintAuthority:   owner,
			Metadata:        metadataPubkey,
			Payer:           owner,
			MaxSupply:       &maxSupply,
		}),
	}
	if in.CorrelationTag != "" {
		ins = append(ins, buildMemoIx(owner, mintMemoPrefix+in.CorrelationTag))
	}

	tx, err := types.NewTransaction(types.NewTransactionParam{
		Signers: []types.Account{custody, mint},
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        owner,
			RecentBlockhash: recent,
			Instructions:    ins,
		}),
	})
	if err != nil {
		return types.Transaction{}, "", fmt.Errorf("nft_mint: NewTransaction: %w", err)
	}
	return tx, mint.PublicKey.ToBase58(), nil
}

// buildMemoIx builds an SPL memo instruction signed by signer.
func buildMemoIx(signer common.PublicKey, memo string) types.Instruction {
	return types.Instruction{
		ProgramID: common.PublicKeyFromString(memoProgramID),
		Accounts: []types.AccountMeta{
			{PubKey: signer, IsSigner: true, IsWritable: false},
		},
		Data: []byte(memo),
	}
}
