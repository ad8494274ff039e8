// cmd/devnet_mint/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	usecase "blockto/internal/application/usecase"
	"blockto/internal/platform/di"
)

// Runs one mint-and-transfer against the configured network (devnet by default),
// using the same Config / Secret Manager settings as the API.
func main() {
	recipient := flag.String("to", "", "recipient wallet address (base58)")
	name := flag.String("name", "Blockto devnet test", "asset name")
	desc := flag.String("desc", "minted by cmd/devnet_mint", "asset description")
	image := flag.String("image", "", "image content id (CID) on the storage gateway")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	if *recipient == "" || *image == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	container, err := di.NewContainer(ctx)
	if err != nil {
		log.Fatalf("failed to init container: %v", err)
	}
	defer container.Close()

	if container.Signer == nil {
		log.Fatalf("custodial signer is nil (mnemonic / secret not loaded)")
	}
	log.Printf("[devnet-mint] network=%s custody=%s", container.Config.SolanaNetwork, container.Signer.Address())

	out, err := container.MintUC.MintAndTransfer(ctx, usecase.MintAndTransferInput{
		RecipientAddress: *recipient,
		AssetName:        *name,
		AssetDescription: *desc,
		ImageContentID:   *image,
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)

	if err != nil {
		log.Fatalf("[devnet-mint] FAILED kind=%s err=%v", out.ErrorKind, err)
	}
	log.Printf("[devnet-mint] OK asset=%s finalityMarker=%d", out.Asset.AssetID, out.FinalityMarker)
}
