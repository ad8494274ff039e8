// generate_custodial_wallet.go
//
// Blockto のカストディアルウォレットを生成する小さなツールです。
// - BIP-39 mnemonic (24 words) を生成し、0600 のファイルに保存
// - サービスと同じ導出パス (m/44'/501'/0'/0') でアドレスを表示
// - -mnemonic-file を指定すると既存 mnemonic のアドレスだけを表示します。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tyler-smith/go-bip39"

	solanainfra "blockto/internal/infra/solana"
)

func main() {
	out := flag.String("out", "blockto-custodial-mnemonic.txt", "where to write the new mnemonic")
	existing := flag.String("mnemonic-file", "", "print the address of an existing mnemonic instead of generating one")
	flag.Parse()

	var mnemonic string
	if *existing != "" {
		b, err := os.ReadFile(*existing)
		if err != nil {
			log.Fatalf("failed to read %s: %v", *existing, err)
		}
		mnemonic = strings.TrimSpace(string(b))
	} else {
		entropy, err := bip39.NewEntropy(256)
		if err != nil {
			log.Fatalf("failed to generate entropy: %v", err)
		}
		mnemonic, err = bip39.NewMnemonic(entropy)
		if err != nil {
			log.Fatalf("failed to build mnemonic: %v", err)
		}
		// 上書き防止
		f, err := os.OpenFile(*out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *out, err)
		}
		if _, err := f.WriteString(mnemonic + "\n"); err != nil {
			log.Fatalf("failed to write %s: %v", *out, err)
		}
		_ = f.Close()
	}

	signer, err := solanainfra.NewCustodialSigner(context.Background(), solanainfra.EnvSeedSource{Mnemonic: mnemonic})
	if err != nil {
		log.Fatalf("failed to derive custodial account: %v", err)
	}
	defer signer.Close()

	fmt.Println("============================================")
	fmt.Println("✅ Blockto custodial wallet")
	fmt.Println("============================================")
	fmt.Printf("Derivation path:\n  %s\n\n", solanainfra.CustodialDerivationPath)
	fmt.Printf("Address (fund this on devnet with `solana airdrop`):\n  %s\n\n", signer.Address())
	if *existing == "" {
		fmt.Printf("Mnemonic file:\n  %s\n\n", *out)
		fmt.Println("⚠ IMPORTANT:")
		fmt.Println("  - この mnemonic ファイルは Git に絶対にコミットしないでください。")
		fmt.Println("  - GCP Secret Manager に登録し (CUSTODIAL_SECRET_NAME)、ローカルのコピーは削除してください。")
	}
}
