// internal/infra/solana/custodial_signer.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/blocto/solana-go-sdk/pkg/hdwallet"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/tyler-smith/go-bip39"

	ledgerdom "blockto/internal/domain/ledger"
	mintdom "blockto/internal/domain/mint"
)

// CustodialDerivationPath is the fixed SLIP-0010 path of the custodial account.
const CustodialDerivationPath = `m/44'/501'/0'/0'`

var (
	ErrSignerClosed    = errors.New("custodial_signer: closed")
	ErrAccountReleased = errors.New("custodial_signer: account released")
)

// CustodialSigner keeps the BIP-39 seed in memory and derives one account per transaction.
type CustodialSigner struct {
	mu      sync.RWMutex
	seed    []byte
	path    string
	address string
}

// NewCustodialSigner loads the mnemonic once and expands it into the seed vault.
func NewCustodialSigner(ctx context.Context, src SeedSource) (*CustodialSigner, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: %w", mintdom.ErrKeyDerivation, ErrSeedNotConfigured)
	}
	mnemonic, err := src.LoadMnemonic(ctx)
	if err != nil {
		return nil, err
	}
	return newCustodialSignerFromMnemonic(mnemonic, CustodialDerivationPath)
}

func newCustodialSignerFromMnemonic(mnemonic, path string) (*CustodialSigner, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid mnemonic", mintdom.ErrKeyDerivation)
	}
	s := &CustodialSigner{
		seed: bip39.NewSeed(mnemonic, ""),
		path: path,
	}

	// 起動時に 1 度導出して、アドレスのみ保持する
	acct, err := s.derive()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.address = acct.Address()
	acct.Release()

	log.Printf("[custodial_signer] ready path=%s address=%s", path, s.address)
	return s, nil
}

// Address is the public address of the custodial account.
func (s *CustodialSigner) Address() string {
	if s == nil {
		return ""
	}
	return s.address
}

// DeriveAccount derives a fresh signing account. The caller must Release it.
func (s *CustodialSigner) DeriveAccount(ctx context.Context) (ledgerdom.SigningAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", mintdom.ErrKeyDerivation, err)
	}
	acct, err := s.derive()
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *CustodialSigner) derive() (*CustodialAccount, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: %w", mintdom.ErrKeyDerivation, ErrSignerClosed)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.seed) == 0 {
		return nil, fmt.Errorf("%w: %w", mintdom.ErrKeyDerivation, ErrSignerClosed)
	}
	key, err := hdwallet.Derived(s.path, s.seed)
	if err != nil {
		return nil, fmt.Errorf("%w: hdwallet derive: %v", mintdom.ErrKeyDerivation, err)
	}
	acc, err := types.AccountFromSeed(key.PrivateKey)
	clear(key.PrivateKey)
	clear(key.ChainCode)
	if err != nil {
		return nil, fmt.Errorf("%w: account from seed: %v", mintdom.ErrKeyDerivation, err)
	}
	return &CustodialAccount{acc: acc, address: acc.PublicKey.ToBase58()}, nil
}

// Close wipes the seed. Derivation fails afterwards.
func (s *CustodialSigner) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.seed)
	s.seed = nil
}

// CustodialAccount is a derived account that only exposes its address and signing.
type CustodialAccount struct {
	mu       sync.Mutex
	acc      types.Account
	address  string
	released bool
}

var _ ledgerdom.SigningAccount = (*CustodialAccount)(nil)

func (a *CustodialAccount) Address() string { return a.address }

// Release wipes the private key.
func (a *CustodialAccount) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	clear(a.acc.PrivateKey)
	a.released = true
}

// account returns the signer for transaction building.
func (a *CustodialAccount) account() (types.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return types.Account{}, ErrAccountReleased
	}
	return a.acc, nil
}
