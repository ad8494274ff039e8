package solana

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerdom "blockto/internal/domain/ledger"
	mintdom "blockto/internal/domain/mint"
)

const recipientWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// ---- fakes ----

type fakeWriter struct {
	mu        sync.Mutex
	sent      []types.Transaction
	sendErr   error
	delay     time.Duration
	blockhash string

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{blockhash: types.NewAccount().PublicKey.ToBase58()}
}

func (w *fakeWriter) LatestBlockhash(context.Context) (string, error) {
	n := w.inflight.Add(1)
	for {
		m := w.maxInflight.Load()
		if n <= m || w.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	return w.blockhash, nil
}

func (w *fakeWriter) MinimumBalanceForRentExemption(context.Context, uint64) (uint64, error) {
	return 1461600, nil
}

func (w *fakeWriter) SendTransaction(_ context.Context, tx types.Transaction) (string, error) {
	defer w.inflight.Add(-1)
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	if w.sendErr != nil {
		return "", w.sendErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, tx)
	return types.NewAccount().PublicKey.ToBase58(), nil
}

type fakeReader struct {
	mu        sync.Mutex
	statuses  [][]*SignatureStatus // consumed one per poll; last one repeats
	statusErr error
	polls     int
	missing   map[string]bool // addresses AccountExists reports absent

	tokenAccounts func(minSlot uint64, call int) (GetTokenAccountsByOwnerResult, error)
	listCalls     int
}

func (r *fakeReader) GetSignatureStatuses(context.Context, []string) ([]*SignatureStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	if r.statusErr != nil {
		return nil, r.statusErr
	}
	if len(r.statuses) == 0 {
		return []*SignatureStatus{nil}, nil
	}
	cur := r.statuses[0]
	if len(r.statuses) > 1 {
		r.statuses = r.statuses[1:]
	}
	return cur, nil
}

func (r *fakeReader) AccountExists(_ context.Context, addr string) (bool, error) {
	return !r.missing[addr], nil
}

func (r *fakeReader) GetTokenAccountsByOwner(_ context.Context, _ string, _ string, minSlot uint64) (GetTokenAccountsByOwnerResult, error) {
	r.mu.Lock()
	r.listCalls++
	n := r.listCalls
	r.mu.Unlock()
	return r.tokenAccounts(minSlot, n)
}

func finalized(slot uint64) []*SignatureStatus {
	return []*SignatureStatus{{Slot: slot, ConfirmationStatus: ConfirmationFinalized, Err: json.RawMessage("null")}}
}

func confirmed(slot uint64) []*SignatureStatus {
	return []*SignatureStatus{{Slot: slot, ConfirmationStatus: ConfirmationConfirmed}}
}

func fastPoll() PollConfig {
	return PollConfig{Timeout: 2 * time.Second, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func testAccount(t *testing.T) *CustodialAccount {
	t.Helper()
	s, err := NewCustodialSigner(context.Background(), EnvSeedSource{Mnemonic: testMnemonic})
	require.NoError(t, err)
	a, err := s.DeriveAccount(context.Background())
	require.NoError(t, err)
	return a.(*CustodialAccount)
}

func accountKeys(tx types.Transaction) []string {
	out := make([]string, 0, len(tx.Message.Accounts))
	for _, k := range tx.Message.Accounts {
		out = append(out, k.ToBase58())
	}
	return out
}

// ---- tests ----

func TestSubmitAndAwait_MintFinalized(t *testing.T) {
	w := newFakeWriter()
	r := &fakeReader{statuses: [][]*SignatureStatus{{nil}, confirmed(500), finalized(555)}}
	s := NewSubmitter(w, r, fastPoll(), 500)
	acct := testAccount(t)

	tx, err := s.SubmitAndAwait(context.Background(), acct, ledgerdom.NewMintIntent("Blockto #1", "BLKTO", "https://g/ipfs/cid", "tag-1"))
	require.NoError(t, err)

	assert.Equal(t, ledgerdom.StatusSuccess, tx.Status)
	assert.Equal(t, uint64(555), tx.LedgerVersion)
	assert.Equal(t, ledgerdom.IntentMintAsset, tx.Kind)
	assert.True(t, mintdom.IsValidAddress(tx.CreatedAssetID))
	assert.NotEmpty(t, tx.Hash)
	assert.GreaterOrEqual(t, r.polls, 3)

	require.Len(t, w.sent, 1)
	sent := w.sent[0]
	assert.Len(t, sent.Signatures, 2)
	keys := accountKeys(sent)
	assert.Contains(t, keys, tx.CreatedAssetID)
	assert.Contains(t, keys, acct.Address())
	assert.Contains(t, keys, memoProgramID)
	assert.Equal(t, acct.Address(), keys[0])
}

func TestSubmitAndAwait_RejectedOnChain(t *testing.T) {
	w := newFakeWriter()
	r := &fakeReader{statuses: [][]*SignatureStatus{{{
		Slot:               9,
		ConfirmationStatus: ConfirmationConfirmed,
		Err:                json.RawMessage(`{"InstructionError":[0,{"Custom":1}]}`),
	}}}}
	s := NewSubmitter(w, r, fastPoll(), 0)

	tx, err := s.SubmitAndAwait(context.Background(), testAccount(t), ledgerdom.NewMintIntent("n", "S", "https://g/c", "t"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledgerdom.ErrTransactionRejected)

	var rej *ledgerdom.RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Contains(t, rej.Reason, "Custom")
	assert.Equal(t, ledgerdom.StatusFailed, tx.Status)
	assert.Zero(t, tx.LedgerVersion)
}

func TestSubmitAndAwait_FinalityTimeout(t *testing.T) {
	w := newFakeWriter()
	r := &fakeReader{statuses: [][]*SignatureStatus{confirmed(10)}}
	s := NewSubmitter(w, r, PollConfig{Timeout: 40 * time.Millisecond, InitialInterval: 2 * time.Millisecond, MaxInterval: 10 * time.Millisecond}, 0)

	start := time.Now()
	tx, err := s.SubmitAndAwait(context.Background(), testAccount(t), ledgerdom.NewMintIntent("n", "S", "https://g/c", "t"))
	assert.ErrorIs(t, err, ledgerdom.ErrFinalityTimeout)
	assert.Equal(t, ledgerdom.StatusPending, tx.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSubmitAndAwait_RPCErrorsUntilDeadlineAreTimeout(t *testing.T) {
	r := &fakeReader{statusErr: errors.New("connection refused")}
	s := NewSubmitter(newFakeWriter(), r, PollConfig{Timeout: 30 * time.Millisecond, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}, 0)

	_, err := s.SubmitAndAwait(context.Background(), testAccount(t), ledgerdom.NewMintIntent("n", "S", "https://g/c", "t"))
	assert.ErrorIs(t, err, ledgerdom.ErrFinalityTimeout)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSubmitAndAwait_SendFailureIsRejection(t *testing.T) {
	w := newFakeWriter()
	w.sendErr = errors.New("Transaction simulation failed: insufficient lamports")
	r := &fakeReader{}
	s := NewSubmitter(w, r, fastPoll(), 0)

	_, err := s.SubmitAndAwait(context.Background(), testAccount(t), ledgerdom.NewMintIntent("n", "S", "https://g/c", "t"))
	assert.ErrorIs(t, err, ledgerdom.ErrTransactionRejected)
	assert.Contains(t, err.Error(), "insufficient lamports")
	assert.Zero(t, r.polls)
}

func TestSubmitAndAwait_TransferCreatesMissingDestinationATA(t *testing.T) {
	acct := testAccount(t)
	mint := types.NewAccount().PublicKey
	toATA, _, err := common.FindAssociatedTokenAddress(common.PublicKeyFromString(recipientWallet), mint)
	require.NoError(t, err)

	w := newFakeWriter()
	r := &fakeReader{
		statuses: [][]*SignatureStatus{finalized(77)},
		missing:  map[string]bool{toATA.ToBase58(): true},
	}
	s := NewSubmitter(w, r, fastPoll(), 0)

	tx, err := s.SubmitAndAwait(context.Background(), acct, ledgerdom.NewTransferIntent(mint.ToBase58(), recipientWallet))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), tx.LedgerVersion)
	assert.Empty(t, tx.CreatedAssetID)

	require.Len(t, w.sent, 1)
	assert.Len(t, w.sent[0].Message.Instructions, 2)
	assert.Contains(t, accountKeys(w.sent[0]), common.SPLAssociatedTokenAccountProgramID.ToBase58())
	assert.Contains(t, accountKeys(w.sent[0]), recipientWallet)
	assert.Contains(t, accountKeys(w.sent[0]), toATA.ToBase58())
	assert.Len(t, w.sent[0].Signatures, 1)
}

func TestSubmitAndAwait_TransferWithExistingATA(t *testing.T) {
	w := newFakeWriter()
	r := &fakeReader{statuses: [][]*SignatureStatus{finalized(78)}}
	s := NewSubmitter(w, r, fastPoll(), 0)

	_, err := s.SubmitAndAwait(context.Background(), testAccount(t), ledgerdom.NewTransferIntent(types.NewAccount().PublicKey.ToBase58(), recipientWallet))
	require.NoError(t, err)
	require.Len(t, w.sent, 1)
	assert.Len(t, w.sent[0].Message.Instructions, 1)
}

func TestSubmitAndAwait_TransferWithoutSourceATA(t *testing.T) {
	acct := testAccount(t)
	mint := types.NewAccount().PublicKey
	fromATA, _, err := common.FindAssociatedTokenAddress(common.PublicKeyFromString(acct.Address()), mint)
	require.NoError(t, err)

	w := newFakeWriter()
	r := &fakeReader{missing: map[string]bool{fromATA.ToBase58(): true}}
	s := NewSubmitter(w, r, fastPoll(), 0)

	_, err = s.SubmitAndAwait(context.Background(), acct, ledgerdom.NewTransferIntent(mint.ToBase58(), recipientWallet))
	assert.ErrorIs(t, err, ledgerdom.ErrTransactionRejected)
	assert.Contains(t, err.Error(), "source ATA")
	assert.Empty(t, w.sent)
}

func TestSubmitAndAwait_SignerChecks(t *testing.T) {
	s := NewSubmitter(newFakeWriter(), &fakeReader{}, fastPoll(), 0)
	intent := ledgerdom.NewMintIntent("n", "S", "https://g/c", "t")

	acct := testAccount(t)
	acct.Release()
	_, err := s.SubmitAndAwait(context.Background(), acct, intent)
	assert.ErrorIs(t, err, ErrAccountReleased)

	_, err = s.SubmitAndAwait(context.Background(), otherAccount{}, intent)
	assert.ErrorIs(t, err, ErrUnsupportedSigner)

	_, err = s.SubmitAndAwait(context.Background(), testAccount(t), ledgerdom.Intent{Kind: "burn"})
	assert.ErrorIs(t, err, ledgerdom.ErrInvalidIntent)

	_, err = (&Submitter{}).SubmitAndAwait(context.Background(), testAccount(t), intent)
	assert.ErrorIs(t, err, ErrSubmitterNotConfigured)
}

type otherAccount struct{}

func (otherAccount) Address() string { return recipientWallet }
func (otherAccount) Release()        {}

func TestSubmitAndAwait_SerializesPerAccount(t *testing.T) {
	w := newFakeWriter()
	w.delay = 5 * time.Millisecond
	r := &fakeReader{statuses: [][]*SignatureStatus{finalized(1)}}
	s := NewSubmitter(w, r, fastPoll(), 0)

	accts := make([]*CustodialAccount, 5)
	for i := range accts {
		accts[i] = testAccount(t)
	}

	var wg sync.WaitGroup
	for _, acct := range accts {
		wg.Add(1)
		go func(acct *CustodialAccount) {
			defer wg.Done()
			defer acct.Release()
			_, err := s.SubmitAndAwait(context.Background(), acct, ledgerdom.NewTransferIntent(types.NewAccount().PublicKey.ToBase58(), recipientWallet))
			assert.NoError(t, err)
		}(acct)
	}
	wg.Wait()

	assert.Equal(t, int32(1), w.maxInflight.Load())
	assert.Len(t, w.sent, 5)
	assert.Zero(t, s.locks.size())
}

func TestEndpointForNetwork(t *testing.T) {
	assert.Equal(t, "https://api.devnet.solana.com", EndpointForNetwork("", ""))
	assert.Equal(t, "https://api.mainnet-beta.solana.com", EndpointForNetwork("mainnet", ""))
	assert.Equal(t, "https://api.testnet.solana.com", EndpointForNetwork("testnet", ""))
	assert.Equal(t, "http://rpc.local", EndpointForNetwork("mainnet", " http://rpc.local "))
}
