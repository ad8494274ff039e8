package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerdom "blockto/internal/domain/ledger"
	mintdom "blockto/internal/domain/mint"
	transferdom "blockto/internal/domain/transfer"
)

const (
	custodyAddr   = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	recipientAddr = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	createdAsset  = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
)

// ---- fakes ----

type fakePublisher struct {
	calls int
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, d mintdom.AssetDescription) (mintdom.MetadataDescriptor, error) {
	p.calls++
	if p.err != nil {
		return mintdom.MetadataDescriptor{}, p.err
	}
	cid := fmt.Sprintf("bafymeta%d", p.calls)
	return mintdom.NewMetadataDescriptor(d, "https://gateway.test/ipfs", cid)
}

type fakeAccount struct {
	addr     string
	released bool
}

func (a *fakeAccount) Address() string { return a.addr }
func (a *fakeAccount) Release()        { a.released = true }

type fakeSigner struct {
	mu       sync.Mutex
	derived  []*fakeAccount
	failFrom int // 1-based derivation index that starts failing; 0 = never
}

func (s *fakeSigner) DeriveAccount(context.Context) (ledgerdom.SigningAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFrom > 0 && len(s.derived)+1 >= s.failFrom {
		return nil, fmt.Errorf("%w: vault sealed", mintdom.ErrKeyDerivation)
	}
	a := &fakeAccount{addr: custodyAddr}
	s.derived = append(s.derived, a)
	return a, nil
}

func (s *fakeSigner) Address() string { return custodyAddr }

// derivingSigner exposes only DeriveAccount, so the custody address has to be derived.
type derivingSigner struct{ s *fakeSigner }

func (d derivingSigner) DeriveAccount(ctx context.Context) (ledgerdom.SigningAccount, error) {
	return d.s.DeriveAccount(ctx)
}

type fakeLedger struct {
	intents []ledgerdom.Intent
	mintErr error
	xferErr error
}

func (l *fakeLedger) SubmitAndAwait(_ context.Context, acct ledgerdom.SigningAccount, intent ledgerdom.Intent) (ledgerdom.Transaction, error) {
	if fa, ok := acct.(*fakeAccount); ok && fa.released {
		return ledgerdom.Transaction{}, errors.New("released account used")
	}
	l.intents = append(l.intents, intent)
	switch intent.Kind {
	case ledgerdom.IntentMintAsset:
		if l.mintErr != nil {
			return ledgerdom.Transaction{}, l.mintErr
		}
		tx := ledgerdom.NewPending("mintsig-"+intent.Mint.CorrelationTag, intent.Kind, time.Now())
		tx.CreatedAssetID = createdAsset
		_ = tx.MarkSucceeded(1000)
		return tx, nil
	default:
		if l.xferErr != nil {
			return ledgerdom.Transaction{}, l.xferErr
		}
		tx := ledgerdom.NewPending("xfersig", intent.Kind, time.Now())
		_ = tx.MarkSucceeded(1010)
		return tx, nil
	}
}

func (l *fakeLedger) count(kind ledgerdom.IntentKind) int {
	n := 0
	for _, i := range l.intents {
		if i.Kind == kind {
			n++
		}
	}
	return n
}

type resolveCall struct {
	owner    string
	min      uint64
	expected string
}

type fakeResolver struct {
	calls []resolveCall
	err   error
}

func (r *fakeResolver) ResolveLatestAsset(_ context.Context, owner string, min uint64, expected string) (mintdom.MintedAsset, error) {
	r.calls = append(r.calls, resolveCall{owner, min, expected})
	if r.err != nil {
		return mintdom.MintedAsset{}, r.err
	}
	return mintdom.NewMintedAsset(expected, owner, min, time.Now())
}

type fakeIncidents struct {
	saved []transferdom.Incident
	err   error
}

func (f *fakeIncidents) Save(_ context.Context, inc transferdom.Incident) error {
	f.saved = append(f.saved, inc)
	return f.err
}

type fakeAlerter struct{ sent []transferdom.Incident }

func (f *fakeAlerter) NotifyStranded(_ context.Context, inc transferdom.Incident) error {
	f.sent = append(f.sent, inc)
	return nil
}

type fakeObserver struct {
	stages   []transferdom.Stage
	outcomes []transferdom.Outcome
	stranded []transferdom.Kind
}

func (o *fakeObserver) ObserveStage(s transferdom.Stage, _ time.Duration, _ error) {
	o.stages = append(o.stages, s)
}
func (o *fakeObserver) ObserveOutcome(out transferdom.Outcome, _ time.Duration) {
	o.outcomes = append(o.outcomes, out)
}
func (o *fakeObserver) ObserveStranded(k transferdom.Kind) { o.stranded = append(o.stranded, k) }

type harness struct {
	pub   *fakePublisher
	sig   *fakeSigner
	led   *fakeLedger
	res   *fakeResolver
	inc   *fakeIncidents
	alert *fakeAlerter
	obs   *fakeObserver
	uc    *MintTransferUsecase
}

func newHarness() *harness {
	h := &harness{
		pub:   &fakePublisher{},
		sig:   &fakeSigner{},
		led:   &fakeLedger{},
		res:   &fakeResolver{},
		inc:   &fakeIncidents{},
		alert: &fakeAlerter{},
		obs:   &fakeObserver{},
	}
	n := 0
	h.uc = NewMintTransferUsecase(h.pub, h.sig, h.led, h.res, "BLKTO").
		WithIncidents(h.inc, h.alert).
		WithObserver(h.obs)
	h.uc.newTag = func() string {
		n++
		return fmt.Sprintf("tag-%d", n)
	}
	return h
}

func validInput() MintAndTransferInput {
	return MintAndTransferInput{
		RecipientAddress: recipientAddr,
		AssetName:        "Blockto #1",
		AssetDescription: "first drop",
		ImageContentID:   "bafyimage",
	}
}

// ---- tests ----

func TestMintAndTransfer_HappyPath(t *testing.T) {
	h := newHarness()

	out, err := h.uc.MintAndTransfer(context.Background(), validInput())
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Empty(t, out.ErrorKind)
	assert.Equal(t, uint64(1010), out.FinalityMarker)
	assert.Equal(t, recipientAddr, out.Asset.Owner)
	assert.Equal(t, createdAsset, out.Asset.AssetID)
	assert.Equal(t, "xfersig", out.TransferSignature)

	require.Len(t, h.led.intents, 2)
	assert.Equal(t, ledgerdom.IntentMintAsset, h.led.intents[0].Kind)
	assert.Equal(t, "https://gateway.test/ipfs/bafymeta1", h.led.intents[0].Mint.URI)
	assert.Equal(t, "BLKTO", h.led.intents[0].Mint.Symbol)
	assert.Equal(t, "tag-1", h.led.intents[0].Mint.CorrelationTag)
	assert.Equal(t, ledgerdom.IntentTransferAsset, h.led.intents[1].Kind)
	assert.Equal(t, recipientAddr, h.led.intents[1].Transfer.Recipient)
	assert.Equal(t, createdAsset, h.led.intents[1].Transfer.AssetID)

	require.Len(t, h.res.calls, 1)
	assert.Equal(t, resolveCall{custodyAddr, 1000, createdAsset}, h.res.calls[0])

	require.Len(t, h.sig.derived, 2)
	for _, a := range h.sig.derived {
		assert.True(t, a.released)
	}

	assert.Equal(t, []transferdom.Stage{
		transferdom.StageMetadataPublished,
		transferdom.StageMinted,
		transferdom.StageAssetResolved,
		transferdom.StageTransferred,
	}, h.obs.stages)
	assert.Len(t, h.obs.outcomes, 1)
	assert.Empty(t, h.inc.saved)
	assert.Empty(t, h.alert.sent)
}

func TestMintAndTransfer_MissingSession(t *testing.T) {
	h := newHarness()
	in := validInput()
	in.RecipientAddress = "  "

	out, err := h.uc.MintAndTransfer(context.Background(), in)
	require.Error(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, transferdom.KindMissingSession, out.ErrorKind)
	assert.Zero(t, h.pub.calls)
	assert.Empty(t, h.led.intents)
	assert.Empty(t, h.sig.derived)
}

func TestMintAndTransfer_InvalidRequest(t *testing.T) {
	cases := map[string]func(*MintAndTransferInput){
		"bad recipient": func(in *MintAndTransferInput) { in.RecipientAddress = "not-base58!" },
		"empty name":    func(in *MintAndTransferInput) { in.AssetName = "" },
		"empty image":   func(in *MintAndTransferInput) { in.ImageContentID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			in := validInput()
			mutate(&in)

			out, err := h.uc.MintAndTransfer(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, transferdom.KindInvalidRequest, out.ErrorKind)
			assert.Zero(t, h.pub.calls)
			assert.Empty(t, h.led.intents)
		})
	}
}

func TestMintAndTransfer_RecipientIsCustody(t *testing.T) {
	h := newHarness()
	in := validInput()
	in.RecipientAddress = custodyAddr

	out, err := h.uc.MintAndTransfer(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, transferdom.ErrInvalidRequest)
	assert.False(t, out.Success)
	assert.Equal(t, transferdom.KindInvalidRequest, out.ErrorKind)
	assert.Zero(t, h.pub.calls)
	assert.Empty(t, h.led.intents)
	assert.Empty(t, h.sig.derived)
	assert.Empty(t, h.inc.saved)
}

func TestMintAndTransfer_RecipientIsCustody_DerivedAddress(t *testing.T) {
	h := newHarness()
	h.uc.signer = derivingSigner{s: h.sig}
	in := validInput()
	in.RecipientAddress = custodyAddr

	out, err := h.uc.MintAndTransfer(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, transferdom.KindInvalidRequest, out.ErrorKind)
	assert.Zero(t, h.pub.calls)
	assert.Empty(t, h.led.intents)
	require.Len(t, h.sig.derived, 1)
	assert.True(t, h.sig.derived[0].released)
}

func TestMintAndTransfer_DerivedAddressHappyPath(t *testing.T) {
	h := newHarness()
	h.uc.signer = derivingSigner{s: h.sig}

	out, err := h.uc.MintAndTransfer(context.Background(), validInput())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, recipientAddr, out.Asset.Owner)
	assert.Len(t, h.sig.derived, 3)
}

func TestMintAndTransfer_StorageUnavailableMakesNoLedgerCalls(t *testing.T) {
	h := newHarness()
	h.pub.err = fmt.Errorf("%w: lighthouse 503", mintdom.ErrStorageUnavailable)

	out, err := h.uc.MintAndTransfer(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, transferdom.KindStorageUnavailable, out.ErrorKind)
	assert.Empty(t, h.led.intents)
	assert.Empty(t, h.sig.derived)
	assert.Empty(t, h.res.calls)

	var fe *transferdom.FailureError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, transferdom.StageStart, fe.Stage)
}

func TestMintAndTransfer_MintFailuresStopBeforeTransfer(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want transferdom.Kind
	}{
		{"rejected", &ledgerdom.RejectedError{Reason: "insufficient lamports"}, transferdom.KindTransactionRejected},
		{"timeout", fmt.Errorf("%w: signature=abc", ledgerdom.ErrFinalityTimeout), transferdom.KindFinalityTimeout},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness()
			h.led.mintErr = c.err

			out, err := h.uc.MintAndTransfer(context.Background(), validInput())
			require.Error(t, err)
			assert.Equal(t, c.want, out.ErrorKind)
			assert.Equal(t, 0, h.led.count(ledgerdom.IntentTransferAsset))
			assert.Empty(t, h.res.calls)
			assert.Empty(t, h.inc.saved)
			assert.Zero(t, out.FinalityMarker)

			var fe *transferdom.FailureError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, transferdom.StageMetadataPublished, fe.Stage)
		})
	}
}

func TestMintAndTransfer_KeyDerivationBeforeMint(t *testing.T) {
	h := newHarness()
	h.sig.failFrom = 1

	out, err := h.uc.MintAndTransfer(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, transferdom.KindKeyDerivationError, out.ErrorKind)
	assert.Empty(t, h.led.intents)
}

func TestMintAndTransfer_AssetNotFoundRecordsIncident(t *testing.T) {
	h := newHarness()
	h.res.err = fmt.Errorf("%w: not visible after 10 attempts", mintdom.ErrAssetNotFound)

	out, err := h.uc.MintAndTransfer(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, transferdom.KindAssetNotFound, out.ErrorKind)
	assert.Equal(t, 0, h.led.count(ledgerdom.IntentTransferAsset))
	assert.Equal(t, "mintsig-tag-1", out.MintSignature)

	require.Len(t, h.inc.saved, 1)
	assert.Equal(t, transferdom.KindAssetNotFound, h.inc.saved[0].Kind)
	assert.Equal(t, uint64(1000), h.inc.saved[0].MintSlot)
	assert.Empty(t, h.alert.sent)
	assert.Equal(t, []transferdom.Kind{transferdom.KindAssetNotFound}, h.obs.stranded)
}

func TestMintAndTransfer_TransferFailedAfterMint(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*harness)
	}{
		{"rejected", func(h *harness) { h.led.xferErr = &ledgerdom.RejectedError{Reason: "owner does not match"} }},
		{"timeout", func(h *harness) { h.led.xferErr = ledgerdom.ErrFinalityTimeout }},
		{"key derivation", func(h *harness) { h.sig.failFrom = 2 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness()
			c.setup(h)

			out, err := h.uc.MintAndTransfer(context.Background(), validInput())
			require.Error(t, err)
			assert.False(t, out.Success)
			assert.Equal(t, transferdom.KindTransferFailedAfterMint, out.ErrorKind)
			assert.Equal(t, custodyAddr, out.Asset.Owner)

			require.Len(t, h.inc.saved, 1)
			inc := h.inc.saved[0]
			assert.Equal(t, transferdom.KindTransferFailedAfterMint, inc.Kind)
			assert.Equal(t, createdAsset, inc.AssetID)
			assert.Equal(t, recipientAddr, inc.Recipient)
			assert.Equal(t, "tag-1", inc.ID)
			require.NoError(t, inc.Validate())

			require.Len(t, h.alert.sent, 1)
			assert.Equal(t, []transferdom.Kind{transferdom.KindTransferFailedAfterMint}, h.obs.stranded)
		})
	}
}

func TestMintAndTransfer_IncidentStoreFailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness()
	h.led.xferErr = ledgerdom.ErrFinalityTimeout
	h.inc.err = errors.New("firestore down")

	out, err := h.uc.MintAndTransfer(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, transferdom.KindTransferFailedAfterMint, out.ErrorKind)
	assert.Len(t, h.alert.sent, 1)
}

func TestMintAndTransfer_NoDeduplication(t *testing.T) {
	h := newHarness()

	_, err := h.uc.MintAndTransfer(context.Background(), validInput())
	require.NoError(t, err)
	_, err = h.uc.MintAndTransfer(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, 2, h.pub.calls)
	assert.Equal(t, 2, h.led.count(ledgerdom.IntentMintAsset))
	assert.NotEqual(t, h.led.intents[0].Mint.CorrelationTag, h.led.intents[2].Mint.CorrelationTag)
}

func TestMintAndTransfer_NotConfigured(t *testing.T) {
	uc := NewMintTransferUsecase(nil, nil, nil, nil, "")
	_, err := uc.MintAndTransfer(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrMintTransferNotConfigured)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", _mask(" "))
	assert.Equal(t, "short", _mask("short"))
	assert.Equal(t, "9WzD***AWWM", _mask(recipientAddr))
}
