// internal/application/usecase/mint_transfer_usecase.go
package usecase

/*
責任と機能:
- 「メタデータ publish → カストディ口座で mint → mint 結果の asset を解決 → 受取人へ transfer」
  を 1 回の呼び出しで順番に実行するオーケストレーター。
- 各段階の失敗は transfer.Kind に正規化し、Outcome は 1 回の実行につき必ず 1 つだけ返す。
- 外部依存（ストレージ / 鍵導出 / Solana RPC / 永続化 / メール）は Port(interface) に閉じ込め、
  Usecase は手順のみを担う。

重要:
- mint 成功後に resolve / transfer が失敗した場合、asset はカストディ口座に残る。
  自動の巻き戻しはせず、incident として記録し運用者に通知する。
*/

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	ledgerdom "blockto/internal/domain/ledger"
	mintdom "blockto/internal/domain/mint"
	transferdom "blockto/internal/domain/transfer"
)

// ============================================================
// Ports
// ============================================================

// MetadataPublisher uploads the metadata JSON and returns its descriptor.
type MetadataPublisher interface {
	Publish(ctx context.Context, desc mintdom.AssetDescription) (mintdom.MetadataDescriptor, error)
}

// CustodialSigner derives the custodial signing account. One account per transaction.
type CustodialSigner interface {
	DeriveAccount(ctx context.Context) (ledgerdom.SigningAccount, error)
}

// LedgerSubmitter builds, signs, submits and waits for finality.
type LedgerSubmitter interface {
	SubmitAndAwait(ctx context.Context, acct ledgerdom.SigningAccount, intent ledgerdom.Intent) (ledgerdom.Transaction, error)
}

// AssetResolver finds the asset created by a finalized mint.
// expectedAssetID may be empty; the resolver then falls back to the latest held asset.
type AssetResolver interface {
	ResolveLatestAsset(ctx context.Context, owner string, minLedgerVersion uint64, expectedAssetID string) (mintdom.MintedAsset, error)
}

// IncidentAlerter notifies operators about stranded assets.
type IncidentAlerter interface {
	NotifyStranded(ctx context.Context, inc transferdom.Incident) error
}

// WorkflowObserver receives stage timings and final outcomes (metrics).
type WorkflowObserver interface {
	ObserveStage(stage transferdom.Stage, elapsed time.Duration, err error)
	ObserveOutcome(out transferdom.Outcome, elapsed time.Duration)
	ObserveStranded(kind transferdom.Kind)
}

// ============================================================
// Usecase
// ============================================================

type MintTransferUsecase struct {
	publisher MetadataPublisher
	signer    CustodialSigner
	ledger    LedgerSubmitter
	resolver  AssetResolver

	// optional
	incidents transferdom.IncidentRepository
	alerter   IncidentAlerter
	observer  WorkflowObserver

	symbol string

	newTag func() string
	now    func() time.Time
}

func NewMintTransferUsecase(
	publisher MetadataPublisher,
	signer CustodialSigner,
	ledger LedgerSubmitter,
	resolver AssetResolver,
	symbol string,
) *MintTransferUsecase {
	return &MintTransferUsecase{
		publisher: publisher,
		signer:    signer,
		ledger:    ledger,
		resolver:  resolver,
		symbol:    strings.TrimSpace(symbol),
		newTag:    uuid.NewString,
		now:       time.Now,
	}
}

// WithIncidents sets where stranded assets are recorded and who gets alerted. Both may be nil.
func (u *MintTransferUsecase) WithIncidents(repo transferdom.IncidentRepository, alerter IncidentAlerter) *MintTransferUsecase {
	u.incidents = repo
	u.alerter = alerter
	return u
}

func (u *MintTransferUsecase) WithObserver(o WorkflowObserver) *MintTransferUsecase {
	u.observer = o
	return u
}

var ErrMintTransferNotConfigured = errors.New("mint_uc: not configured")

// incident writes must outlive a cancelled request.
const incidentWriteTimeout = 10 * time.Second

type MintAndTransferInput struct {
	// RecipientAddress comes from the authenticated session, never from the request body.
	RecipientAddress string

	AssetName        string
	AssetDescription string
	ImageContentID   string
}

// MintAndTransfer does:
// 0) recipient / description を検証
// 1) metadata を publish (URI 取得)
// 2) カストディ口座で mint して finality まで待つ (slot = watermark)
// 3) watermark 以降の状態で、作成された asset を解決
// 4) asset を受取人へ transfer して finality まで待つ
// 5) Outcome を確定
func (u *MintTransferUsecase) MintAndTransfer(ctx context.Context, in MintAndTransferInput) (transferdom.Outcome, error) {
	if u == nil || u.publisher == nil || u.signer == nil || u.ledger == nil || u.resolver == nil {
		return transferdom.Outcome{}, ErrMintTransferNotConfigured
	}

	tag := u.newTag()
	started := u.now()
	run := transferdom.NewRun(tag, started)
	st := &stageTimer{u: u, at: started}

	// 0) Start
	recipient := strings.TrimSpace(in.RecipientAddress)
	if recipient == "" {
		return u.fail(ctx, run, started, transferdom.KindMissingSession, transferdom.ErrMissingSession, transferdom.Outcome{})
	}
	if !mintdom.IsValidAddress(recipient) {
		return u.fail(ctx, run, started, transferdom.KindInvalidRequest,
			fmt.Errorf("%w: recipient address %s", transferdom.ErrInvalidRequest, _mask(recipient)), transferdom.Outcome{})
	}
	desc, err := mintdom.NewAssetDescription(in.AssetName, in.AssetDescription, in.ImageContentID)
	if err != nil {
		return u.fail(ctx, run, started, transferdom.KindInvalidRequest,
			fmt.Errorf("%w: %v", transferdom.ErrInvalidRequest, err), transferdom.Outcome{})
	}
	custody, err := u.custodyAddress(ctx)
	if err != nil {
		return u.fail(ctx, run, started, transferdom.KindKeyDerivationError, err, transferdom.Outcome{})
	}
	if custody == recipient {
		return u.fail(ctx, run, started, transferdom.KindInvalidRequest,
			fmt.Errorf("%w: recipient is the custodial account", transferdom.ErrInvalidRequest), transferdom.Outcome{})
	}

	// 1) publish metadata
	md, err := u.publisher.Publish(ctx, desc)
	st.done(transferdom.StageMetadataPublished, err)
	if err != nil {
		return u.fail(ctx, run, started, transferdom.KindStorageUnavailable, err, transferdom.Outcome{})
	}
	u.advance(run, transferdom.StageMetadataPublished)

	// 2) mint into custody
	mintTx, custody, err := u.submit(ctx, ledgerdom.NewMintIntent(md.Name, u.symbol, md.URI, tag))
	st.done(transferdom.StageMinted, err)
	if err != nil {
		return u.fail(ctx, run, started, transferdom.KindOf(err, transferdom.KindTransactionRejected), err, transferdom.Outcome{})
	}
	u.advance(run, transferdom.StageMinted)

	partial := transferdom.Outcome{MintSignature: mintTx.Hash}

	// 3) resolve the asset the mint created
	asset, err := u.resolver.ResolveLatestAsset(ctx, custody, mintTx.LedgerVersion, mintTx.CreatedAssetID)
	st.done(transferdom.StageAssetResolved, err)
	if err != nil {
		u.strand(ctx, transferdom.Incident{
			Kind:           transferdom.KindAssetNotFound,
			CorrelationTag: tag,
			Recipient:      recipient,
			CustodyAddress: custody,
			AssetID:        mintTx.CreatedAssetID,
			MintSignature:  mintTx.Hash,
			MintSlot:       mintTx.LedgerVersion,
			MetadataURI:    md.URI,
			Reason:         err.Error(),
		})
		return u.fail(ctx, run, started, transferdom.KindAssetNotFound, err, partial)
	}
	u.advance(run, transferdom.StageAssetResolved)

	// 4) transfer to the recipient
	xferTx, _, err := u.submit(ctx, ledgerdom.NewTransferIntent(asset.AssetID, recipient))
	st.done(transferdom.StageTransferred, err)
	if err != nil {
		u.strand(ctx, transferdom.Incident{
			Kind:           transferdom.KindTransferFailedAfterMint,
			CorrelationTag: tag,
			Recipient:      recipient,
			CustodyAddress: custody,
			AssetID:        asset.AssetID,
			MintSignature:  mintTx.Hash,
			MintSlot:       mintTx.LedgerVersion,
			MetadataURI:    md.URI,
			Reason:         err.Error(),
		})
		partial.Asset = asset
		return u.fail(ctx, run, started, transferdom.KindTransferFailedAfterMint, err, partial)
	}
	if err := asset.TransferTo(recipient); err != nil {
		log.Printf("[mint_uc] WARN: owner update failed asset=%s err=%v", _mask(asset.AssetID), err)
	}
	u.advance(run, transferdom.StageTransferred)
	u.advance(run, transferdom.StageDone)

	out, err := run.Settle(transferdom.Outcome{
		FinalityMarker:    xferTx.LedgerVersion,
		MintSignature:     mintTx.Hash,
		TransferSignature: xferTx.Hash,
		Asset:             asset,
	})
	if err != nil {
		return out, fmt.Errorf("mint_uc: settle: %w", err)
	}

	log.Printf(
		"[mint_uc] done tag=%s asset=%s recipient=%s mintTx=%s transferTx=%s slot=%d",
		tag, _mask(asset.AssetID), _mask(recipient), _mask(mintTx.Hash), _mask(xferTx.Hash), xferTx.LedgerVersion,
	)
	u.observeOutcome(out, started)
	return out, nil
}

// custodyAddresser is implemented by signers that know their address without deriving a key.
type custodyAddresser interface {
	Address() string
}

// custodyAddress is the custodial account's public address. The recipient must differ from it.
func (u *MintTransferUsecase) custodyAddress(ctx context.Context) (string, error) {
	if ca, ok := u.signer.(custodyAddresser); ok {
		if addr := strings.TrimSpace(ca.Address()); addr != "" {
			return addr, nil
		}
	}
	acct, err := u.signer.DeriveAccount(ctx)
	if err != nil {
		if !errors.Is(err, mintdom.ErrKeyDerivation) {
			err = fmt.Errorf("%w: %v", mintdom.ErrKeyDerivation, err)
		}
		return "", fmt.Errorf("mint_uc: derive account: %w", err)
	}
	defer acct.Release()
	return acct.Address(), nil
}

// submit derives a fresh custodial account, submits the intent and wipes the key.
func (u *MintTransferUsecase) submit(ctx context.Context, intent ledgerdom.Intent) (ledgerdom.Transaction, string, error) {
	acct, err := u.signer.DeriveAccount(ctx)
	if err != nil {
		if !errors.Is(err, mintdom.ErrKeyDerivation) {
			err = fmt.Errorf("%w: %v", mintdom.ErrKeyDerivation, err)
		}
		return ledgerdom.Transaction{}, "", fmt.Errorf("mint_uc: derive account: %w", err)
	}
	defer acct.Release()

	addr := acct.Address()
	tx, err := u.ledger.SubmitAndAwait(ctx, acct, intent)
	if err != nil {
		return tx, addr, fmt.Errorf("mint_uc: %s: %w", intent.Kind, err)
	}
	if tx.Status != ledgerdom.StatusSuccess {
		return tx, addr, fmt.Errorf("mint_uc: %s: %w", intent.Kind, &ledgerdom.RejectedError{Reason: "status " + string(tx.Status)})
	}
	return tx, addr, nil
}

func (u *MintTransferUsecase) advance(run *transferdom.Run, to transferdom.Stage) {
	if err := run.Advance(to); err != nil {
		log.Printf("[mint_uc] WARN: %v tag=%s", err, run.CorrelationTag)
	}
}

func (u *MintTransferUsecase) fail(
	ctx context.Context,
	run *transferdom.Run,
	started time.Time,
	kind transferdom.Kind,
	cause error,
	partial transferdom.Outcome,
) (transferdom.Outcome, error) {
	fe, err := run.Fail(kind, cause)
	if err != nil {
		return transferdom.Outcome{}, err
	}
	out, err := run.Settle(partial)
	if err != nil {
		return out, err
	}

	if kind == transferdom.KindMissingSession || kind == transferdom.KindInvalidRequest {
		log.Printf("[mint_uc] rejected tag=%s kind=%s err=%v", run.CorrelationTag, kind, cause)
	} else {
		log.Printf("[mint_uc] failed tag=%s stage=%s kind=%s err=%v", run.CorrelationTag, fe.Stage, kind, cause)
	}
	u.observeOutcome(out, started)
	return out, fe
}

// strand records an asset left in custody. Best-effort: failures are logged only.
func (u *MintTransferUsecase) strand(ctx context.Context, inc transferdom.Incident) {
	inc.ID = inc.CorrelationTag
	inc.CreatedAt = u.now().UTC()

	if inc.Kind == transferdom.KindTransferFailedAfterMint {
		log.Printf(
			"[ALERT] asset stranded in custody tag=%s asset=%s custody=%s recipient=%s mintTx=%s reason=%s",
			inc.CorrelationTag, inc.AssetID, inc.CustodyAddress, inc.Recipient, inc.MintSignature, inc.Reason,
		)
	} else {
		log.Printf(
			"[mint_uc] WARN: minted asset not resolved tag=%s custody=%s mintTx=%s slot=%d",
			inc.CorrelationTag, _mask(inc.CustodyAddress), _mask(inc.MintSignature), inc.MintSlot,
		)
	}
	if u.observer != nil {
		u.observer.ObserveStranded(inc.Kind)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), incidentWriteTimeout)
	defer cancel()

	if u.incidents != nil {
		if err := u.incidents.Save(wctx, inc); err != nil {
			log.Printf("[mint_uc] WARN: incident save failed tag=%s err=%v", inc.CorrelationTag, err)
		}
	}
	if inc.Kind == transferdom.KindTransferFailedAfterMint && u.alerter != nil {
		if err := u.alerter.NotifyStranded(wctx, inc); err != nil {
			log.Printf("[mint_uc] WARN: alert failed tag=%s err=%v", inc.CorrelationTag, err)
		}
	}
}

func (u *MintTransferUsecase) observeOutcome(out transferdom.Outcome, started time.Time) {
	if u.observer != nil {
		u.observer.ObserveOutcome(out, u.now().Sub(started))
	}
}

type stageTimer struct {
	u  *MintTransferUsecase
	at time.Time
}

func (s *stageTimer) done(stage transferdom.Stage, err error) {
	now := s.u.now()
	if s.u.observer != nil {
		s.u.observer.ObserveStage(stage, now.Sub(s.at), err)
	}
	s.at = now
}

func _mask(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	if len(t) <= 10 {
		return t
	}
	return t[:4] + "***" + t[len(t)-4:]
}
