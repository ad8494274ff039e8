// internal/infra/solana/submitter.go
package solana

/*
責任と機能:
- ledger.Intent (mint-asset / transfer-asset) から tx を組み立て、カストディ口座で署名し、送信する。
- 送信後は getSignatureStatuses を finalized になるまで指数バックオフでポーリングする。
- 同じカストディ口座の build+sign+send は直列化する (blockhash / ATA 作成の競合を避ける)。
  ポーリングはロック外で行う。
- 自動再送はしない。tx は pending → success / failed に 1 回だけ遷移する。
*/

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/cenkalti/backoff/v4"

	usecase "blockto/internal/application/usecase"
	ledgerdom "blockto/internal/domain/ledger"
)

var (
	ErrSubmitterNotConfigured = errors.New("solana_submitter: not configured")
	ErrUnsupportedSigner      = errors.New("solana_submitter: unsupported signing account")
	errNotFinal               = errors.New("solana_submitter: not finalized yet")
)

// PollConfig bounds the finality wait.
type PollConfig struct {
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Timeout:         90 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// SubmissionObserver receives submit results (metrics). Optional.
type SubmissionObserver interface {
	ObserveSubmission(kind ledgerdom.IntentKind, status ledgerdom.Status, elapsed time.Duration)
}

type Submitter struct {
	Writer LedgerWriter
	Reader RPCClient
	Poll   PollConfig

	SellerFeeBasisPoints uint16

	Observer SubmissionObserver

	locks *accountLocks
	now   func() time.Time
}

var _ usecase.LedgerSubmitter = (*Submitter)(nil)

func NewSubmitter(w LedgerWriter, r RPCClient, poll PollConfig, sellerFeeBasisPoints uint16) *Submitter {
	return &Submitter{
		Writer:               w,
		Reader:               r,
		Poll:                 poll,
		SellerFeeBasisPoints: sellerFeeBasisPoints,
		locks:                newAccountLocks(),
		now:                  time.Now,
	}
}

// SubmitAndAwait builds, signs and submits intent, then waits for finality.
func (s *Submitter) SubmitAndAwait(ctx context.Context, acct ledgerdom.SigningAccount, intent ledgerdom.Intent) (ledgerdom.Transaction, error) {
	if s == nil || s.Writer == nil || s.Reader == nil || s.locks == nil {
		return ledgerdom.Transaction{}, ErrSubmitterNotConfigured
	}
	if err := intent.Validate(); err != nil {
		return ledgerdom.Transaction{}, err
	}
	ca, ok := acct.(*CustodialAccount)
	if !ok || ca == nil {
		return ledgerdom.Transaction{}, fmt.Errorf("%w: %T", ErrUnsupportedSigner, acct)
	}
	signer, err := ca.account()
	if err != nil {
		return ledgerdom.Transaction{}, err
	}

	started := s.now()

	// 1) build + sign + send (serialized per custody address)
	unlock, err := s.locks.Lock(ctx, ca.Address())
	if err != nil {
		return ledgerdom.Transaction{}, fmt.Errorf("%w: waiting for account lock: %v", ledgerdom.ErrFinalityTimeout, err)
	}
	tx, createdAsset, err := s.build(ctx, signer, intent)
	if err != nil {
		unlock()
		s.observe(intent.Kind, ledgerdom.StatusFailed, started)
		return ledgerdom.Transaction{}, &ledgerdom.RejectedError{Reason: err.Error()}
	}
	sig, err := s.Writer.SendTransaction(ctx, tx)
	submittedAt := s.now()
	unlock()
	if err != nil {
		s.observe(intent.Kind, ledgerdom.StatusFailed, started)
		if ctx.Err() != nil {
			return ledgerdom.Transaction{}, fmt.Errorf("%w: send: %v", ledgerdom.ErrFinalityTimeout, err)
		}
		return ledgerdom.Transaction{}, &ledgerdom.RejectedError{Reason: "send: " + err.Error()}
	}

	lt := ledgerdom.NewPending(sig, intent.Kind, submittedAt)
	lt.CreatedAssetID = createdAsset
	log.Printf("[solana_submitter] submitted kind=%s tx=%s asset=%s", intent.Kind, maskShort(sig), maskShort(createdAsset))

	// 2) poll to finality
	slot, err := s.awaitFinality(ctx, sig)
	if err != nil {
		var rej *ledgerdom.RejectedError
		if errors.As(err, &rej) {
			_ = lt.MarkFailed(rej.Reason)
			s.observe(intent.Kind, ledgerdom.StatusFailed, started)
		} else {
			s.observe(intent.Kind, ledgerdom.StatusPending, started)
		}
		log.Printf("[solana_submitter] not finalized kind=%s tx=%s err=%v", intent.Kind, maskShort(sig), err)
		return lt, err
	}
	if err := lt.MarkSucceeded(slot); err != nil {
		return lt, err
	}
	s.observe(intent.Kind, ledgerdom.StatusSuccess, started)

	log.Printf("[solana_submitter] finalized kind=%s tx=%s slot=%d", intent.Kind, maskShort(sig), slot)
	return lt, nil
}

func (s *Submitter) build(ctx context.Context, signer types.Account, intent ledgerdom.Intent) (types.Transaction, string, error) {
	switch intent.Kind {
	case ledgerdom.IntentMintAsset:
		return buildMintTransaction(ctx, s.Writer, signer, *intent.Mint, s.SellerFeeBasisPoints)
	case ledgerdom.IntentTransferAsset:
		tx, err := buildTransferTransaction(ctx, s.Writer, s.Reader, signer, *intent.Transfer)
		return tx, "", err
	default:
		return types.Transaction{}, "", fmt.Errorf("%w: %s", ledgerdom.ErrInvalidIntent, intent.Kind)
	}
}

// awaitFinality polls getSignatureStatuses until finalized, failed or the window closes.
func (s *Submitter) awaitFinality(ctx context.Context, sig string) (uint64, error) {
	poll := s.Poll
	if poll.Timeout <= 0 {
		poll = DefaultPollConfig()
	}

	pollCtx, cancel := context.WithTimeout(ctx, poll.Timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = poll.InitialInterval
	b.MaxInterval = poll.MaxInterval
	b.MaxElapsedTime = poll.Timeout
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()

	var slot uint64
	var lastErr error
	op := func() error {
		sts, err := s.Reader.GetSignatureStatuses(pollCtx, []string{sig})
		if err != nil {
			lastErr = err
			return err
		}
		if len(sts) == 0 || sts[0] == nil {
			return errNotFinal
		}
		st := sts[0]
		if st.Failed() {
			return backoff.Permanent(&ledgerdom.RejectedError{Reason: strings.TrimSpace(string(st.Err))})
		}
		if st.ConfirmationStatus != ConfirmationFinalized {
			return errNotFinal
		}
		slot = st.Slot
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(b, pollCtx))
	if err == nil {
		return slot, nil
	}
	var rej *ledgerdom.RejectedError
	if errors.As(err, &rej) {
		return 0, rej
	}
	if lastErr != nil {
		return 0, fmt.Errorf("%w: tx=%s last rpc error: %v", ledgerdom.ErrFinalityTimeout, maskShort(sig), lastErr)
	}
	return 0, fmt.Errorf("%w: tx=%s not finalized within %s", ledgerdom.ErrFinalityTimeout, maskShort(sig), poll.Timeout)
}

func (s *Submitter) observe(kind ledgerdom.IntentKind, status ledgerdom.Status, started time.Time) {
	if s.Observer != nil {
		s.Observer.ObserveSubmission(kind, status, s.now().Sub(started))
	}
}
