// internal/domain/transfer/entity.go
package transfer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mintdom "blockto/internal/domain/mint"
)

/*
責任と機能:
- mint-and-transfer ワークフローの状態機械 (Stage) と結果 (Outcome) を定義する。
- 遷移は Start → MetadataPublished → Minted → AssetResolved → Transferred → Done の一方向のみ。
  どの段階からでも Failed(kind) へ落ちることができ、Outcome は 1 回の実行につき 1 つだけ確定する。
*/

type Stage string

const (
	StageStart             Stage = "start"
	StageMetadataPublished Stage = "metadata_published"
	StageMinted            Stage = "minted"
	StageAssetResolved     Stage = "asset_resolved"
	StageTransferred       Stage = "transferred"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

var stageOrder = []Stage{
	StageStart,
	StageMetadataPublished,
	StageMinted,
	StageAssetResolved,
	StageTransferred,
	StageDone,
}

// Next returns the single successor of s, or "" for terminal stages.
func (s Stage) Next() Stage {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return ""
}

func (s Stage) Terminal() bool { return s == StageDone || s == StageFailed }

var (
	ErrInvalidStageTransition = errors.New("transfer: invalid stage transition")
	ErrOutcomeAlreadySettled  = errors.New("transfer: outcome already settled")
)

// Run tracks one orchestration invocation.
type Run struct {
	CorrelationTag string
	StartedAt      time.Time

	stage   Stage
	failure *FailureError
	outcome *Outcome
	trail   []Stage
}

func NewRun(correlationTag string, startedAt time.Time) *Run {
	return &Run{
		CorrelationTag: strings.TrimSpace(correlationTag),
		StartedAt:      startedAt.UTC(),
		stage:          StageStart,
		trail:          []Stage{StageStart},
	}
}

func (r *Run) Stage() Stage { return r.stage }

// Trail returns the stages entered so far, in order.
func (r *Run) Trail() []Stage {
	out := make([]Stage, len(r.trail))
	copy(out, r.trail)
	return out
}

// Advance moves to the next stage. Skipping or going back is rejected.
func (r *Run) Advance(to Stage) error {
	if r.stage.Terminal() || r.stage.Next() != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStageTransition, r.stage, to)
	}
	r.stage = to
	r.trail = append(r.trail, to)
	return nil
}

// Fail moves the run to Failed. FailureError.Stage is the last stage the run completed.
func (r *Run) Fail(kind Kind, cause error) (*FailureError, error) {
	if r.stage.Terminal() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStageTransition, r.stage, StageFailed)
	}
	fe := &FailureError{
		Kind:  kind,
		Stage: r.stage,
		Err:   cause,
	}
	if cause != nil {
		fe.Reason = cause.Error()
	}
	r.failure = fe
	r.stage = StageFailed
	r.trail = append(r.trail, StageFailed)
	return fe, nil
}

// Outcome is the single result of an invocation.
type Outcome struct {
	Success        bool   `json:"success"`
	FinalityMarker uint64 `json:"finalityMarker,string,omitempty"`
	ErrorKind      Kind   `json:"errorKind,omitempty"`
	Reason         string `json:"-"`

	CorrelationTag    string              `json:"-"`
	MintSignature     string              `json:"-"`
	TransferSignature string              `json:"-"`
	Asset             mintdom.MintedAsset `json:"-"`
}

// Settle produces the outcome exactly once. The run must be Done or Failed.
func (r *Run) Settle(o Outcome) (Outcome, error) {
	if r.outcome != nil {
		return *r.outcome, ErrOutcomeAlreadySettled
	}
	switch r.stage {
	case StageDone:
		o.Success = true
		o.ErrorKind = ""
		o.Reason = ""
	case StageFailed:
		o.Success = false
		o.FinalityMarker = 0
		if r.failure != nil {
			o.ErrorKind = r.failure.Kind
			o.Reason = r.failure.Reason
		}
	default:
		return Outcome{}, fmt.Errorf("%w: settle from %s", ErrInvalidStageTransition, r.stage)
	}
	o.CorrelationTag = r.CorrelationTag
	r.outcome = &o
	return o, nil
}
