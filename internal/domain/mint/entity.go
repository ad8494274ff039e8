// internal/domain/mint/entity.go
package mint

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

/*
責任と機能:
- 1 回の mint-and-transfer で扱う NFT のドメイン値を定義する。
  AssetDescription (入力) → MetadataDescriptor (publish 結果) → MintedAsset (resolve 結果)。
- Metaplex のフィールド上限 (name/symbol/uri) をここで検証する。
*/

// Metaplex token-metadata field limits (bytes).
const (
	MaxNameLen   = 32
	MaxSymbolLen = 10
	MaxURILen    = 200
)

// MaxContentIDLen is the longest content identifier an uploader returns (hex sha256).
const MaxContentIDLen = 64

var (
	ErrInvalidName           = errors.New("mint: invalid asset name")
	ErrInvalidDescription    = errors.New("mint: invalid asset description")
	ErrInvalidImageContentID = errors.New("mint: invalid image content id")
	ErrInvalidSymbol         = errors.New("mint: invalid symbol")
	ErrInvalidURI            = errors.New("mint: invalid metadata uri")
	ErrInvalidAddress        = errors.New("mint: invalid address")
	ErrAlreadyTransferred    = errors.New("mint: asset already transferred")
)

// AssetDescription is the caller-supplied description of the asset to mint.
type AssetDescription struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	ImageContentID string `json:"imageContentId"`
}

// NewAssetDescription trims and validates the three fields.
func NewAssetDescription(name, description, imageContentID string) (AssetDescription, error) {
	d := AssetDescription{
		Name:           strings.TrimSpace(name),
		Description:    strings.TrimSpace(description),
		ImageContentID: strings.TrimSpace(imageContentID),
	}
	if err := d.Validate(); err != nil {
		return AssetDescription{}, err
	}
	return d, nil
}

func (d AssetDescription) Validate() error {
	if d.Name == "" || len(d.Name) > MaxNameLen {
		return ErrInvalidName
	}
	if d.Description == "" {
		return ErrInvalidDescription
	}
	if d.ImageContentID == "" || strings.ContainsAny(d.ImageContentID, " /?#") {
		return ErrInvalidImageContentID
	}
	return nil
}

// MetadataDescriptor is the published metadata record. Immutable once built.
type MetadataDescriptor struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	ContentIdentifier string `json:"contentIdentifier"`
	URI               string `json:"uri"`
}

// NewMetadataDescriptor builds the descriptor; URI = gatewayBase + "/" + contentIdentifier.
func NewMetadataDescriptor(d AssetDescription, gatewayBase, contentIdentifier string) (MetadataDescriptor, error) {
	cid := strings.TrimSpace(contentIdentifier)
	if cid == "" {
		return MetadataDescriptor{}, ErrInvalidURI
	}
	uri := JoinGateway(gatewayBase, cid)
	if len(uri) > MaxURILen {
		return MetadataDescriptor{}, ErrInvalidURI
	}
	return MetadataDescriptor{
		Name:              d.Name,
		Description:       d.Description,
		ContentIdentifier: cid,
		URI:               uri,
	}, nil
}

// JoinGateway joins a gateway base and a content identifier with exactly one slash.
func JoinGateway(gatewayBase, cid string) string {
	base := strings.TrimRight(strings.TrimSpace(gatewayBase), "/")
	cid = strings.TrimLeft(strings.TrimSpace(cid), "/")
	if base == "" {
		return cid
	}
	return base + "/" + cid
}

// ValidateGatewayBase rejects a gateway base whose URIs could exceed MaxURILen.
func ValidateGatewayBase(gatewayBase string) error {
	if len(JoinGateway(gatewayBase, strings.Repeat("x", MaxContentIDLen))) > MaxURILen {
		return fmt.Errorf("%w: gateway base too long for a %d byte uri", ErrInvalidURI, MaxURILen)
	}
	return nil
}

// ValidateSymbol checks the collection symbol against the Metaplex limit.
func ValidateSymbol(symbol string) error {
	s := strings.TrimSpace(symbol)
	if len(s) > MaxSymbolLen {
		return ErrInvalidSymbol
	}
	return nil
}

// MintedAsset is the on-ledger asset as observed by the resolver.
type MintedAsset struct {
	AssetID          string    `json:"assetId"`
	Owner            string    `json:"owner"`
	MinLedgerVersion uint64    `json:"minLedgerVersion"`
	ObservedAt       time.Time `json:"observedAt"`

	transferred bool
}

// NewMintedAsset validates the asset id and owner as Solana pubkeys.
func NewMintedAsset(assetID, owner string, minLedgerVersion uint64, observedAt time.Time) (MintedAsset, error) {
	a := MintedAsset{
		AssetID:          strings.TrimSpace(assetID),
		Owner:            strings.TrimSpace(owner),
		MinLedgerVersion: minLedgerVersion,
		ObservedAt:       observedAt.UTC(),
	}
	if !IsValidAddress(a.AssetID) || !IsValidAddress(a.Owner) {
		return MintedAsset{}, ErrInvalidAddress
	}
	return a, nil
}

// TransferTo moves ownership to recipient. Ownership changes at most once.
func (a *MintedAsset) TransferTo(recipient string) error {
	if a == nil {
		return ErrInvalidAddress
	}
	if a.transferred {
		return ErrAlreadyTransferred
	}
	recipient = strings.TrimSpace(recipient)
	if !IsValidAddress(recipient) {
		return ErrInvalidAddress
	}
	a.Owner = recipient
	a.transferred = true
	return nil
}

func (a MintedAsset) Transferred() bool { return a.transferred }

// IsValidAddress reports whether s decodes to a 32-byte ed25519 public key.
func IsValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 44 {
		return false
	}
	b, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(b) == 32
}
