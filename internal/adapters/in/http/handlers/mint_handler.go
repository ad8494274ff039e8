// internal/adapters/in/http/handlers/mint_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"blockto/internal/adapters/in/http/middleware"
	usecase "blockto/internal/application/usecase"
	transferdom "blockto/internal/domain/transfer"
)

// MintTransferer は handler が依存する最小 IF（*usecase.MintTransferUsecase が満たす）
type MintTransferer interface {
	MintAndTransfer(ctx context.Context, in usecase.MintAndTransferInput) (transferdom.Outcome, error)
}

// 1 リクエストの上限。finality 待ちが 2 回入るので長め
const defaultMintTimeout = 5 * time.Minute

const maxMintBodyBytes = 64 << 10

type MintHandler struct {
	uc      MintTransferer
	timeout time.Duration
}

func NewMintHandler(uc MintTransferer, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		timeout = defaultMintTimeout
	}
	return &MintHandler{uc: uc, timeout: timeout}
}

// mintRequest は POST /api/nft/mint の body。snake_case が元のワイヤ名、camelCase も受け付ける
type mintRequest struct {
	ImageCID       string `json:"image_cid"`
	NFTName        string `json:"nft_name"`
	NFTDescription string `json:"nft_description"`

	ImageContentID   string `json:"imageContentId"`
	AssetName        string `json:"assetName"`
	AssetDescription string `json:"assetDescription"`
}

type mintResponse struct {
	Success        bool   `json:"success"`
	FinalityMarker string `json:"finalityMarker,omitempty"` // finalized slot, decimal string
	ErrorKind      string `json:"errorKind,omitempty"`
}

func (h *MintHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if h.uc == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "mint usecase not configured"})
		return
	}

	var req mintRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMintBodyBytes))
	if err := dec.Decode(&req); err != nil {
		log.Printf("[mint_handler] bad body err=%v", err)
		writeJSON(w, http.StatusBadRequest, mintResponse{ErrorKind: string(transferdom.KindInvalidRequest)})
		return
	}

	recipient, _ := middleware.CurrentWalletAddress(r)
	in := usecase.MintAndTransferInput{
		RecipientAddress: recipient,
		AssetName:        firstNonEmpty(req.NFTName, req.AssetName),
		AssetDescription: firstNonEmpty(req.NFTDescription, req.AssetDescription),
		ImageContentID:   firstNonEmpty(req.ImageCID, req.ImageContentID),
	}

	// client が切断しても mint 済み asset を途中で放り出さないよう、request の cancel からは切り離す
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	out, err := h.uc.MintAndTransfer(ctx, in)
	if err != nil || !out.Success {
		kind := out.ErrorKind
		if kind == "" {
			kind = transferdom.KindOf(err, transferdom.KindTransactionRejected)
		}
		uid, _ := middleware.CurrentUserUID(r)
		log.Printf("[mint_handler] mint failed uid=%s kind=%s tag=%s", uid, kind, out.CorrelationTag)
		writeJSON(w, statusForKind(kind), mintResponse{ErrorKind: string(kind)})
		return
	}

	writeJSON(w, http.StatusOK, mintResponse{Success: true, FinalityMarker: strconv.FormatUint(out.FinalityMarker, 10)})
}

func statusForKind(kind transferdom.Kind) int {
	switch kind {
	case transferdom.KindMissingSession:
		return http.StatusUnauthorized
	case transferdom.KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

