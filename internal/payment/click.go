package payment

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/model"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
)

// Click's own numeric error catalog (spec §4.6 "Click").
const (
	clickErrOK                  = 0
	clickErrSignFailed          = -1
	clickErrAlreadyPaid         = -4
	clickErrAmountMismatch      = -2
	clickErrTransactionNotFound = -6
	clickErrBadRequest          = -8
)

const clickAmountTolerance = 0.01

// centsToAmount converts fixed-point minor units back to the decimal
// amount Click's webhook payloads carry (spec §9 "numeric semantics").
func centsToAmount(cents uint64) float64 {
	return float64(cents) / 100
}

// ClickHandler implements Click's two-step signed prepare/complete webhook
// protocol (spec §4.6 "Click"). Both endpoints verify an md5 signature
// before touching any state.
type ClickHandler struct {
	svc       *Service
	secretKey string
	log       *zap.Logger
}

// NewClickHandler constructs a ClickHandler bound to the merchant secret
// used to verify inbound signatures.
func NewClickHandler(svc *Service, secretKey string, log *zap.Logger) *ClickHandler {
	return &ClickHandler{svc: svc, secretKey: secretKey, log: log}
}

// ClickPrepareRequest is the inbound /prepare webhook payload.
type ClickPrepareRequest struct {
	ClickTransID    int64   `json:"click_trans_id"`
	ServiceID       int64   `json:"service_id"`
	MerchantTransID string  `json:"merchant_trans_id"`
	Amount          float64 `json:"amount"`
	Action          int     `json:"action"`
	SignTime        string  `json:"sign_time"`
	SignString      string  `json:"sign_string"`
	Error           int     `json:"error"`
}

// ClickCompleteRequest is the inbound /complete webhook payload.
type ClickCompleteRequest struct {
	ClickTransID      int64   `json:"click_trans_id"`
	ServiceID         int64   `json:"service_id"`
	MerchantTransID   string  `json:"merchant_trans_id"`
	MerchantPrepareID int64   `json:"merchant_prepare_id"`
	Amount            float64 `json:"amount"`
	Action            int     `json:"action"`
	SignTime          string  `json:"sign_time"`
	SignString        string  `json:"sign_string"`
	Error             int     `json:"error"`
}

// ClickResponse is the shape both endpoints reply with.
type ClickResponse struct {
	ClickTransID      int64  `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID int64  `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID int64  `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

// signPrepare reproduces Click's documented sign_string formula:
// md5(click_trans_id || service_id || SECRET || merchant_trans_id || amount || action || sign_time).
func (h *ClickHandler) signPrepare(req ClickPrepareRequest) string {
	raw := fmt.Sprintf("%d%d%s%s%.2f%d%s", req.ClickTransID, req.ServiceID, h.secretKey, req.MerchantTransID, req.Amount, req.Action, req.SignTime)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (h *ClickHandler) signComplete(req ClickCompleteRequest) string {
	raw := fmt.Sprintf("%d%d%s%s%d%.0f%d%s", req.ClickTransID, req.ServiceID, h.secretKey, req.MerchantTransID, req.MerchantPrepareID, req.Amount, req.Action, req.SignTime)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Prepare handles POST /payments/click/prepare.
func (h *ClickHandler) Prepare(ctx context.Context, req ClickPrepareRequest) ClickResponse {
	if h.signPrepare(req) != req.SignString {
		h.logFailedSign(ctx, req.MerchantTransID, "PREPARE")
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrSignFailed, ErrorNote: "SIGN_CHECK_FAILED"}
	}
	if req.Error < 0 {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: req.Error, ErrorNote: "received negative error from Click"}
	}

	payment, err := h.svc.payments.GetByBookingID(ctx, req.MerchantTransID)
	if err != nil {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrTransactionNotFound, ErrorNote: "payment not found"}
	}
	if math.Abs(centsToAmount(payment.AmountCents)-req.Amount) > clickAmountTolerance {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrAmountMismatch, ErrorNote: "amount mismatch"}
	}
	if payment.Status == model.PaymentCompleted || payment.Status == model.PaymentCancelled {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrAlreadyPaid, ErrorNote: "payment already finalized"}
	}
	booking, err := h.svc.bookings.GetByID(ctx, payment.BookingID)
	if err != nil || booking.Status != model.BookingPending {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrTransactionNotFound, ErrorNote: "booking no longer pending"}
	}

	prepareID := clickSurrogateID()
	externalID := fmt.Sprintf("%d", req.ClickTransID)

	tx, err := h.svc.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrBadRequest, ErrorNote: "internal error"}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.svc.payments.SetExternalIDTx(ctx, tx, payment.ID, externalID); err != nil {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrBadRequest, ErrorNote: "internal error"}
	}
	key := model.IdempotencyKey(model.ProviderClick, model.TxPrepare, externalID)
	if err := h.svc.txlog.InsertTx(ctx, tx, &model.TxLogEntry{
		ID: uuid.NewString(), PaymentID: payment.ID, Provider: model.ProviderClick, Type: model.TxPrepare,
		Status: model.TxStatusSuccess, ExternalID: externalID, IdempotencyKey: key,
	}); err != nil && err != repository.ErrDuplicateIdempotencyKey {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrBadRequest, ErrorNote: "internal error"}
	}
	if err := tx.Commit(); err != nil {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrBadRequest, ErrorNote: "internal error"}
	}
	committed = true

	return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, MerchantPrepareID: prepareID, Error: clickErrOK, ErrorNote: "success"}
}

// Complete handles POST /payments/click/complete.
func (h *ClickHandler) Complete(ctx context.Context, req ClickCompleteRequest) ClickResponse {
	if h.signComplete(req) != req.SignString {
		h.logFailedSign(ctx, req.MerchantTransID, "COMPLETE")
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrSignFailed, ErrorNote: "SIGN_CHECK_FAILED"}
	}

	externalID := fmt.Sprintf("%d", req.ClickTransID)
	payment, err := h.svc.lookupByExternalID(ctx, model.ProviderClick, externalID)
	if err != nil {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrTransactionNotFound, ErrorNote: "transaction not found"}
	}

	if payment.Status == model.PaymentCompleted {
		// Idempotent replay: same success echo, no further mutation.
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID,
			MerchantPrepareID: req.MerchantPrepareID, MerchantConfirmID: req.MerchantPrepareID, Error: clickErrOK, ErrorNote: "success"}
	}

	if req.Error < 0 {
		if _, err := h.svc.Fail(ctx, payment.ID); err != nil {
			h.log.Warn("click complete fail path failed", zap.Error(err), zap.String("paymentId", payment.ID))
		}
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: req.Error, ErrorNote: "rejected by Click"}
	}

	confirmed, err := h.svc.Confirm(ctx, payment.ID)
	if err != nil {
		return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID, Error: clickErrBadRequest, ErrorNote: "cannot complete"}
	}
	_ = confirmed

	return ClickResponse{ClickTransID: req.ClickTransID, MerchantTransID: req.MerchantTransID,
		MerchantPrepareID: req.MerchantPrepareID, MerchantConfirmID: req.MerchantPrepareID, Error: clickErrOK, ErrorNote: "success"}
}

func (h *ClickHandler) logFailedSign(ctx context.Context, merchantTransID, step string) {
	payment, err := h.svc.payments.GetByBookingID(ctx, merchantTransID)
	if err != nil {
		return
	}
	tx, err := h.svc.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() { _ = tx.Rollback() }()
	_ = h.svc.txlog.InsertTx(ctx, tx, &model.TxLogEntry{
		ID: uuid.NewString(), PaymentID: payment.ID, Provider: model.ProviderClick, Type: step,
		Status: model.TxStatusFailed, ErrorCode: "SIGN_CHECK_FAILED",
		IdempotencyKey: model.IdempotencyKey(model.ProviderClick, step+":failed", uuid.NewString()),
	})
	_ = tx.Commit()
}

// clickSurrogateID returns a random non-negative int64 for Click's
// merchant_prepare_id field instead of parsing digits out of a text id.
// Each Prepare call draws a fresh value and it is not stored; Complete
// echoes back the merchant_prepare_id Click sends as merchant_confirm_id.
func clickSurrogateID() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62-1))
	if err != nil {
		return time.Now().UTC().UnixNano()
	}
	return n.Int64()
}
