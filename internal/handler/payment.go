package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-reservation/internal/apperr"
	"github.com/iliyamo/cinema-seat-reservation/internal/payment"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
)

// PaymentHandler exposes the Payment state machine (C6) over HTTP (spec §6).
type PaymentHandler struct {
	svc   *payment.Service
	txlog *repository.TxLogRepo
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(svc *payment.Service, txlog *repository.TxLogRepo) *PaymentHandler {
	return &PaymentHandler{svc: svc, txlog: txlog}
}

type createPaymentReq struct {
	BookingID string `json:"bookingId"`
	Amount    uint64 `json:"amount"`
	Provider  string `json:"provider"`
}

// Create handles POST /payments.
func (h *PaymentHandler) Create(c echo.Context) error {
	var req createPaymentReq
	if err := c.Bind(&req); err != nil {
		return apperr.WriteHTTP(c, apperr.Validation("VALIDATION_ERROR", "invalid request body"))
	}
	userID, _ := c.Get("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	p, err := h.svc.Create(ctx, req.BookingID, userID, req.Provider, req.Amount)
	if err != nil {
		return apperr.WriteHTTP(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Get handles GET /payments/:id.
func (h *PaymentHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	p, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.WriteHTTP(c, apperr.NotFound("PAYMENT_NOT_FOUND", "payment not found"))
		}
		return apperr.WriteHTTP(c, apperr.Internal("CATALOG_UNAVAILABLE", err))
	}
	return c.JSON(http.StatusOK, p)
}

// List handles GET /payments?bookingId=...&provider=...&status=...
func (h *PaymentHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	payments, err := h.svc.List(ctx, payment.ListFilter{
		BookingID: c.QueryParam("bookingId"),
		Provider:  c.QueryParam("provider"),
		Status:    c.QueryParam("status"),
	})
	if err != nil {
		return apperr.WriteHTTP(c, apperr.Internal("CATALOG_UNAVAILABLE", err))
	}
	return c.JSON(http.StatusOK, payments)
}

type refundReq struct {
	PaymentID string `json:"paymentId"`
	Amount    uint64 `json:"amount"`
	Reason    string `json:"reason"`
}

// Refund handles POST /payments/refund.
func (h *PaymentHandler) Refund(c echo.Context) error {
	var req refundReq
	if err := c.Bind(&req); err != nil || req.PaymentID == "" {
		return apperr.WriteHTTP(c, apperr.Validation("VALIDATION_ERROR", "paymentId is required"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	p, err := h.svc.Refund(ctx, req.PaymentID, req.Amount)
	if err != nil {
		return apperr.WriteHTTP(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Transactions handles GET /payments/:id/transactions.
func (h *PaymentHandler) Transactions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	entries, err := h.txlog.ListByPayment(ctx, c.Param("id"))
	if err != nil {
		return apperr.WriteHTTP(c, apperr.Internal("CATALOG_UNAVAILABLE", err))
	}
	return c.JSON(http.StatusOK, entries)
}

// PaymeCallback handles POST /payments/payme/callback. Basic-auth
// verification runs in middleware before this handler executes.
func (h *PaymentHandler) PaymeCallback(paymeHandler *payment.PaymeHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req payment.PaymeRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusOK, payment.PaymeResponse{Error: &payment.PaymeError{Code: -32700, Message: "parse error"}})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
		defer cancel()
		return c.JSON(http.StatusOK, paymeHandler.Handle(ctx, req))
	}
}

// ClickPrepare handles POST /payments/click/prepare.
func (h *PaymentHandler) ClickPrepare(clickHandler *payment.ClickHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req payment.ClickPrepareRequest
		if err := bindClickForm(c, &req); err != nil {
			return c.JSON(http.StatusOK, payment.ClickResponse{Error: -8, ErrorNote: "bad request"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
		defer cancel()
		return c.JSON(http.StatusOK, clickHandler.Prepare(ctx, req))
	}
}

// ClickComplete handles POST /payments/click/complete.
func (h *PaymentHandler) ClickComplete(clickHandler *payment.ClickHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req payment.ClickCompleteRequest
		if err := bindClickForm(c, &req); err != nil {
			return c.JSON(http.StatusOK, payment.ClickResponse{Error: -8, ErrorNote: "bad request"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
		defer cancel()
		return c.JSON(http.StatusOK, clickHandler.Complete(ctx, req))
	}
}

// bindClickForm accepts either JSON or Click's native x-www-form-urlencoded
// body shape; Click's merchant API historically posts form-encoded fields.
func bindClickForm(c echo.Context, v interface{}) error {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if ct != "" && ct != echo.MIMEApplicationForm && ct != echo.MIMEApplicationFormUTF8 {
		return c.Bind(v)
	}
	if err := c.Request().ParseForm(); err != nil {
		return err
	}
	switch req := v.(type) {
	case *payment.ClickPrepareRequest:
		req.ClickTransID = formInt64(c, "click_trans_id")
		req.ServiceID = formInt64(c, "service_id")
		req.MerchantTransID = c.FormValue("merchant_trans_id")
		req.Amount = formFloat(c, "amount")
		req.Action = int(formInt64(c, "action"))
		req.SignTime = c.FormValue("sign_time")
		req.SignString = c.FormValue("sign_string")
		req.Error = int(formInt64(c, "error"))
	case *payment.ClickCompleteRequest:
		req.ClickTransID = formInt64(c, "click_trans_id")
		req.ServiceID = formInt64(c, "service_id")
		req.MerchantTransID = c.FormValue("merchant_trans_id")
		req.MerchantPrepareID = formInt64(c, "merchant_prepare_id")
		req.Amount = formFloat(c, "amount")
		req.Action = int(formInt64(c, "action"))
		req.SignTime = c.FormValue("sign_time")
		req.SignString = c.FormValue("sign_string")
		req.Error = int(formInt64(c, "error"))
	}
	return nil
}

func formInt64(c echo.Context, key string) int64 {
	n, _ := strconv.ParseInt(c.FormValue(key), 10, 64)
	return n
}

func formFloat(c echo.Context, key string) float64 {
	f, _ := strconv.ParseFloat(c.FormValue(key), 64)
	return f
}
