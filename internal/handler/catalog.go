package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-reservation/internal/apperr"
	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
	"github.com/iliyamo/cinema-seat-reservation/internal/model"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
)

// CatalogHandler exposes read-only Catalog store (C1) views over HTTP —
// the seat layout snapshot a client loads before opening its WebSocket
// session (spec supplemented feature, mirrors the teacher's
// ShowSeatRepo.ListWithStatus).
type CatalogHandler struct {
	seats    *repository.SeatRepo
	holds    *holdstore.Store
	bookings *repository.BookingRepo
	tariffs  *repository.TariffRepo
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(seats *repository.SeatRepo, holds *holdstore.Store, bookings *repository.BookingRepo, tariffs *repository.TariffRepo) *CatalogHandler {
	return &CatalogHandler{seats: seats, holds: holds, bookings: bookings, tariffs: tariffs}
}

// seatLayoutView is one seat's projection, matching fanout's session_state
// shape so HTTP and WS clients see identical seat statuses.
type seatLayoutView struct {
	SeatID  string  `json:"seatId"`
	Row     string  `json:"row"`
	Number  int     `json:"number"`
	Section string  `json:"section"`
	PosX    float64 `json:"posX"`
	PosY    float64 `json:"posY"`
	Status  string  `json:"status"`
}

// SeatLayout handles GET /sessions/:id/seats.
func (h *CatalogHandler) SeatLayout(c echo.Context) error {
	sessionID := c.Param("id")
	userID, _ := c.Get("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	seats, err := h.seats.ListBySession(ctx, sessionID)
	if err != nil {
		return apperr.WriteHTTP(c, apperr.Internal("CATALOG_UNAVAILABLE", err))
	}
	tariffs, err := h.tariffs.ListBySession(ctx, sessionID)
	if err != nil {
		return apperr.WriteHTTP(c, apperr.Internal("CATALOG_UNAVAILABLE", err))
	}

	holdKeys, _ := h.holds.ScanByPrefix(ctx, holdstore.SeatPrefix(sessionID))
	holdsBySeat := make(map[string]holdstore.Hold, len(holdKeys))
	for _, key := range holdKeys {
		hold, ok, err := h.holds.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		holdsBySeat[seatIDFromHoldKey(key)] = hold
	}

	views := make([]seatLayoutView, 0, len(seats))
	for _, s := range seats {
		views = append(views, seatLayoutView{
			SeatID: s.ID, Row: s.Row, Number: s.Number, Section: s.Section,
			PosX: s.PosX, PosY: s.PosY, Status: viewStatus(s, holdsBySeat[s.ID], userID),
		})
	}
	tariffViews := make([]tariffView, 0, len(tariffs))
	for _, t := range tariffs {
		tariffViews = append(tariffViews, tariffView{TariffID: t.ID, Name: t.Name, PriceCents: t.PriceCents})
	}
	return c.JSON(http.StatusOK, echo.Map{"sessionId": sessionID, "seats": views, "tariffs": tariffViews})
}

// tariffView is one price tier's projection, included alongside the seat
// layout so a client can render per-seat prices without a second request.
type tariffView struct {
	TariffID   string `json:"tariffId"`
	Name       string `json:"name"`
	PriceCents uint64 `json:"priceCents"`
}

// bookingView is one booking's projection for the "my bookings" listing.
type bookingView struct {
	BookingID  string  `json:"bookingId"`
	SessionID  string  `json:"sessionId"`
	SeatID     string  `json:"seatId"`
	Status     string  `json:"status"`
	PriceCents uint64  `json:"priceCents"`
	ExpiresAt  *string `json:"expiresAt,omitempty"`
}

// MyBookings handles GET /me/bookings, listing the caller's own bookings
// newest first.
func (h *CatalogHandler) MyBookings(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	bookings, err := h.bookings.ListByUser(ctx, userID)
	if err != nil {
		return apperr.WriteHTTP(c, apperr.Internal("CATALOG_UNAVAILABLE", err))
	}

	views := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		v := bookingView{BookingID: b.ID, SessionID: b.SessionID, SeatID: b.SeatID, Status: b.Status, PriceCents: b.PriceCents}
		if b.ExpiresAt != nil {
			s := b.ExpiresAt.UTC().Format(time.RFC3339)
			v.ExpiresAt = &s
		}
		views = append(views, v)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": views})
}

func viewStatus(s model.Seat, hold holdstore.Hold, userID string) string {
	if s.Status != model.SeatAvailable {
		return s.Status
	}
	if hold.UserID == "" {
		return model.SeatAvailable
	}
	if hold.UserID == userID {
		return "HELD_BY_YOU"
	}
	return "HELD_BY_OTHER"
}

// seatIDFromHoldKey recovers the seat id from a "seat:{sessionId}:{seatId}" key.
func seatIDFromHoldKey(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
