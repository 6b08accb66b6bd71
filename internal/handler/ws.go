package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-reservation/internal/config"
	"github.com/iliyamo/cinema-seat-reservation/internal/fanout"
)

// WSHandler upgrades a session's WebSocket connection (spec §4.5 "duplex
// channel"). Token resolution order matches the teacher's handshake
// precedence: Authorization header, then a ?token= query parameter, so a
// browser WebSocket client (which cannot set custom headers) still works.
type WSHandler struct {
	cfg config.Config
	hub *fanout.Hub
}

// NewWSHandler constructs a WSHandler.
func NewWSHandler(cfg config.Config, hub *fanout.Hub) *WSHandler {
	return &WSHandler{cfg: cfg, hub: hub}
}

// Serve handles GET /bookings (the WebSocket upgrade endpoint).
func (h *WSHandler) Serve(c echo.Context) error {
	raw := bearerToken(c.Request())
	if raw == "" {
		raw = c.QueryParam("token")
	}
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}

	userID, role, err := parseAccessToken(raw, h.cfg.JWTSecret)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}

	h.hub.ServeHTTP(c.Response(), c.Request(), userID, "", role)
	return nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func parseAccessToken(raw, secret string) (userID, role string, err error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return "", "", echo.ErrUnauthorized
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", echo.ErrUnauthorized
	}
	switch sub := claims["sub"].(type) {
	case float64:
		userID = strconv.FormatUint(uint64(sub), 10)
	case string:
		userID = sub
	}
	if userID == "" {
		return "", "", echo.ErrUnauthorized
	}
	if r, ok := claims["role"].(string); ok {
		role = r
	}
	return userID, role, nil
}
