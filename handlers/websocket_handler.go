package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/clanops/roster-system/live"
	"github.com/clanops/roster-system/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub           *live.Hub
	rosterService *services.RosterService
	logger        *slog.Logger
}

func NewWebSocketHandler(hub *live.Hub, rs *services.RosterService, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, rosterService: rs, logger: logger}
}

// ServeRosterWS godoc
// @Summary Subscribe to live membership events for a roster
// @Tags live
// @Param rosterID path int true "Roster ID"
// @Success 101 "Switching protocols"
// @Failure 404 {object} map[string]string "Roster not found"
// @Router /ws/rosters/{rosterID} [get]
func (h *WebSocketHandler) ServeRosterWS(w http.ResponseWriter, r *http.Request) {
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	// Reject subscriptions to rosters that do not exist before upgrading.
	if _, err := h.rosterService.Get(r.Context(), rosterID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Int("roster_id", rosterID), slog.Any("error", err))
		return
	}

	client := live.NewClient(h.hub, conn, rosterID)
	go client.WritePump()
	go client.ReadPump()
}
