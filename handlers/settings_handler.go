package handlers

import (
	"net/http"

	"github.com/clanops/roster-system/services"
)

type SettingsHandler struct {
	settingsService *services.SettingsService
}

func NewSettingsHandler(ss *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: ss}
}

// Get godoc
// @Summary Get the guild's changelog settings
// @Tags settings
// @Produce json
// @Success 200 {object} map[string]interface{} "Settings"
// @Security BearerAuth
// @Router /settings [get]
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	settings, err := h.settingsService.Get(r.Context(), operator.GuildID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"settings": settings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SetChangelogChannel godoc
// @Summary Set or clear the changelog channel
// @Tags settings
// @Accept json
// @Produce json
// @Param body body object true "Channel ID, null to clear"
// @Success 200 {object} map[string]interface{} "Updated settings"
// @Failure 400 {object} map[string]string "Channel not found in this guild"
// @Security BearerAuth
// @Router /settings/changelog-channel [put]
func (h *SettingsHandler) SetChangelogChannel(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var input struct {
		ChannelID *string `json:"channel_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	settings, err := h.settingsService.SetChangelogChannel(r.Context(), operator.GuildID, input.ChannelID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"settings": settings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
