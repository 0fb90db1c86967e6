package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/services"
)

type LinkHandler struct {
	linkService *services.LinkService
}

func NewLinkHandler(ls *services.LinkService) *LinkHandler {
	return &LinkHandler{linkService: ls}
}

// List godoc
// @Summary List the tags a user has claimed
// @Tags links
// @Produce json
// @Param user_id query string false "User ID, defaults to the caller"
// @Success 200 {object} map[string]interface{} "Links"
// @Security BearerAuth
// @Router /links [get]
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = operator.UserID
	}

	links, err := h.linkService.ListByUser(r.Context(), operator.GuildID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"links": links}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Create godoc
// @Summary Claim a player tag for a user
// @Tags links
// @Accept json
// @Produce json
// @Param body body object true "Tag plus optional user, defaults to the caller"
// @Success 201 {object} map[string]interface{} "Stored link"
// @Failure 400 {object} map[string]string "Unknown player tag"
// @Security BearerAuth
// @Router /links [post]
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var input struct {
		Tag         string  `json:"tag"`
		UserID      *string `json:"user_id"`
		Username    *string `json:"username"`
		DisplayName *string `json:"display_name"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	link := &models.PlayerLink{
		Tag:         input.Tag,
		GuildID:     operator.GuildID,
		UserID:      operator.UserID,
		Username:    operator.Username,
		DisplayName: operator.DisplayName,
	}
	if input.UserID != nil {
		link.UserID = *input.UserID
		link.Username = ""
		link.DisplayName = ""
	}
	if input.Username != nil {
		link.Username = *input.Username
	}
	if input.DisplayName != nil {
		link.DisplayName = *input.DisplayName
	}

	if err := h.linkService.Link(r.Context(), link); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"link": link}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Delete godoc
// @Summary Release a claimed player tag
// @Tags links
// @Param tag path string true "URL-encoded player tag"
// @Success 204 "Link removed"
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{tag} [delete]
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	// Tags start with '#', so the path segment arrives percent-encoded.
	tag, err := url.PathUnescape(chi.URLParam(r, "tag"))
	if err != nil || tag == "" {
		badRequestResponse(w, r, errors.New("invalid tag in URL"))
		return
	}

	if err := h.linkService.Unlink(r.Context(), operator.GuildID, tag); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
