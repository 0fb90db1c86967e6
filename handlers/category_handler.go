package handlers

import (
	"net/http"

	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/services"
)

type CategoryHandler struct {
	categoryService *services.CategoryService
}

func NewCategoryHandler(cs *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: cs}
}

type categoryInput struct {
	Name        *string `json:"name"`
	DisplayName *string `json:"display_name"`
	Order       *int    `json:"order"`
	RoleID      *string `json:"role_id"`
}

func (in *categoryInput) apply(category *models.RosterCategory) {
	if in.Name != nil {
		category.Name = *in.Name
	}
	if in.DisplayName != nil {
		category.DisplayName = *in.DisplayName
	}
	if in.Order != nil {
		category.Order = *in.Order
	}
	if in.RoleID != nil {
		category.RoleID = in.RoleID
	}
}

// Create godoc
// @Summary Create a member group
// @Tags categories
// @Accept json
// @Produce json
// @Param body body categoryInput true "Group settings"
// @Success 201 {object} map[string]interface{} "Created group"
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Name already in use"
// @Security BearerAuth
// @Router /categories [post]
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var input categoryInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	category := &models.RosterCategory{GuildID: operator.GuildID}
	input.apply(category)

	if err := h.categoryService.Create(r.Context(), category); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"category": category}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// List godoc
// @Summary List the guild's member groups
// @Tags categories
// @Produce json
// @Success 200 {object} map[string]interface{} "Groups in display order"
// @Security BearerAuth
// @Router /categories [get]
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	categories, err := h.categoryService.ListByGuild(r.Context(), operator.GuildID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"categories": categories}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Get godoc
// @Summary Get a member group
// @Tags categories
// @Produce json
// @Param categoryID path int true "Category ID"
// @Success 200 {object} map[string]interface{} "Group"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /categories/{categoryID} [get]
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	categoryID, err := getIDFromURL(r, "categoryID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	category, err := h.categoryService.Get(r.Context(), categoryID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"category": category}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Update godoc
// @Summary Update a member group
// @Tags categories
// @Accept json
// @Produce json
// @Param categoryID path int true "Category ID"
// @Param body body categoryInput true "Fields to change"
// @Success 200 {object} map[string]interface{} "Updated group"
// @Failure 404 {object} map[string]string "Group not found"
// @Failure 409 {object} map[string]string "Name already in use"
// @Security BearerAuth
// @Router /categories/{categoryID} [patch]
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	categoryID, err := getIDFromURL(r, "categoryID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input categoryInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	category, err := h.categoryService.Get(r.Context(), categoryID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	input.apply(category)

	if err := h.categoryService.Update(r.Context(), category); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"category": category}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Delete godoc
// @Summary Delete a member group
// @Tags categories
// @Produce json
// @Param categoryID path int true "Category ID"
// @Success 204 "Group deleted"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /categories/{categoryID} [delete]
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	categoryID, err := getIDFromURL(r, "categoryID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.categoryService.Delete(r.Context(), categoryID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
