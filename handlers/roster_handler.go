package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/services"
)

type RosterHandler struct {
	rosterService     *services.RosterService
	membershipService *services.MembershipService
	exportService     *services.ExportService
}

func NewRosterHandler(
	rs *services.RosterService,
	ms *services.MembershipService,
	es *services.ExportService,
) *RosterHandler {
	return &RosterHandler{
		rosterService:     rs,
		membershipService: ms,
		exportService:     es,
	}
}

type rosterInput struct {
	Name               *string            `json:"name"`
	Kind               *models.RosterKind `json:"kind"`
	ClanTag            *string            `json:"clan_tag"`
	ClanName           *string            `json:"clan_name"`
	ClanLeague         *string            `json:"clan_league"`
	MaxMembers         *int               `json:"max_members"`
	MinTownHall        *int               `json:"min_town_hall"`
	MaxTownHall        *int               `json:"max_town_hall"`
	MinHeroLevels      *int               `json:"min_hero_levels"`
	AllowMultiSignup   *bool              `json:"allow_multi_signup"`
	AllowUnlinked      *bool              `json:"allow_unlinked"`
	MaxAccountsPerUser *int               `json:"max_accounts_per_user"`
	RoleID             *string            `json:"role_id"`
	StartTime          *time.Time         `json:"start_time"`
	EndTime            *time.Time         `json:"end_time"`
	Layout             *string            `json:"layout"`
	SortBy             *string            `json:"sort_by"`
}

// apply copies the set fields of the input onto the roster. Absent fields
// leave the roster untouched, so the same shape serves create and update.
func (in *rosterInput) apply(roster *models.Roster) {
	if in.Name != nil {
		roster.Name = *in.Name
	}
	if in.Kind != nil {
		roster.Kind = *in.Kind
	}
	if in.ClanTag != nil {
		roster.ClanTag = in.ClanTag
	}
	if in.ClanName != nil {
		roster.ClanName = in.ClanName
	}
	if in.ClanLeague != nil {
		roster.ClanLeague = in.ClanLeague
	}
	if in.MaxMembers != nil {
		roster.MaxMembers = *in.MaxMembers
	}
	if in.MinTownHall != nil {
		roster.MinTownHall = in.MinTownHall
	}
	if in.MaxTownHall != nil {
		roster.MaxTownHall = in.MaxTownHall
	}
	if in.MinHeroLevels != nil {
		roster.MinHeroLevels = in.MinHeroLevels
	}
	if in.AllowMultiSignup != nil {
		roster.AllowMultiSignup = *in.AllowMultiSignup
	}
	if in.AllowUnlinked != nil {
		roster.AllowUnlinked = *in.AllowUnlinked
	}
	if in.MaxAccountsPerUser != nil {
		roster.MaxAccountsPerUser = in.MaxAccountsPerUser
	}
	if in.RoleID != nil {
		roster.RoleID = in.RoleID
	}
	if in.StartTime != nil {
		roster.StartTime = in.StartTime
	}
	if in.EndTime != nil {
		roster.EndTime = in.EndTime
	}
	if in.Layout != nil {
		roster.Layout = in.Layout
	}
	if in.SortBy != nil {
		roster.SortBy = in.SortBy
	}
}

// Create godoc
// @Summary Create a roster
// @Tags rosters
// @Accept json
// @Produce json
// @Param body body rosterInput true "Roster settings"
// @Success 201 {object} map[string]interface{} "Created roster"
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Name already in use"
// @Security BearerAuth
// @Router /rosters [post]
func (h *RosterHandler) Create(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var input rosterInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	roster := &models.Roster{
		GuildID:    operator.GuildID,
		MaxMembers: models.DefaultRosterCap,
	}
	input.apply(roster)

	if err := h.rosterService.Create(r.Context(), roster); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"roster": roster}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// List godoc
// @Summary List the guild's rosters
// @Tags rosters
// @Produce json
// @Param kind query string false "Filter by roster kind"
// @Param open query bool false "Only rosters still accepting signups"
// @Success 200 {object} map[string]interface{} "Rosters"
// @Security BearerAuth
// @Router /rosters [get]
func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	kind := models.RosterKind(r.URL.Query().Get("kind"))
	openOnly := r.URL.Query().Get("open") == "true"

	rosters, err := h.rosterService.List(r.Context(), operator.GuildID, kind, openOnly)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"rosters": rosters}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Search godoc
// @Summary Search rosters by name
// @Tags rosters
// @Produce json
// @Param q query string true "Name fragment"
// @Success 200 {object} map[string]interface{} "Matching rosters"
// @Security BearerAuth
// @Router /rosters/search [get]
func (h *RosterHandler) Search(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		badRequestResponse(w, r, errors.New("query parameter q is required"))
		return
	}

	rosters, err := h.rosterService.Search(r.Context(), operator.GuildID, query)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"rosters": rosters}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Get godoc
// @Summary Get a roster with its members
// @Tags rosters
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Success 200 {object} map[string]interface{} "Roster"
// @Failure 404 {object} map[string]string "Roster not found"
// @Security BearerAuth
// @Router /rosters/{rosterID} [get]
func (h *RosterHandler) Get(w http.ResponseWriter, r *http.Request) {
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	roster, err := h.rosterService.Get(r.Context(), rosterID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"roster": roster}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Update godoc
// @Summary Update roster settings
// @Tags rosters
// @Accept json
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Param body body rosterInput true "Fields to change"
// @Success 200 {object} map[string]interface{} "Updated roster"
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Roster not found"
// @Failure 409 {object} map[string]string "Name already in use"
// @Security BearerAuth
// @Router /rosters/{rosterID} [patch]
func (h *RosterHandler) Update(w http.ResponseWriter, r *http.Request) {
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input rosterInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	roster, err := h.rosterService.Get(r.Context(), rosterID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	input.apply(roster)

	if err := h.rosterService.Update(r.Context(), roster); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"roster": roster}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Delete godoc
// @Summary Delete a roster
// @Tags rosters
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Success 204 "Roster deleted"
// @Failure 404 {object} map[string]string "Roster not found"
// @Security BearerAuth
// @Router /rosters/{rosterID} [delete]
func (h *RosterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.rosterService.Delete(r.Context(), rosterID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Open godoc
// @Summary Reopen signups for a roster
// @Tags rosters
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Success 200 {object} map[string]interface{} "Reopened roster"
// @Failure 404 {object} map[string]string "Roster not found"
// @Security BearerAuth
// @Router /rosters/{rosterID}/open [post]
func (h *RosterHandler) Open(w http.ResponseWriter, r *http.Request) {
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	roster, err := h.rosterService.Open(r.Context(), rosterID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"roster": roster}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Close godoc
// @Summary Close signups for a roster
// @Tags rosters
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Success 200 {object} map[string]interface{} "Closed roster"
// @Failure 404 {object} map[string]string "Roster not found"
// @Security BearerAuth
// @Router /rosters/{rosterID}/close [post]
func (h *RosterHandler) Close(w http.ResponseWriter, r *http.Request) {
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	roster, err := h.rosterService.Close(r.Context(), rosterID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"roster": roster}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// writeSignupResult renders the discriminated outcome of a membership
// mutation: 422 with the rejection message, or okStatus with the roster.
func writeSignupResult(w http.ResponseWriter, r *http.Request, result services.SignupResult, okStatus int) {
	status := okStatus
	if !result.Ok {
		status = http.StatusUnprocessableEntity
	}
	if err := writeJSON(w, status, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Signup godoc
// @Summary Add a player to the roster on the operator's behalf
// @Tags membership
// @Accept json
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Param body body object true "Player tag and optional group"
// @Success 201 {object} map[string]interface{} "Member added"
// @Failure 422 {object} map[string]interface{} "Signup rejected"
// @Security BearerAuth
// @Router /rosters/{rosterID}/signup [post]
func (h *RosterHandler) Signup(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Tag        string `json:"tag"`
		CategoryID *int   `json:"category_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Tag == "" {
		badRequestResponse(w, r, errors.New("tag is required"))
		return
	}

	actor := &models.PlayerIdentity{ID: operator.UserID, Username: operator.Username, DisplayName: operator.DisplayName}
	result, err := h.membershipService.Signup(r.Context(), rosterID, input.Tag, actor, input.CategoryID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSignupResult(w, r, result, http.StatusCreated)
}

// SelfSignup godoc
// @Summary Sign one of your own accounts up
// @Tags membership
// @Accept json
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Param body body object true "Player tag and optional group"
// @Success 201 {object} map[string]interface{} "Member added"
// @Failure 422 {object} map[string]interface{} "Signup rejected"
// @Security BearerAuth
// @Router /rosters/{rosterID}/self-signup [post]
func (h *RosterHandler) SelfSignup(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Tag        string `json:"tag"`
		CategoryID *int   `json:"category_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Tag == "" {
		badRequestResponse(w, r, errors.New("tag is required"))
		return
	}

	actor := models.PlayerIdentity{ID: operator.UserID, Username: operator.Username, DisplayName: operator.DisplayName}
	result, err := h.membershipService.SelfSignup(r.Context(), rosterID, input.Tag, actor, input.CategoryID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSignupResult(w, r, result, http.StatusCreated)
}

// OptOut godoc
// @Summary Remove members from the roster
// @Tags membership
// @Accept json
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Param body body object true "Tags to remove; self marks a voluntary opt-out"
// @Success 200 {object} map[string]interface{} "Updated roster"
// @Failure 404 {object} map[string]string "Roster not found"
// @Security BearerAuth
// @Router /rosters/{rosterID}/opt-out [post]
func (h *RosterHandler) OptOut(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Tags []string `json:"tags"`
		Self bool     `json:"self"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Tags) == 0 {
		badRequestResponse(w, r, errors.New("tags is required"))
		return
	}

	actor := &models.PlayerIdentity{ID: operator.UserID, Username: operator.Username, DisplayName: operator.DisplayName}
	roster, err := h.membershipService.OptOut(r.Context(), rosterID, input.Tags, actor, input.Self)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"roster": roster}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SwapCategory godoc
// @Summary Move a member to a different group
// @Tags membership
// @Accept json
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Param body body object true "Member tag and target group"
// @Success 200 {object} map[string]interface{} "Updated roster"
// @Failure 422 {object} map[string]interface{} "Swap rejected"
// @Security BearerAuth
// @Router /rosters/{rosterID}/swap-category [post]
func (h *RosterHandler) SwapCategory(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Tag        string `json:"tag"`
		CategoryID *int   `json:"category_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Tag == "" {
		badRequestResponse(w, r, errors.New("tag is required"))
		return
	}

	actor := &models.PlayerIdentity{ID: operator.UserID, Username: operator.Username, DisplayName: operator.DisplayName}
	result, err := h.membershipService.SwapCategory(r.Context(), rosterID, input.Tag, input.CategoryID, actor)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSignupResult(w, r, result, http.StatusOK)
}

// SwapRoster godoc
// @Summary Move a member to another roster
// @Tags membership
// @Accept json
// @Produce json
// @Param rosterID path int true "Source roster ID"
// @Param body body object true "Member tag, target roster and optional group"
// @Success 200 {object} map[string]interface{} "Target roster"
// @Failure 422 {object} map[string]interface{} "Move rejected"
// @Security BearerAuth
// @Router /rosters/{rosterID}/swap-roster [post]
func (h *RosterHandler) SwapRoster(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Tag        string `json:"tag"`
		ToRosterID int    `json:"to_roster_id"`
		CategoryID *int   `json:"category_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Tag == "" || input.ToRosterID <= 0 {
		badRequestResponse(w, r, errors.New("tag and to_roster_id are required"))
		return
	}

	actor := &models.PlayerIdentity{ID: operator.UserID, Username: operator.Username, DisplayName: operator.DisplayName}
	result, err := h.membershipService.SwapRoster(r.Context(), rosterID, input.ToRosterID, input.Tag, actor, input.CategoryID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSignupResult(w, r, result, http.StatusOK)
}

// Refresh godoc
// @Summary Re-fetch every member's profile snapshot
// @Tags membership
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Success 200 {object} map[string]interface{} "Refreshed roster"
// @Failure 404 {object} map[string]string "Roster not found"
// @Security BearerAuth
// @Router /rosters/{rosterID}/refresh [post]
func (h *RosterHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	roster, err := h.membershipService.UpdateMembers(r.Context(), rosterID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"roster": roster}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Import godoc
// @Summary Import a batch of players by tag
// @Tags membership
// @Accept json
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Param body body object true "Tags to import and optional group"
// @Success 200 {object} map[string]interface{} "Added and skipped members"
// @Failure 404 {object} map[string]string "Roster not found"
// @Security BearerAuth
// @Router /rosters/{rosterID}/import [post]
func (h *RosterHandler) Import(w http.ResponseWriter, r *http.Request) {
	operator, ok := currentOperator(w, r)
	if !ok {
		return
	}
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Tags       []string `json:"tags"`
		CategoryID *int     `json:"category_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Tags) == 0 {
		badRequestResponse(w, r, errors.New("tags is required"))
		return
	}

	actor := &models.PlayerIdentity{ID: operator.UserID, Username: operator.Username, DisplayName: operator.DisplayName}
	result, err := h.membershipService.ImportMembers(r.Context(), rosterID, input.Tags, input.CategoryID, actor)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"import": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Sync godoc
// @Summary Trigger a bulk role sync for the roster
// @Tags membership
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Success 202 {object} map[string]interface{} "Whether a sync pass started"
// @Failure 404 {object} map[string]string "Roster not found"
// @Security BearerAuth
// @Router /rosters/{rosterID}/sync [post]
func (h *RosterHandler) Sync(w http.ResponseWriter, r *http.Request) {
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	started, err := h.membershipService.TriggerBulkSync(r.Context(), rosterID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusAccepted, jsonResponse{"started": started}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Export godoc
// @Summary Export the roster as CSV
// @Tags rosters
// @Produce json
// @Param rosterID path int true "Roster ID"
// @Success 200 {object} map[string]string "Shareable URL"
// @Failure 404 {object} map[string]string "Roster not found"
// @Security BearerAuth
// @Router /rosters/{rosterID}/export [get]
func (h *RosterHandler) Export(w http.ResponseWriter, r *http.Request) {
	rosterID, err := getIDFromURL(r, "rosterID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	url, err := h.exportService.ExportRoster(r.Context(), rosterID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"url": url}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
