package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clanops/roster-system/gameapi"
	"github.com/clanops/roster-system/guild"
	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/repositories"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func cloneRoster(r *models.Roster) *models.Roster {
	clone := *r
	clone.Members = make([]models.RosterMember, len(r.Members))
	copy(clone.Members, r.Members)
	return &clone
}

// fakeRosterRepo is an in-memory RosterRepository. Its write operations
// mirror the SQL ones: AppendMember pushes without re-checking capacity.
type fakeRosterRepo struct {
	mu      sync.Mutex
	rosters map[int]*models.Roster
	nextID  int

	// getOverride, when set, is served by GetByID instead of the stored
	// roster. Writes still go to the store, so tests can hand callers a
	// stale snapshot.
	getOverride *models.Roster

	listErr error
}

func newFakeRosterRepo(rosters ...*models.Roster) *fakeRosterRepo {
	repo := &fakeRosterRepo{rosters: make(map[int]*models.Roster), nextID: 1}
	for _, r := range rosters {
		if r.ID == 0 {
			r.ID = repo.nextID
		}
		if r.ID >= repo.nextID {
			repo.nextID = r.ID + 1
		}
		repo.rosters[r.ID] = cloneRoster(r)
	}
	return repo
}

func (f *fakeRosterRepo) stored(id int) *models.Roster {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRoster(f.rosters[id])
}

func (f *fakeRosterRepo) Create(_ context.Context, roster *models.Roster) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rosters {
		if existing.GuildID == roster.GuildID && existing.Name == roster.Name {
			return repositories.ErrRosterNameConflict
		}
	}
	roster.ID = f.nextID
	f.nextID++
	roster.CreatedAt = time.Now()
	f.rosters[roster.ID] = cloneRoster(roster)
	return nil
}

func (f *fakeRosterRepo) GetByID(_ context.Context, id int) (*models.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getOverride != nil {
		return cloneRoster(f.getOverride), nil
	}
	roster, ok := f.rosters[id]
	if !ok {
		return nil, repositories.ErrRosterNotFound
	}
	return cloneRoster(roster), nil
}

func (f *fakeRosterRepo) Update(_ context.Context, roster *models.Roster) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.rosters[roster.ID]
	if !ok {
		return repositories.ErrRosterNotFound
	}
	clone := cloneRoster(roster)
	clone.Members = stored.Members
	f.rosters[roster.ID] = clone
	return nil
}

func (f *fakeRosterRepo) Delete(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rosters[id]; !ok {
		return repositories.ErrRosterNotFound
	}
	delete(f.rosters, id)
	return nil
}

func (f *fakeRosterRepo) List(_ context.Context, filter repositories.RosterFilter) ([]*models.Roster, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*models.Roster, 0, len(f.rosters))
	for _, roster := range f.rosters {
		if filter.GuildID != "" && roster.GuildID != filter.GuildID {
			continue
		}
		if filter.Kind != "" && roster.Kind != filter.Kind {
			continue
		}
		if filter.OpenOnly && roster.Closed {
			continue
		}
		matched = append(matched, cloneRoster(roster))
	}
	return matched, nil
}

func (f *fakeRosterRepo) Search(_ context.Context, guildID, query string) ([]*models.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*models.Roster, 0)
	for _, roster := range f.rosters {
		if roster.GuildID == guildID && strings.Contains(strings.ToLower(roster.Name), strings.ToLower(query)) {
			matched = append(matched, cloneRoster(roster))
		}
	}
	return matched, nil
}

func (f *fakeRosterRepo) AppendMember(_ context.Context, rosterID int, member models.RosterMember) (*models.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster, ok := f.rosters[rosterID]
	if !ok {
		return nil, repositories.ErrRosterNotFound
	}
	roster.Members = append(roster.Members, member)
	return cloneRoster(roster), nil
}

func (f *fakeRosterRepo) PullMembers(_ context.Context, rosterID int, tags []string) (*models.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster, ok := f.rosters[rosterID]
	if !ok {
		return nil, repositories.ErrRosterNotFound
	}
	drop := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		drop[tag] = struct{}{}
	}
	kept := roster.Members[:0]
	for _, member := range roster.Members {
		if _, gone := drop[member.Tag]; !gone {
			kept = append(kept, member)
		}
	}
	roster.Members = kept
	return cloneRoster(roster), nil
}

func (f *fakeRosterRepo) UpdateMemberCategory(_ context.Context, rosterID int, tag string, categoryID *int) (*models.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster, ok := f.rosters[rosterID]
	if !ok {
		return nil, repositories.ErrRosterNotFound
	}
	for i := range roster.Members {
		if roster.Members[i].Tag == tag {
			roster.Members[i].CategoryID = categoryID
		}
	}
	return cloneRoster(roster), nil
}

func (f *fakeRosterRepo) ReplaceMembers(_ context.Context, rosterID int, members []models.RosterMember) (*models.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster, ok := f.rosters[rosterID]
	if !ok {
		return nil, repositories.ErrRosterNotFound
	}
	roster.Members = make([]models.RosterMember, len(members))
	copy(roster.Members, members)
	return cloneRoster(roster), nil
}

func (f *fakeRosterRepo) SetClosed(_ context.Context, rosterID int, closed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster, ok := f.rosters[rosterID]
	if !ok {
		return repositories.ErrRosterNotFound
	}
	roster.Closed = closed
	return nil
}

func (f *fakeRosterRepo) CloseExpired(_ context.Context, now time.Time) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int
	for _, roster := range f.rosters {
		if !roster.Closed && roster.EndTime != nil && now.After(*roster.EndTime) {
			roster.Closed = true
			ids = append(ids, roster.ID)
		}
	}
	return ids, nil
}

func (f *fakeRosterRepo) SetWebhook(_ context.Context, rosterID int, webhookID, webhookToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster, ok := f.rosters[rosterID]
	if !ok {
		return repositories.ErrRosterNotFound
	}
	roster.WebhookID = &webhookID
	roster.WebhookToken = &webhookToken
	return nil
}

func (f *fakeRosterRepo) ClearWebhook(_ context.Context, rosterID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster, ok := f.rosters[rosterID]
	if !ok {
		return repositories.ErrRosterNotFound
	}
	roster.WebhookID = nil
	roster.WebhookToken = nil
	return nil
}

type fakeCategoryRepo struct {
	mu         sync.Mutex
	categories map[int]*models.RosterCategory
	nextID     int
}

func newFakeCategoryRepo(categories ...*models.RosterCategory) *fakeCategoryRepo {
	repo := &fakeCategoryRepo{categories: make(map[int]*models.RosterCategory), nextID: 1}
	for _, c := range categories {
		if c.ID == 0 {
			c.ID = repo.nextID
		}
		if c.ID >= repo.nextID {
			repo.nextID = c.ID + 1
		}
		clone := *c
		repo.categories[c.ID] = &clone
	}
	return repo
}

func (f *fakeCategoryRepo) Create(_ context.Context, category *models.RosterCategory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.categories {
		if existing.GuildID == category.GuildID && existing.Name == category.Name {
			return repositories.ErrCategoryNameConflict
		}
	}
	category.ID = f.nextID
	f.nextID++
	clone := *category
	f.categories[category.ID] = &clone
	return nil
}

func (f *fakeCategoryRepo) GetByID(_ context.Context, id int) (*models.RosterCategory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	category, ok := f.categories[id]
	if !ok {
		return nil, repositories.ErrCategoryNotFound
	}
	clone := *category
	return &clone, nil
}

func (f *fakeCategoryRepo) Update(_ context.Context, category *models.RosterCategory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.categories[category.ID]; !ok {
		return repositories.ErrCategoryNotFound
	}
	clone := *category
	f.categories[category.ID] = &clone
	return nil
}

func (f *fakeCategoryRepo) Delete(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.categories[id]; !ok {
		return repositories.ErrCategoryNotFound
	}
	delete(f.categories, id)
	return nil
}

func (f *fakeCategoryRepo) ListByGuild(_ context.Context, guildID string) ([]*models.RosterCategory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*models.RosterCategory, 0, len(f.categories))
	for _, category := range f.categories {
		if category.GuildID == guildID {
			clone := *category
			matched = append(matched, &clone)
		}
	}
	return matched, nil
}

type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[string]*models.PlayerLink // keyed by guildID + "/" + tag
}

func newFakeLinkRepo(links ...*models.PlayerLink) *fakeLinkRepo {
	repo := &fakeLinkRepo{links: make(map[string]*models.PlayerLink)}
	for _, link := range links {
		clone := *link
		repo.links[link.GuildID+"/"+link.Tag] = &clone
	}
	return repo
}

func (f *fakeLinkRepo) GetByTag(_ context.Context, guildID, tag string) (*models.PlayerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[guildID+"/"+tag]
	if !ok {
		return nil, repositories.ErrLinkNotFound
	}
	clone := *link
	return &clone, nil
}

func (f *fakeLinkRepo) ListByUser(_ context.Context, guildID, userID string) ([]*models.PlayerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*models.PlayerLink, 0)
	for _, link := range f.links {
		if link.GuildID == guildID && link.UserID == userID {
			clone := *link
			matched = append(matched, &clone)
		}
	}
	return matched, nil
}

func (f *fakeLinkRepo) Upsert(_ context.Context, link *models.PlayerLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *link
	f.links[link.GuildID+"/"+link.Tag] = &clone
	return nil
}

func (f *fakeLinkRepo) Delete(_ context.Context, guildID, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := guildID + "/" + tag
	if _, ok := f.links[key]; !ok {
		return repositories.ErrLinkNotFound
	}
	delete(f.links, key)
	return nil
}

type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*models.GuildSettings
}

func newFakeSettingsRepo(settings ...*models.GuildSettings) *fakeSettingsRepo {
	repo := &fakeSettingsRepo{settings: make(map[string]*models.GuildSettings)}
	for _, s := range settings {
		clone := *s
		repo.settings[s.GuildID] = &clone
	}
	return repo
}

func (f *fakeSettingsRepo) GetByGuildID(_ context.Context, guildID string) (*models.GuildSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings, ok := f.settings[guildID]
	if !ok {
		return nil, repositories.ErrSettingsNotFound
	}
	clone := *settings
	return &clone, nil
}

func (f *fakeSettingsRepo) ensure(guildID string) *models.GuildSettings {
	settings, ok := f.settings[guildID]
	if !ok {
		settings = &models.GuildSettings{GuildID: guildID}
		f.settings[guildID] = settings
	}
	return settings
}

func (f *fakeSettingsRepo) SetChangelogChannel(_ context.Context, guildID string, channelID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensure(guildID).ChangelogChannelID = channelID
	return nil
}

func (f *fakeSettingsRepo) SetDefaultWebhook(_ context.Context, guildID, webhookID, webhookToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings := f.ensure(guildID)
	settings.DefaultWebhookID = &webhookID
	settings.DefaultWebhookToken = &webhookToken
	return nil
}

func (f *fakeSettingsRepo) ClearDefaultWebhook(_ context.Context, guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings := f.ensure(guildID)
	settings.DefaultWebhookID = nil
	settings.DefaultWebhookToken = nil
	return nil
}

type fakeProfileSource struct {
	players map[string]*gameapi.Player
	errs    map[string]error
}

func newFakeProfileSource(players ...*gameapi.Player) *fakeProfileSource {
	src := &fakeProfileSource{players: make(map[string]*gameapi.Player), errs: make(map[string]error)}
	for _, p := range players {
		src.players[p.Tag] = p
	}
	return src
}

func (f *fakeProfileSource) GetPlayer(_ context.Context, tag string) (*gameapi.Player, error) {
	if err, failed := f.errs[tag]; failed {
		return nil, err
	}
	player, ok := f.players[tag]
	if !ok {
		return nil, gameapi.ErrPlayerNotFound
	}
	clone := *player
	return &clone, nil
}

func (f *fakeProfileSource) GetPlayers(ctx context.Context, tags []string) []gameapi.PlayerResult {
	results := make([]gameapi.PlayerResult, len(tags))
	for i, tag := range tags {
		player, err := f.GetPlayer(ctx, tag)
		results[i] = gameapi.PlayerResult{Tag: tag, Player: player, Err: err}
	}
	return results
}

type roleWrite struct {
	userID  string
	roleIDs []string
}

// fakeGuildClient implements guild.Client with scriptable failures and a
// record of every role write and webhook execution.
type fakeGuildClient struct {
	mu      sync.Mutex
	members map[string]*guild.Member

	unmanageable map[string]struct{}
	setRolesErr  map[string]error
	listErr      error
	listGate     chan struct{} // when set, ListMembers blocks until closed

	roleWrites []roleWrite

	channels        map[string]bool
	staleWebhooks   map[string]struct{}
	executeErr      error
	executed        []guild.Record
	executedVia     []string
	createdWebhooks []guild.Webhook
	createErr       error
	nextWebhook     int
}

func newFakeGuildClient(members ...*guild.Member) *fakeGuildClient {
	client := &fakeGuildClient{
		members:       make(map[string]*guild.Member),
		unmanageable:  make(map[string]struct{}),
		setRolesErr:   make(map[string]error),
		channels:      make(map[string]bool),
		staleWebhooks: make(map[string]struct{}),
	}
	for _, m := range members {
		clone := *m
		clone.RoleIDs = append([]string(nil), m.RoleIDs...)
		client.members[m.UserID] = &clone
	}
	return client
}

func (f *fakeGuildClient) ListMembers(_ context.Context, _ string) ([]guild.Member, error) {
	if f.listGate != nil {
		<-f.listGate
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]guild.Member, 0, len(f.members))
	for _, m := range f.members {
		clone := *m
		clone.RoleIDs = append([]string(nil), m.RoleIDs...)
		members = append(members, clone)
	}
	return members, nil
}

func (f *fakeGuildClient) GetMember(_ context.Context, _, userID string) (*guild.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[userID]
	if !ok {
		return nil, guild.ErrMemberNotFound
	}
	clone := *member
	clone.RoleIDs = append([]string(nil), member.RoleIDs...)
	return &clone, nil
}

func (f *fakeGuildClient) SetMemberRoles(_ context.Context, _, userID string, roleIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, failed := f.setRolesErr[userID]; failed {
		return err
	}
	f.roleWrites = append(f.roleWrites, roleWrite{userID: userID, roleIDs: append([]string(nil), roleIDs...)})
	if member, ok := f.members[userID]; ok {
		member.RoleIDs = append([]string(nil), roleIDs...)
	}
	return nil
}

func (f *fakeGuildClient) CanManageRole(_ context.Context, _, roleID string) (bool, error) {
	_, blocked := f.unmanageable[roleID]
	return !blocked, nil
}

func (f *fakeGuildClient) ChannelExists(_ context.Context, _, channelID string) (bool, error) {
	return f.channels[channelID], nil
}

func (f *fakeGuildClient) CreateWebhook(_ context.Context, channelID, name string) (*guild.Webhook, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWebhook++
	webhook := guild.Webhook{ID: fmt.Sprintf("wh-%s-%d", channelID, f.nextWebhook), Token: "token-" + name}
	f.createdWebhooks = append(f.createdWebhooks, webhook)
	return &webhook, nil
}

func (f *fakeGuildClient) ExecuteWebhook(_ context.Context, webhookID, _ string, record guild.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, stale := f.staleWebhooks[webhookID]; stale {
		return guild.ErrWebhookGone
	}
	if f.executeErr != nil {
		return f.executeErr
	}
	f.executed = append(f.executed, record)
	f.executedVia = append(f.executedVia, webhookID)
	return nil
}

func (f *fakeGuildClient) heldRoles(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[userID]
	if !ok {
		return nil
	}
	return append([]string(nil), member.RoleIDs...)
}

// Recording doubles for the mutator's collaborator interfaces.

type deltaCall struct {
	userID  string
	grants  []string
	revokes []string
}

type fakeRoleSyncer struct {
	mu     sync.Mutex
	deltas []deltaCall
	bulks  int
}

func (f *fakeRoleSyncer) ApplyDelta(_ context.Context, _, userID string, grants, revokes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, deltaCall{
		userID:  userID,
		grants:  append([]string(nil), grants...),
		revokes: append([]string(nil), revokes...),
	})
}

func (f *fakeRoleSyncer) StartBulkSync(_ *models.Roster, _ []*models.RosterCategory) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulks++
	return true
}

type publishCall struct {
	rosterID int
	action   models.RosterAction
	members  []models.RosterMember
}

type fakeChangelog struct {
	mu        sync.Mutex
	published []publishCall
}

func (f *fakeChangelog) Publish(_ context.Context, roster *models.Roster, action models.RosterAction, members []models.RosterMember, _ *models.PlayerIdentity, _ *models.RosterCategory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishCall{
		rosterID: roster.ID,
		action:   action,
		members:  append([]models.RosterMember(nil), members...),
	})
}

type broadcastCall struct {
	rosterID  int
	eventType string
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastCall
}

func (f *fakeBroadcaster) BroadcastToRoster(rosterID int, eventType string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastCall{rosterID: rosterID, eventType: eventType})
}
