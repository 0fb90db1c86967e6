package guild

import (
	"context"
	"errors"
)

var (
	// ErrWebhookGone signals a stale delivery sink: the webhook or its
	// target channel no longer exists. It triggers the changelog self-heal.
	ErrWebhookGone = errors.New("webhook no longer exists")

	ErrMemberNotFound  = errors.New("guild member not found")
	ErrChannelNotFound = errors.New("guild channel not found")
)

// Member is a guild user together with the role set they currently hold.
type Member struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	RoleIDs     []string `json:"role_ids"`
}

// Webhook is a provisioned delivery sink: a channel-bound id/token pair.
type Webhook struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Record is the fixed-shape changelog payload delivered to a webhook.
type Record struct {
	Title  string        `json:"title"`
	Body   string        `json:"body"`
	Color  int           `json:"color"`
	Fields []RecordField `json:"fields,omitempty"`
}

type RecordField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Client is the guild platform capability set the roster core consumes:
// membership enumeration, role reads/writes bounded by the caller's own
// authority, and webhook provisioning/delivery.
type Client interface {
	ListMembers(ctx context.Context, guildID string) ([]Member, error)
	GetMember(ctx context.Context, guildID, userID string) (*Member, error)
	// SetMemberRoles replaces the member's whole role set in one write.
	SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error
	// CanManageRole reports whether the caller's credential has permission
	// to edit the role and the role sits below the caller's highest rank.
	CanManageRole(ctx context.Context, guildID, roleID string) (bool, error)

	ChannelExists(ctx context.Context, guildID, channelID string) (bool, error)
	CreateWebhook(ctx context.Context, channelID, name string) (*Webhook, error)
	// ExecuteWebhook returns ErrWebhookGone when the sink is stale.
	ExecuteWebhook(ctx context.Context, webhookID, webhookToken string, record Record) error
}
