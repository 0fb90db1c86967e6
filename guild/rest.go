package guild

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

type RESTClientConfig struct {
	BaseURL  string
	BotToken string
}

type restClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRESTClient builds a Client over the guild platform's HTTP API.
func NewRESTClient(cfg RESTClientConfig) (Client, error) {
	if cfg.BaseURL == "" || cfg.BotToken == "" {
		return nil, errors.New("invalid guild client configuration: base URL and bot token are required")
	}
	return &restClient{
		baseURL: cfg.BaseURL,
		token:   cfg.BotToken,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *restClient) do(ctx context.Context, method, path string, body, dst interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response of %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *restClient) ListMembers(ctx context.Context, guildID string) ([]Member, error) {
	var members []Member
	status, err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/members", nil, &members)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list members returned status %d", status)
	}
	return members, nil
}

func (c *restClient) GetMember(ctx context.Context, guildID, userID string) (*Member, error) {
	var member Member
	status, err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/members/"+userID, nil, &member)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &member, nil
	case http.StatusNotFound:
		return nil, ErrMemberNotFound
	default:
		return nil, fmt.Errorf("get member returned status %d", status)
	}
}

func (c *restClient) SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error {
	body := struct {
		Roles []string `json:"roles"`
	}{Roles: roleIDs}

	status, err := c.do(ctx, http.MethodPatch, "/guilds/"+guildID+"/members/"+userID, body, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrMemberNotFound
	default:
		return fmt.Errorf("set member roles returned status %d", status)
	}
}

func (c *restClient) CanManageRole(ctx context.Context, guildID, roleID string) (bool, error) {
	var result struct {
		Manageable bool `json:"manageable"`
	}
	status, err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/roles/"+roleID+"/manageable", nil, &result)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("role manageability check returned status %d", status)
	}
	return result.Manageable, nil
}

func (c *restClient) ChannelExists(ctx context.Context, guildID, channelID string) (bool, error) {
	status, err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/channels/"+channelID, nil, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("channel lookup returned status %d", status)
	}
}

func (c *restClient) CreateWebhook(ctx context.Context, channelID, name string) (*Webhook, error) {
	body := struct {
		Name string `json:"name"`
	}{Name: name}

	var webhook Webhook
	status, err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/webhooks", body, &webhook)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrChannelNotFound
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("create webhook returned status %d", status)
	}
	return &webhook, nil
}

func (c *restClient) ExecuteWebhook(ctx context.Context, webhookID, webhookToken string, record Record) error {
	status, err := c.do(ctx, http.MethodPost, "/webhooks/"+webhookID+"/"+webhookToken, record, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound, http.StatusUnauthorized:
		// The webhook or its channel is gone, or the token was revoked.
		return ErrWebhookGone
	default:
		return fmt.Errorf("execute webhook returned status %d", status)
	}
}
