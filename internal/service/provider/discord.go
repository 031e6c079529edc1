package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
	"github.com/sirupsen/logrus"
)

const (
	discordAPIBase    = "https://discord.com/api"
	discordCDNBase    = "https://cdn.discordapp.com"
	maxEmbedTitle     = 240
	maxEmbedBody      = 3900
	discordTimeout    = 10 * time.Second
	roleKeyAdmin      = "admin"
	roleKeyElite      = "elite"
	roleKeyPro        = "pro"
	roleKeyCore       = "core"
	severityCritical  = "critical"
	severityHigh      = "high"
	severityMedium    = "medium"
	colorCritical     = 0xdb2777
	colorHigh         = 0xf97316
	colorMedium       = 0xfacc15
	colorLowOrUnknown = 0x22c55e
)

var ErrDiscordNotConfigured = errors.New("discord not configured")

type DiscordConfig struct {
	ClientID           string
	ClientSecret       string
	RedirectURI        string
	BotToken           string
	GuildID            string
	FeedbackWebhookURL string
	RoleIDs            map[string]string
	APIBase            string
}

type DiscordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// AvatarURL is empty when the user has no custom avatar.
func (u DiscordUser) AvatarURL() string {
	if u.Avatar == "" {
		return ""
	}
	return fmt.Sprintf("%s/avatars/%s/%s.png", discordCDNBase, u.ID, u.Avatar)
}

// MemberPlan is the subscription tier derived from guild roles.
type MemberPlan struct {
	Plan         string
	IsAdmin      bool
	IsSubscriber bool
}

type FeedbackEmbed struct {
	Title       string
	Description string
	Severity    string
	URL         string
}

type DiscordClient struct {
	cfg      DiscordConfig
	client   *http.Client
	breakers *breaker.Registry
}

func NewDiscordClient(cfg DiscordConfig, breakers *breaker.Registry) *DiscordClient {
	if cfg.APIBase == "" {
		cfg.APIBase = discordAPIBase
	}
	if breakers == nil {
		breakers = breaker.NewRegistry(nil)
	}
	return &DiscordClient{
		cfg:      cfg,
		client:   &http.Client{Timeout: discordTimeout},
		breakers: breakers,
	}
}

// AuthorizeURL builds the OAuth consent redirect.
func (d *DiscordClient) AuthorizeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", d.cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", d.cfg.RedirectURI)
	params.Set("scope", "identify")
	params.Set("prompt", "consent")
	params.Set("state", state)
	return d.cfg.APIBase + "/oauth2/authorize?" + params.Encode()
}

func (d *DiscordClient) OAuthConfigured() bool {
	return d.cfg.ClientID != ""
}

func (d *DiscordClient) botConfigured() bool {
	return d.cfg.BotToken != ""
}

func (d *DiscordClient) do(ctx context.Context, method, endpoint, auth string, contentType string, body io.Reader, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{Provider: breaker.ProviderDiscord, Code: resp.StatusCode, Body: string(raw)}
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (d *DiscordClient) doJSON(ctx context.Context, method, endpoint string, payload, dst any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	return d.do(ctx, method, endpoint, "Bot "+d.cfg.BotToken, "application/json", body, dst)
}

// ExchangeCode trades an OAuth code for the authenticated user.
func (d *DiscordClient) ExchangeCode(ctx context.Context, code string) (*DiscordUser, error) {
	form := url.Values{}
	form.Set("client_id", d.cfg.ClientID)
	form.Set("client_secret", d.cfg.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", d.cfg.RedirectURI)

	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	err := d.do(ctx, http.MethodPost, d.cfg.APIBase+"/oauth2/token", "", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &token)
	if err != nil {
		return nil, fmt.Errorf("discord token exchange: %w", err)
	}

	user := &DiscordUser{}
	err = d.do(ctx, http.MethodGet, d.cfg.APIBase+"/users/@me", token.TokenType+" "+token.AccessToken, "", nil, user)
	if err != nil {
		return nil, fmt.Errorf("discord user lookup: %w", err)
	}
	return user, nil
}

// GuildMemberPlan maps guild roles to a plan. Without bot credentials every
// member is Free.
func (d *DiscordClient) GuildMemberPlan(ctx context.Context, userID string) (MemberPlan, error) {
	out := MemberPlan{Plan: constant.PlanFree}
	if !d.botConfigured() || d.cfg.GuildID == "" {
		return out, nil
	}

	var member struct {
		Roles []string `json:"roles"`
	}
	endpoint := fmt.Sprintf("%s/v10/guilds/%s/members/%s", d.cfg.APIBase, d.cfg.GuildID, userID)
	if err := d.doJSON(ctx, http.MethodGet, endpoint, nil, &member); err != nil {
		return out, err
	}

	return PlanFromRoles(member.Roles, d.cfg.RoleIDs), nil
}

// PlanFromRoles applies the admin > elite > pro > core precedence.
func PlanFromRoles(roles []string, roleIDs map[string]string) MemberPlan {
	has := make(map[string]bool, len(roles))
	for _, r := range roles {
		has[r] = true
	}
	matches := func(key string) bool {
		id := roleIDs[key]
		return id != "" && has[id]
	}

	switch {
	case matches(roleKeyAdmin):
		return MemberPlan{Plan: constant.PlanElite, IsAdmin: true, IsSubscriber: true}
	case matches(roleKeyElite):
		return MemberPlan{Plan: constant.PlanElite, IsSubscriber: true}
	case matches(roleKeyPro):
		return MemberPlan{Plan: constant.PlanPro, IsSubscriber: true}
	case matches(roleKeyCore):
		return MemberPlan{Plan: constant.PlanCore, IsSubscriber: true}
	}
	return MemberPlan{Plan: constant.PlanFree}
}

// SendDM opens a DM channel and posts content. It reports false without an
// error when the bot is not configured.
func (d *DiscordClient) SendDM(ctx context.Context, userID, content string) (bool, error) {
	if !d.botConfigured() || userID == "" || content == "" {
		return false, nil
	}

	var channel struct {
		ID string `json:"id"`
	}
	err := d.doJSON(ctx, http.MethodPost, d.cfg.APIBase+"/v10/users/@me/channels", map[string]string{"recipient_id": userID}, &channel)
	if err != nil {
		return false, fmt.Errorf("create dm channel: %w", err)
	}
	if channel.ID == "" {
		return false, errors.New("missing dm channel id")
	}

	endpoint := fmt.Sprintf("%s/v10/channels/%s/messages", d.cfg.APIBase, channel.ID)
	if err := d.doJSON(ctx, http.MethodPost, endpoint, map[string]string{"content": content}, nil); err != nil {
		return false, fmt.Errorf("send dm: %w", err)
	}
	return true, nil
}

// SendDMBestEffort logs failures instead of returning them.
func (d *DiscordClient) SendDMBestEffort(ctx context.Context, userID, content string) bool {
	sent, err := d.SendDM(ctx, userID, content)
	if err != nil {
		logrus.WithField("userID", userID).Warn(err)
	}
	return sent
}

// SyncPlanRole removes every subscription role then grants the one for plan.
func (d *DiscordClient) SyncPlanRole(ctx context.Context, userID, plan string) error {
	if !d.botConfigured() || d.cfg.GuildID == "" {
		return nil
	}

	var target string
	planRoles := map[string]string{
		constant.PlanElite: d.cfg.RoleIDs[roleKeyElite],
		constant.PlanPro:   d.cfg.RoleIDs[roleKeyPro],
		constant.PlanCore:  d.cfg.RoleIDs[roleKeyCore],
	}
	for p, roleID := range planRoles {
		if roleID == "" {
			continue
		}
		endpoint := fmt.Sprintf("%s/v10/guilds/%s/members/%s/roles/%s", d.cfg.APIBase, d.cfg.GuildID, userID, roleID)
		if err := d.doJSON(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
			logrus.WithFields(logrus.Fields{"userID": userID, "roleID": roleID}).Warn(err)
		}
		if p == plan {
			target = roleID
		}
	}
	if target == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/v10/guilds/%s/members/%s/roles/%s", d.cfg.APIBase, d.cfg.GuildID, userID, target)
	return d.doJSON(ctx, http.MethodPut, endpoint, nil, nil)
}

func severityColor(severity string) int {
	switch severity {
	case severityCritical:
		return colorCritical
	case severityHigh:
		return colorHigh
	case severityMedium:
		return colorMedium
	}
	return colorLowOrUnknown
}

// PostFeedback posts an embed to the feedback webhook when one is configured.
func (d *DiscordClient) PostFeedback(ctx context.Context, embed FeedbackEmbed) error {
	if d.cfg.FeedbackWebhookURL == "" {
		return nil
	}

	title := truncate(embed.Title, maxEmbedTitle)
	if title == "" {
		title = "New Feedback"
	}
	description := truncate(embed.Description, maxEmbedBody)
	if description == "" {
		description = "New submission"
	}

	item := map[string]any{
		"title":       title,
		"description": description,
		"color":       severityColor(embed.Severity),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if embed.URL != "" {
		item["fields"] = []map[string]string{{"name": "View in Admin", "value": embed.URL}}
	}

	raw, err := json.Marshal(map[string]any{"embeds": []any{item}})
	if err != nil {
		return err
	}
	return d.do(ctx, http.MethodPost, d.cfg.FeedbackWebhookURL, "", "application/json", bytes.NewReader(raw), nil)
}
