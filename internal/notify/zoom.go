package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"alertgateway/internal/config"
	"alertgateway/internal/domain"
	"alertgateway/internal/zoomauth"
)

// TokenSource yields Zoom API credentials.
type TokenSource interface {
	Get(ctx context.Context) (zoomauth.Grant, error)
}

// ZoomSender posts rich messages to Zoom Team Chat incoming webhooks.
// Params: http client, credential source for mention lookups, and Zoom API base.
// Returns: zoom channel sender.
type ZoomSender struct {
	client  *http.Client
	tokens  TokenSource
	apiBase string
	logger  *slog.Logger
}

// NewZoomSender creates Zoom webhook sender.
// Params: notify/zoom config, token source (nil disables mentions), and logger.
// Returns: initialized sender.
func NewZoomSender(notifyCfg config.NotifyConfig, zoomCfg config.ZoomConfig, tokens TokenSource, logger *slog.Logger) *ZoomSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ZoomSender{
		client:  newHTTPClient(notifyCfg.TimeoutSec),
		tokens:  tokens,
		apiBase: strings.TrimRight(strings.TrimSpace(zoomCfg.APIBase), "/"),
		logger:  logger,
	}
}

type zoomPayload struct {
	Content zoomContent `json:"content"`
}

type zoomContent struct {
	Settings zoomSettings `json:"settings"`
	Head     zoomHead     `json:"head"`
	Body     []zoomBlock  `json:"body"`
}

type zoomSettings struct {
	DefaultSidebarColor string `json:"default_sidebar_color"`
}

type zoomHead struct {
	Text  string    `json:"text"`
	Style zoomStyle `json:"style"`
}

type zoomStyle struct {
	Bold string `json:"bold"`
}

type zoomBlock struct {
	Type              string `json:"type"`
	IsMarkdownSupport string `json:"is_markdown_support,omitempty"`
	Text              string `json:"text"`
	Link              string `json:"link,omitempty"`
}

// Send posts one alert to the webhook.
// Params: ctx, webhook URL, raw authorization header value, and alert.
// Returns: result or failure.DeliveryFailed.
func (s *ZoomSender) Send(ctx context.Context, recipient, authorization string, alert domain.AlertEvent) (Result, error) {
	payload := s.buildPayload(ctx, alert)
	header := make(http.Header)
	header.Set("Authorization", authorization)
	return postJSON(ctx, s.client, ChannelZoom, recipient, header, payload)
}

// buildPayload renders Zoom message card; mention line is prepended when any user resolves.
func (s *ZoomSender) buildPayload(ctx context.Context, alert domain.AlertEvent) zoomPayload {
	body := []zoomBlock{{
		Type:              "message",
		IsMarkdownSupport: "true",
		Text:              alert.Message,
	}}
	if alert.URL != "" {
		body = append(body, zoomBlock{Type: "message", Text: detailsLinkText, Link: alert.URL})
	}
	if mentions := s.resolveMentions(ctx, alert.TaggedUsers); mentions != "" {
		body = append([]zoomBlock{{Type: "message", IsMarkdownSupport: "true", Text: mentions}}, body...)
	}

	return zoomPayload{Content: zoomContent{
		Settings: zoomSettings{DefaultSidebarColor: zoomSidebarColor(alert.Severity)},
		Head:     zoomHead{Text: alert.Title, Style: zoomStyle{Bold: "true"}},
		Body:     body,
	}}
}

// resolveMentions looks up jid for each tagged user and renders `<!jid|name>` tokens.
// Params: ctx and tagged users.
// Returns: space-joined mentions, or empty string when none resolve.
func (s *ZoomSender) resolveMentions(ctx context.Context, users []domain.TaggedUser) string {
	if len(users) == 0 {
		return ""
	}
	if s.tokens == nil {
		s.logger.Warn("zoom mentions skipped: credentials not configured", "users", len(users))
		return ""
	}
	grant, err := s.tokens.Get(ctx)
	if err != nil {
		s.logger.Warn("zoom mentions skipped: token unavailable", "error", err)
		return ""
	}

	mentions := make([]string, 0, len(users))
	for _, user := range users {
		jid, err := s.lookupJID(ctx, grant, user.ID)
		if err != nil {
			s.logger.Warn("zoom user lookup failed", "user_id", user.ID, "error", err)
			continue
		}
		mentions = append(mentions, fmt.Sprintf("<!%s|%s>", jid, user.Name))
	}
	return strings.Join(mentions, " ")
}

// lookupJID resolves a user's chat jid via Zoom users API.
// Params: ctx, bearer grant, and user id or email.
// Returns: non-empty jid or error.
func (s *ZoomSender) lookupJID(ctx context.Context, grant zoomauth.Grant, userID string) (string, error) {
	endpoint := s.apiBase + "/v2/users/" + url.PathEscape(userID)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	request.Header = grant.Header.Clone()

	response, err := s.client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", unexpectedHTTPStatusError(response)
	}

	var decoded struct {
		JID string `json:"jid"`
	}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	if strings.TrimSpace(decoded.JID) == "" {
		return "", fmt.Errorf("user has no jid")
	}
	return decoded.JID, nil
}

func zoomSidebarColor(severity domain.Severity) string {
	switch severity {
	case domain.SeverityCritical:
		return "#FF0000"
	case domain.SeverityWarning:
		return "#FFFF00"
	case domain.SeverityOK:
		return "#00FF00"
	default:
		return "#0000FF"
	}
}
