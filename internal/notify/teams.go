package notify

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"alertgateway/internal/config"
	"alertgateway/internal/domain"
)

const (
	adaptiveCardContentType = "application/vnd.microsoft.card.adaptive"
	adaptiveCardSchema      = "http://adaptivecards.io/schemas/adaptive-card.json"
	adaptiveCardVersion     = "1.4"
)

// TeamsSender posts adaptive cards to Microsoft Teams incoming webhooks.
type TeamsSender struct {
	client *http.Client
	logger *slog.Logger
}

// NewTeamsSender creates Teams webhook sender.
// Params: notify config and logger.
// Returns: initialized sender.
func NewTeamsSender(cfg config.NotifyConfig, logger *slog.Logger) *TeamsSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamsSender{client: newHTTPClient(cfg.TimeoutSec), logger: logger}
}

type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string         `json:"$schema"`
	Type    string         `json:"type"`
	Version string         `json:"version"`
	Body    []any          `json:"body"`
	Actions []cardAction   `json:"actions,omitempty"`
	MSTeams *teamsEntities `json:"msteams,omitempty"`
}

type cardContainer struct {
	Type  string      `json:"type"`
	Items []textBlock `json:"items"`
	Style string      `json:"style"`
	Bleed bool        `json:"bleed"`
}

type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type cardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type teamsEntities struct {
	Entities []teamsMention `json:"entities"`
}

type teamsMention struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Mentioned teamsMentioned `json:"mentioned"`
}

type teamsMentioned struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Send posts one alert card to the webhook.
// Params: ctx, webhook URL, and alert.
// Returns: result or failure.DeliveryFailed.
func (s *TeamsSender) Send(ctx context.Context, recipient string, alert domain.AlertEvent) (Result, error) {
	return postJSON(ctx, s.client, ChannelMSTeams, recipient, nil, buildTeamsMessage(alert))
}

// buildTeamsMessage renders adaptive card: title container, mention line at body[1], message text.
func buildTeamsMessage(alert domain.AlertEvent) teamsMessage {
	card := adaptiveCard{
		Schema:  adaptiveCardSchema,
		Type:    "AdaptiveCard",
		Version: adaptiveCardVersion,
		Body: []any{
			cardContainer{
				Type:  "Container",
				Items: []textBlock{{Type: "TextBlock", Text: alert.Title, Size: "Large", Weight: "Bolder"}},
				Style: teamsContainerStyle(alert.Severity),
				Bleed: true,
			},
			textBlock{Type: "TextBlock", Text: alert.Message, Wrap: true},
		},
	}

	if alert.URL != "" {
		card.Actions = []cardAction{{Type: "Action.OpenUrl", Title: detailsLinkText, URL: alert.URL}}
	}

	if len(alert.TaggedUsers) > 0 {
		entities := make([]teamsMention, 0, len(alert.TaggedUsers))
		tags := make([]string, 0, len(alert.TaggedUsers))
		for _, user := range alert.TaggedUsers {
			tag := "<at>" + user.Name + "</at>"
			tags = append(tags, tag)
			entities = append(entities, teamsMention{
				Type:      "mention",
				Text:      tag,
				Mentioned: teamsMentioned{ID: user.ID, Name: user.Name},
			})
		}
		card.MSTeams = &teamsEntities{Entities: entities}
		mentionLine := textBlock{Type: "TextBlock", Text: strings.Join(tags, " "), Wrap: true}
		card.Body = append(card.Body[:1], append([]any{mentionLine}, card.Body[1:]...)...)
	}

	return teamsMessage{
		Type:        "message",
		Attachments: []teamsAttachment{{ContentType: adaptiveCardContentType, Content: card}},
	}
}

func teamsContainerStyle(severity domain.Severity) string {
	switch severity {
	case domain.SeverityCritical:
		return "attention"
	case domain.SeverityWarning:
		return "warning"
	case domain.SeverityOK:
		return "good"
	default:
		return "accent"
	}
}
