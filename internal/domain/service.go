package domain

import "strings"

// Service type names as they appear in configuration.
const (
	ServiceTypeZoom    = "zoom"
	ServiceTypeMSTeams = "msteams"
	ServiceTypeSMTP    = "smtp"
)

// QueueRecord is one configured durable queue.
// Params: id referenced by alerts, broker queue name, and default destination services.
// Returns: read-only queue definition.
type QueueRecord struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	ServiceIDs []int  `json:"service_ids"`
}

// ServiceKind is closed set of delivery kinds; only types in this package implement it.
type ServiceKind interface {
	TypeName() string
	isServiceKind()
}

// ZoomKind delivers to Zoom team chat incoming webhook.
// Params: raw Authorization header value for the webhook.
// Returns: zoom service kind.
type ZoomKind struct {
	Authorization string
}

// MSTeamsKind delivers to Microsoft Teams incoming webhook.
type MSTeamsKind struct{}

// SMTPKind delivers email through configured SMTP relay.
type SMTPKind struct{}

// UnknownKind keeps unsupported type names so router can report them.
type UnknownKind struct {
	Type string
}

func (ZoomKind) TypeName() string      { return ServiceTypeZoom }
func (MSTeamsKind) TypeName() string   { return ServiceTypeMSTeams }
func (SMTPKind) TypeName() string      { return ServiceTypeSMTP }
func (k UnknownKind) TypeName() string { return k.Type }

func (ZoomKind) isServiceKind()    {}
func (MSTeamsKind) isServiceKind() {}
func (SMTPKind) isServiceKind()    {}
func (UnknownKind) isServiceKind() {}

// NewServiceKind builds tagged service kind from configured type string.
// Params: type name (case-insensitive) and optional authorization credential.
// Returns: matching kind or UnknownKind for unsupported names.
func NewServiceKind(typeName, authorization string) ServiceKind {
	switch strings.ToLower(strings.TrimSpace(typeName)) {
	case ServiceTypeZoom:
		return ZoomKind{Authorization: authorization}
	case ServiceTypeMSTeams:
		return MSTeamsKind{}
	case ServiceTypeSMTP:
		return SMTPKind{}
	default:
		return UnknownKind{Type: typeName}
	}
}

// IsSupportedServiceType reports whether type name maps to a known sender.
// Params: configured type string.
// Returns: true for zoom/msteams/smtp.
func IsSupportedServiceType(typeName string) bool {
	_, unknown := NewServiceKind(typeName, "").(UnknownKind)
	return !unknown
}

// ServiceRecord is one configured notification destination.
// Params: id, display name, delivery kind, and recipient (webhook URL or email address).
// Returns: read-only destination definition.
type ServiceRecord struct {
	ID        int
	Name      string
	Kind      ServiceKind
	Recipient string
}

// Type returns configured type name of the service.
// Params: none.
// Returns: kind type name or empty when kind is missing.
func (s ServiceRecord) Type() string {
	if s.Kind == nil {
		return ""
	}
	return s.Kind.TypeName()
}
