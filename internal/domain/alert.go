package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"alertgateway/internal/failure"
)

// Severity is optional alert severity level.
// Params: one of ok/info/warning/critical; empty means absent.
// Returns: severity used for channel color/style and email subject.
type Severity string

const (
	// SeverityOK marks recovered/healthy alerts.
	SeverityOK Severity = "ok"
	// SeverityInfo marks informational alerts.
	SeverityInfo Severity = "info"
	// SeverityWarning marks degraded state alerts.
	SeverityWarning Severity = "warning"
	// SeverityCritical marks outage alerts.
	SeverityCritical Severity = "critical"
)

// Valid reports whether severity is absent or one of supported levels.
// Params: none.
// Returns: true for empty or known severity.
func (s Severity) Valid() bool {
	switch s {
	case "", SeverityOK, SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// UnmarshalJSON decodes severity accepting null as absent value.
// Any string is kept as is; Validate enforces the supported set on the publish path.
// Params: raw JSON token.
// Returns: error for non-string severity.
func (s *Severity) UnmarshalJSON(raw []byte) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		*s = ""
		return nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	*s = Severity(value)
	return nil
}

// TaggedUser identifies one user mentioned in an alert.
// Params: display name and platform id (email-like identifier).
// Returns: mention target for chat channels.
type TaggedUser struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// AlertEvent is one alert published to a queue and fanned out to services.
// Params: target queue id, title, markdown message, optional severity/url/tagged users.
// Returns: immutable alert payload carried as queue message body.
type AlertEvent struct {
	QueueID     int          `json:"queue_id"`
	Title       string       `json:"title"`
	Message     string       `json:"message"`
	Severity    Severity     `json:"severity,omitempty"`
	URL         string       `json:"url,omitempty"`
	TaggedUsers []TaggedUser `json:"tagged_users,omitempty"`
}

// HasSeverity reports whether severity was provided.
// Params: none.
// Returns: true when severity is set.
func (a AlertEvent) HasSeverity() bool {
	return a.Severity != ""
}

// Validate checks alert fields accepted by the publish path.
// Params: alert fields decoded from API request.
// Returns: validation error when contract is violated.
func (a AlertEvent) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(a.Message) == "" {
		return errors.New("message is required")
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("severity has unsupported value %q", a.Severity)
	}
	for i, user := range a.TaggedUsers {
		if strings.TrimSpace(user.ID) == "" {
			return fmt.Errorf("tagged_users[%d].id is required", i)
		}
	}
	return nil
}

// queuedAlert is the consume-side wire shape; queue_id is informational there and decoded leniently.
type queuedAlert struct {
	AlertEvent
	QueueID json.RawMessage `json:"queue_id"`
}

// DecodeAlert decodes one queue message body into alert payload.
// Unknown severities are kept (channels fall back to default styling) and a non-integer queue_id is ignored.
// Params: raw UTF-8 JSON object bytes.
// Returns: decoded alert or failure.DecodeError.
func DecodeAlert(raw []byte) (AlertEvent, error) {
	if !utf8.Valid(raw) {
		return AlertEvent{}, failure.DecodeError{Err: errors.New("body is not valid utf-8")}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return AlertEvent{}, failure.DecodeError{Err: errors.New("body must be a json object")}
	}
	var wire queuedAlert
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return AlertEvent{}, failure.DecodeError{Err: err}
	}
	alert := wire.AlertEvent
	alert.QueueID = lenientQueueID(wire.QueueID)
	return alert, nil
}

// lenientQueueID reads an integer or numeric string; anything else yields 0.
func lenientQueueID(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var id int
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
			return parsed
		}
	}
	return 0
}
