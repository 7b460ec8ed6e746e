package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"alertgateway/internal/config"
	"alertgateway/internal/domain"
	"alertgateway/internal/failure"
	"alertgateway/internal/zoomauth"
)

type staticTokens struct {
	err   error
	calls int
}

func (s *staticTokens) Get(context.Context) (zoomauth.Grant, error) {
	s.calls++
	if s.err != nil {
		return zoomauth.Grant{}, s.err
	}
	header := make(http.Header)
	header.Set("Authorization", "Bearer zoom-api")
	return zoomauth.Grant{AccessToken: "zoom-api", ExpiresAt: time.Now().Add(time.Hour), Header: header}, nil
}

type captured struct {
	mu      sync.Mutex
	headers []http.Header
	bodies  [][]byte
}

func (c *captured) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.headers = append(c.headers, r.Header.Clone())
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte("webhook rejected"))
		}
	}
}

func (c *captured) last(t *testing.T) (http.Header, map[string]any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		t.Fatalf("no request captured")
	}
	var decoded map[string]any
	if err := json.Unmarshal(c.bodies[len(c.bodies)-1], &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return c.headers[len(c.headers)-1], decoded
}

func TestZoomSenderPayloadAndAuthorization(t *testing.T) {
	t.Parallel()

	hook := &captured{}
	server := httptest.NewServer(hook.handler(http.StatusOK))
	defer server.Close()

	sender := NewZoomSender(config.NotifyConfig{TimeoutSec: 2}, config.ZoomConfig{APIBase: server.URL}, nil, nil)
	result, err := sender.Send(context.Background(), server.URL+"/hook", "raw-token", domain.AlertEvent{
		Title:    "Disk Full",
		Message:  "**/var** at 99%",
		Severity: domain.SeverityCritical,
		URL:      "https://grafana.example/d/1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("unexpected result %+v", result)
	}

	header, payload := hook.last(t)
	if header.Get("Authorization") != "raw-token" {
		t.Fatalf("expected raw authorization header, got %q", header.Get("Authorization"))
	}
	content := payload["content"].(map[string]any)
	if color := content["settings"].(map[string]any)["default_sidebar_color"]; color != "#FF0000" {
		t.Fatalf("unexpected sidebar color %v", color)
	}
	head := content["head"].(map[string]any)
	if head["text"] != "Disk Full" || head["style"].(map[string]any)["bold"] != "true" {
		t.Fatalf("unexpected head %v", head)
	}
	body := content["body"].([]any)
	if len(body) != 2 {
		t.Fatalf("expected message and link blocks, got %v", body)
	}
	message := body[0].(map[string]any)
	if message["is_markdown_support"] != "true" || message["text"] != "**/var** at 99%" {
		t.Fatalf("unexpected message block %v", message)
	}
	link := body[1].(map[string]any)
	if link["text"] != "View More Details" || link["link"] != "https://grafana.example/d/1" {
		t.Fatalf("unexpected link block %v", link)
	}
}

func TestZoomSidebarColor(t *testing.T) {
	t.Parallel()

	tests := map[domain.Severity]string{
		domain.SeverityCritical: "#FF0000",
		domain.SeverityWarning:  "#FFFF00",
		domain.SeverityOK:       "#00FF00",
		domain.SeverityInfo:     "#0000FF",
		"":                      "#0000FF",
		"fatal":                 "#0000FF",
	}
	for severity, want := range tests {
		if got := zoomSidebarColor(severity); got != want {
			t.Fatalf("severity %q: expected %s, got %s", severity, want, got)
		}
	}
}

func TestZoomSenderMentionsResolvedUsers(t *testing.T) {
	t.Parallel()

	hook := &captured{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/users/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer zoom-api" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch strings.TrimPrefix(r.URL.Path, "/v2/users/") {
		case "ana@example.com":
			_, _ = w.Write([]byte(`{"jid":"ana_jid@xmpp.zoom.us"}`))
		case "bo@example.com":
			_, _ = w.Write([]byte(`{"jid":"bo_jid@xmpp.zoom.us"}`))
		case "nojid@example.com":
			_, _ = w.Write([]byte(`{"email":"nojid@example.com"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/hook", hook.handler(http.StatusOK))
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := &staticTokens{}
	sender := NewZoomSender(config.NotifyConfig{}, config.ZoomConfig{APIBase: server.URL}, tokens, nil)
	_, err := sender.Send(context.Background(), server.URL+"/hook", "raw", domain.AlertEvent{
		Title:   "t",
		Message: "m",
		TaggedUsers: []domain.TaggedUser{
			{Name: "Ana", ID: "ana@example.com"},
			{Name: "Ghost", ID: "ghost@example.com"},
			{Name: "NoJID", ID: "nojid@example.com"},
			{Name: "Bo", ID: "bo@example.com"},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if tokens.calls != 1 {
		t.Fatalf("expected one token request per send, got %d", tokens.calls)
	}

	_, payload := hook.last(t)
	body := payload["content"].(map[string]any)["body"].([]any)
	if len(body) != 2 {
		t.Fatalf("expected mention and message blocks, got %v", body)
	}
	mention := body[0].(map[string]any)
	want := "<!ana_jid@xmpp.zoom.us|Ana> <!bo_jid@xmpp.zoom.us|Bo>"
	if mention["text"] != want {
		t.Fatalf("unexpected mention line %q", mention["text"])
	}
}

func TestZoomSenderSkipsMentionsWhenTokenFails(t *testing.T) {
	t.Parallel()

	hook := &captured{}
	server := httptest.NewServer(hook.handler(http.StatusOK))
	defer server.Close()

	tokens := &staticTokens{err: failure.TokenExchangeFailed{Status: 401, Err: errors.New("bad client")}}
	sender := NewZoomSender(config.NotifyConfig{}, config.ZoomConfig{APIBase: server.URL}, tokens, nil)
	if _, err := sender.Send(context.Background(), server.URL, "raw", domain.AlertEvent{
		Title:       "t",
		Message:     "m",
		TaggedUsers: []domain.TaggedUser{{Name: "Ana", ID: "ana@example.com"}},
	}); err != nil {
		t.Fatalf("send must succeed without mentions: %v", err)
	}
	_, payload := hook.last(t)
	body := payload["content"].(map[string]any)["body"].([]any)
	if len(body) != 1 {
		t.Fatalf("expected only message block, got %v", body)
	}
}

func TestZoomSenderNon2xxIsDeliveryFailure(t *testing.T) {
	t.Parallel()

	hook := &captured{}
	server := httptest.NewServer(hook.handler(http.StatusInternalServerError))
	defer server.Close()

	sender := NewZoomSender(config.NotifyConfig{}, config.ZoomConfig{}, nil, nil)
	result, err := sender.Send(context.Background(), server.URL, "raw", domain.AlertEvent{Title: "t", Message: "m"})
	var delivery failure.DeliveryFailed
	if !errors.As(err, &delivery) {
		t.Fatalf("expected DeliveryFailed, got %v", err)
	}
	if delivery.Channel != ChannelZoom || delivery.Status != http.StatusInternalServerError {
		t.Fatalf("unexpected failure %+v", delivery)
	}
	if !strings.Contains(err.Error(), "webhook rejected") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("unexpected result %+v", result)
	}
}
