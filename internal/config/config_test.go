package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"alertgateway/internal/domain"
)

const (
	smtpSection = `[smtp]
server = "smtp.example.com"
from_address = "alerts@example.com"`
	apiEnabled = `[api]
enabled = true
api_keys = ["k1"]`
)

func TestLoadSnapshotFromFile(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		serviceSection("gateway"),
		smtpSection,
		destinationSection("ops_zoom", 1, "zoom", "https://zoom.example/hook", "zoom-token"),
		destinationSection("ops_teams", 2, "MSTeams", "https://teams.example/hook", ""),
		destinationSection("ops_mail", 3, "smtp", "ops@example.com", ""),
		queueSection("prod", 7, 1, 2, 3),
	))

	if cfg.Service.Name != "gateway" {
		t.Fatalf("unexpected service name %q", cfg.Service.Name)
	}
	if len(cfg.Queues) != 1 || cfg.Queues[0].Name != "prod" || cfg.Queues[0].ID != 7 {
		t.Fatalf("unexpected queues: %+v", cfg.Queues)
	}
	if len(cfg.Destinations) != 3 {
		t.Fatalf("expected 3 destinations, got %d", len(cfg.Destinations))
	}
	if cfg.Destinations[1].Type != domain.ServiceTypeMSTeams {
		t.Fatalf("expected normalized type, got %q", cfg.Destinations[1].Type)
	}
}

func TestLoadSnapshotAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
		queueSection("prod", 1, 2),
	))

	if cfg.Service.Name != defaultServiceName || cfg.Service.Title != defaultServiceTitle {
		t.Fatalf("unexpected service defaults: %+v", cfg.Service)
	}
	if len(cfg.Broker.URL) != 1 || cfg.Broker.URL[0] != defaultNATSURL {
		t.Fatalf("unexpected broker url: %v", cfg.Broker.URL)
	}
	if cfg.Broker.PoolSize != 20 {
		t.Fatalf("expected default pool size 20, got %d", cfg.Broker.PoolSize)
	}
	if cfg.Broker.MaxAckPending != 1 {
		t.Fatalf("expected ordered delivery default, got %d", cfg.Broker.MaxAckPending)
	}
	if cfg.Broker.HandleTimeoutSec >= cfg.Broker.AckWaitSec {
		t.Fatalf("handle timeout %d must stay below ack wait %d", cfg.Broker.HandleTimeoutSec, cfg.Broker.AckWaitSec)
	}
	if cfg.Notify.TimeoutSec != 10 {
		t.Fatalf("expected default notify timeout 10, got %d", cfg.Notify.TimeoutSec)
	}
	if cfg.SMTP.Port != defaultSMTPPort {
		t.Fatalf("expected smtp port %d, got %d", defaultSMTPPort, cfg.SMTP.Port)
	}
	if cfg.SMTP.TimeoutSec != cfg.Notify.TimeoutSec {
		t.Fatalf("expected smtp timeout fallback to notify timeout, got %d", cfg.SMTP.TimeoutSec)
	}
	if cfg.SMTP.FromName != defaultServiceTitle {
		t.Fatalf("expected from_name fallback to title, got %q", cfg.SMTP.FromName)
	}
	if cfg.Zoom.OAuthEndpoint != defaultZoomOAuthEndpoint || cfg.Zoom.APIBase != defaultZoomAPIBase {
		t.Fatalf("unexpected zoom defaults: %+v", cfg.Zoom)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console sink enabled by default")
	}
}

func TestLoadSnapshotTLSPortDefault(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		smtpSection+"\nuse_tls = true",
		destinationSection("ops_mail", 3, "smtp", "ops@example.com", ""),
		queueSection("prod", 1, 3),
	))
	if cfg.SMTP.Port != defaultSMTPTLSPort {
		t.Fatalf("expected implicit tls port, got %d", cfg.SMTP.Port)
	}
}

func TestLoadSnapshotHandleTimeoutFollowsShortAckWait(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		"[broker]\nack_wait_sec = 10",
		destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
		queueSection("prod", 1, 2),
	))
	if cfg.Broker.HandleTimeoutSec != 9 {
		t.Fatalf("expected handle timeout capped below ack wait, got %d", cfg.Broker.HandleTimeoutSec)
	}
}

func TestLoadSnapshotValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "require queue",
			content: destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
			wantErr: "at least one queue",
		},
		{
			name: "reject unknown destination reference",
			content: joinSections(
				destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
				queueSection("prod", 1, 2, 9),
			),
			wantErr: "queue.prod.service_ids[1]: unknown destination id 9",
		},
		{
			name: "reject unsupported type",
			content: joinSections(
				destinationSection("pager", 4, "pagerduty", "https://pd.example", ""),
				queueSection("prod", 1, 4),
			),
			wantErr: "destination.pager.type",
		},
		{
			name: "zoom requires authorization",
			content: joinSections(
				destinationSection("ops_zoom", 1, "zoom", "https://zoom.example/hook", ""),
				queueSection("prod", 1, 1),
			),
			wantErr: "destination.ops_zoom.authorization",
		},
		{
			name: "smtp destination requires server",
			content: joinSections(
				destinationSection("ops_mail", 3, "smtp", "ops@example.com", ""),
				queueSection("prod", 1, 3),
			),
			wantErr: "smtp.server",
		},
		{
			name: "duplicate destination id",
			content: joinSections(
				destinationSection("a", 2, "msteams", "https://teams.example/a", ""),
				destinationSection("b", 2, "msteams", "https://teams.example/b", ""),
				queueSection("prod", 1, 2),
			),
			wantErr: "duplicate destination id 2",
		},
		{
			name: "duplicate queue id",
			content: joinSections(
				destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
				queueSection("prod", 1, 2),
				queueSection("stage", 1, 2),
			),
			wantErr: "queue id 1 already used",
		},
		{
			name: "queue names differing only in case",
			content: joinSections(
				destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
				queueSection("alerts", 1, 2),
				queueSection("Alerts", 2, 2),
			),
			wantErr: "names are case-insensitive",
		},
		{
			name: "handle timeout must stay below ack wait",
			content: joinSections(
				"[broker]\nack_wait_sec = 30\nhandle_timeout_sec = 60",
				destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
				queueSection("prod", 1, 2),
			),
			wantErr: "broker.handle_timeout_sec (60) must be less than broker.ack_wait_sec (30)",
		},
		{
			name: "mixed case zoom type requires authorization",
			content: joinSections(
				destinationSection("ops_zoom", 1, " Zoom ", "https://zoom.example/hook", ""),
				queueSection("prod", 1, 1),
			),
			wantErr: "destination.ops_zoom.authorization",
		},
		{
			name: "api requires keys",
			content: joinSections(
				"[api]\nenabled = true",
				destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
				queueSection("prod", 1, 2),
			),
			wantErr: "api.api_keys",
		},
		{
			name: "reject negative pool size",
			content: joinSections(
				"[broker]\npool_size = -1",
				destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
				queueSection("prod", 1, 2),
			),
			wantErr: "broker.pool_size",
		},
		{
			name: "reject legacy queue arrays",
			content: joinSections(
				"[[queue]]\nid = 1",
				destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
			),
			wantErr: "[[queue]] arrays are not supported",
		},
		{
			name: "reject invalid log level",
			content: joinSections(
				"[log.console]\nenabled = true\nlevel = \"trace\"",
				destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
				queueSection("prod", 1, 2),
			),
			wantErr: "log.console.level",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := loadSnapshotErr(t, tt.content)
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadSnapshotFromDirMergesFragments(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "00-base.toml"), joinSections(
		serviceSection("gateway"),
		apiEnabled,
		smtpSection+"\nuse_tls = true",
	))
	writeConfigFile(t, filepath.Join(tmpDir, "10-destinations.toml"), joinSections(
		destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
		destinationSection("ops_mail", 3, "smtp", "ops@example.com", ""),
	))
	writeConfigFile(t, filepath.Join(tmpDir, "20-queues.toml"), joinSections(
		"[api]\napi_keys = [\"k2\"]",
		queueSection("prod", 1, 2, 3),
		queueSection("stage", 2, 2),
	))
	writeConfigFile(t, filepath.Join(tmpDir, "README.md"), "ignored")

	cfg, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !cfg.API.Enabled {
		t.Fatalf("expected api to stay enabled across fragments")
	}
	if strings.Join(cfg.API.APIKeys, ",") != "k1,k2" {
		t.Fatalf("unexpected api keys: %v", cfg.API.APIKeys)
	}
	if !cfg.SMTP.UseTLS {
		t.Fatalf("expected smtp.use_tls to be preserved")
	}
	if len(cfg.Queues) != 2 || len(cfg.Destinations) != 2 {
		t.Fatalf("unexpected merged records: queues=%d destinations=%d", len(cfg.Queues), len(cfg.Destinations))
	}
}

func TestLoadSnapshotFromDirExplicitFalseOverride(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "a.toml"), apiEnabled)
	writeConfigFile(t, filepath.Join(tmpDir, "b.toml"), joinSections(
		"[api]\nenabled = false",
		destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
		queueSection("prod", 1, 2),
	))

	cfg, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if cfg.API.Enabled {
		t.Fatalf("expected explicit false to disable api")
	}
}

func TestLoadSnapshotFromEmptyDir(t *testing.T) {
	t.Parallel()

	_, err := LoadSnapshot(ConfigSource{Dir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "no .toml files") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFromCLI(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error for missing source")
	}
	if _, err := FromCLI("a.toml", "conf.d"); err == nil {
		t.Fatalf("expected error for both sources")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil || src.File != "a.toml" {
		t.Fatalf("unexpected source: %+v err=%v", src, err)
	}
	src, err = FromCLI("", "conf.d")
	if err != nil || src.Dir != "conf.d" {
		t.Fatalf("unexpected source: %+v err=%v", src, err)
	}
}

func TestRecordConversion(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		destinationSection("ops_zoom", 1, "zoom", "https://zoom.example/hook", "zoom-token"),
		destinationSection("ops_teams", 2, "msteams", "https://teams.example/hook", ""),
		queueSection("prod", 7, 2, 1),
	))

	queues := cfg.QueueRecords()
	if len(queues) != 1 || queues[0].ID != 7 || len(queues[0].ServiceIDs) != 2 {
		t.Fatalf("unexpected queue records: %+v", queues)
	}
	services := cfg.ServiceRecords()
	if len(services) != 2 {
		t.Fatalf("unexpected service records: %+v", services)
	}
	zoom, ok := services[0].Kind.(domain.ZoomKind)
	if !ok {
		t.Fatalf("expected zoom kind, got %T", services[0].Kind)
	}
	if zoom.Authorization != "zoom-token" {
		t.Fatalf("unexpected authorization %q", zoom.Authorization)
	}
	if _, ok := services[1].Kind.(domain.MSTeamsKind); !ok {
		t.Fatalf("expected msteams kind, got %T", services[1].Kind)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Parallel()

	cfg, err := LoadSnapshot(ConfigSource{File: filepath.Join("..", "..", "config.example.toml")})
	if err != nil {
		t.Fatalf("load example config: %v", err)
	}
	if len(cfg.Queues) == 0 {
		t.Fatalf("expected example queues")
	}
}

func serviceSection(name string) string {
	if name == "" {
		return ""
	}
	return fmt.Sprintf("[service]\nname = %q", name)
}

func destinationSection(name string, id int, kind, recipient, authorization string) string {
	lines := []string{
		fmt.Sprintf("[destination.%s]", name),
		fmt.Sprintf("id = %d", id),
		fmt.Sprintf("type = %q", kind),
		fmt.Sprintf("recipient = %q", recipient),
	}
	if authorization != "" {
		lines = append(lines, fmt.Sprintf("authorization = %q", authorization))
	}
	return strings.Join(lines, "\n")
}

func queueSection(name string, id int, serviceIDs ...int) string {
	ids := make([]string, 0, len(serviceIDs))
	for _, serviceID := range serviceIDs {
		ids = append(ids, fmt.Sprintf("%d", serviceID))
	}
	return fmt.Sprintf("[queue.%s]\nid = %d\nservice_ids = [%s]", name, id, strings.Join(ids, ", "))
}

func mustLoadSnapshot(t *testing.T, content string) Config {
	t.Helper()
	cfg, err := loadSnapshotFromContent(t, content)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return cfg
}

func loadSnapshotErr(t *testing.T, content string) error {
	t.Helper()
	_, err := loadSnapshotFromContent(t, content)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	return err
}

func loadSnapshotFromContent(t *testing.T, content string) (Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfigFile(t, path, content)
	return LoadSnapshot(ConfigSource{File: path})
}

func joinSections(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		nonEmpty = append(nonEmpty, trimmed)
	}
	return strings.Join(nonEmpty, "\n\n") + "\n"
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}
