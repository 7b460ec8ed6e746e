package e2e

import (
	"fmt"
	"sort"
	"strings"
)

// e2eDestination describes one [destination.<name>] table.
type e2eDestination struct {
	Name          string
	ID            int
	Type          string
	Recipient     string
	Authorization string
}

// e2eEnv carries endpoints of the processes a scenario runs against.
type e2eEnv struct {
	Port      int
	NATSURL   string
	Stream    string
	SMTPHost  string
	SMTPPort  int
	ZoomOAuth string
	ZoomAPI   string
}

// e2eConfig renders a complete config with API, broker, SMTP, and Zoom sections.
// Params: environment endpoints, destinations, and queue name -> service ids.
// Returns: TOML document.
func e2eConfig(env e2eEnv, destinations []e2eDestination, queues map[string][]int) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, `
[service]
name = "alertgateway-e2e"

[log.console]
enabled = true
level = "error"
format = "line"

[broker]
url = ["%s"]
pool_size = 4
stream_prefix = "%s"
subject_prefix = "%s"
ack_wait_sec = 10
handle_timeout_sec = 5

[api]
enabled = true
listen = "127.0.0.1:%d"
api_keys = ["%s"]

[notify]
timeout_sec = 2

[smtp]
server = "%s"
port = %d
from_address = "alerts@example.com"
use_tls = false

[zoom]
account_id = "acct"
client_id = "client"
client_secret = "secret"
oauth_endpoint = "%s"
api_base = "%s"
`, env.NATSURL, env.Stream, strings.ToLower(env.Stream), env.Port, e2eAPIKey,
		env.SMTPHost, env.SMTPPort, env.ZoomOAuth, env.ZoomAPI)

	for _, destination := range destinations {
		fmt.Fprintf(&builder, "\n[destination.%s]\nid = %d\ntype = %q\nrecipient = %q\n",
			destination.Name, destination.ID, destination.Type, destination.Recipient)
		if destination.Authorization != "" {
			fmt.Fprintf(&builder, "authorization = %q\n", destination.Authorization)
		}
	}
	id := 1
	for _, name := range sortedKeys(queues) {
		ids := make([]string, 0, len(queues[name]))
		for _, serviceID := range queues[name] {
			ids = append(ids, fmt.Sprint(serviceID))
		}
		fmt.Fprintf(&builder, "\n[queue.%s]\nid = %d\nservice_ids = [%s]\n", name, id, strings.Join(ids, ", "))
		id++
	}
	return builder.String()
}

func sortedKeys(values map[string][]int) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
