package e2e

import (
	"testing"

	"alertgateway/test/testutil"

	"github.com/nats-io/nats.go"
)

// startLocalNATSServer starts a local JetStream NATS process for e2e tests.
// Params: testing handle for lifecycle/error reporting.
// Returns: server URL (process stopped on cleanup).
func startLocalNATSServer(tb testing.TB) string {
	return testutil.StartLocalNATSServer(tb)
}

// streamMessages reports how many messages a queue stream still holds.
// Params: test handle, server URL, and stream name.
// Returns: stored message count (acked messages are removed by work-queue retention).
func streamMessages(tb testing.TB, url, streamName string) uint64 {
	tb.Helper()

	nc, err := nats.Connect(url)
	if err != nil {
		tb.Fatalf("connect nats: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		tb.Fatalf("jetstream init: %v", err)
	}
	info, err := js.StreamInfo(streamName)
	if err != nil {
		tb.Fatalf("stream info %s: %v", streamName, err)
	}
	return info.State.Msgs
}
