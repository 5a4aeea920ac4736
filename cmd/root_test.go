package main

import (
	"testing"

	"github.com/cwbudde/bayestune/internal/events"
)

func TestOpenPublisher_LogsWithoutNATS(t *testing.T) {
	useTestConfig(t)
	cfg.Events.NATSURL = ""

	pub := openPublisher()
	defer pub.Close()

	fan, ok := pub.(events.Fanout)
	if !ok {
		t.Fatalf("Expected a fanout publisher, got %T", pub)
	}
	if len(fan) != 1 {
		t.Fatalf("Expected only the log publisher, got %d publishers", len(fan))
	}
	if _, ok := fan[0].(*events.LogPublisher); !ok {
		t.Errorf("Expected *events.LogPublisher, got %T", fan[0])
	}
}
