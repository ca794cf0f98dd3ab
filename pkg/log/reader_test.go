package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.alog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func msgEvent(dir Direction, typ wire.MessageType, id string) Event {
	category := CategoryMessage
	if typ == wire.TypeKeepAlive {
		category = CategoryKeepAlive
	}
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    dir,
		Layer:        LayerWire,
		Category:     category,
		Message:      &MessageEvent{Type: typ, ID: id},
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	path := createTestLogFile(t, []Event{
		msgEvent(DirectionOut, wire.TypeConnectionInit, ""),
		msgEvent(DirectionIn, wire.TypeConnectionAck, ""),
		msgEvent(DirectionOut, wire.TypeStart, "s1"),
	})

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var read []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}

	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].Message.Type != wire.TypeConnectionInit {
		t.Errorf("first event type = %q, want connection_init", read[0].Message.Type)
	}
	if read[2].Message.ID != "s1" {
		t.Errorf("last event id = %q, want s1", read[2].Message.ID)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("Next on empty file = %v, want io.EOF", err)
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.alog")); err == nil {
		t.Error("NewReader succeeded for missing file")
	}
}

func TestFilterCriteria(t *testing.T) {
	in := DirectionIn
	state := CategoryState
	now := time.Now()
	later := now.Add(time.Minute)

	events := []Event{
		msgEvent(DirectionOut, wire.TypeStart, "s1"),
		msgEvent(DirectionIn, wire.TypeStartAck, "s1"),
		msgEvent(DirectionIn, wire.TypeData, "s1"),
		msgEvent(DirectionIn, wire.TypeData, "s2"),
		msgEvent(DirectionIn, wire.TypeKeepAlive, ""),
		{Timestamp: now, Category: CategoryState, SubscriptionID: "s2", StateChange: &StateChangeEvent{NewState: "CLOSED"}},
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"empty", Filter{}, 6},
		{"direction", Filter{Direction: &in}, 5},
		{"category", Filter{Category: &state}, 1},
		{"subscription", Filter{SubscriptionID: "s2"}, 2},
		{"types", Filter{MessageTypes: []wire.MessageType{wire.TypeData}}, 2},
		{"exclude", Filter{ExcludeMessageTypes: []wire.MessageType{wire.TypeData, wire.TypeKeepAlive}}, 3},
		{"time end", Filter{TimeEnd: &now}, 0},
		{"time start", Filter{TimeStart: &later}, 0},
		{"connection", Filter{ConnectionID: "conn-1"}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadAll(createTestLogFile(t, events), tt.filter)
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}
