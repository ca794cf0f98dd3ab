package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jdfoster/appsync-realtime-util/pkg/log"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByType    map[wire.MessageType]int
	Connections       map[string]*ConnectionStats
	Subscriptions     map[string]*SubscriptionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Endpoint   string
	KeepAlives int
	LastState  string
}

// SubscriptionStats holds statistics for a single subscription.
type SubscriptionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Data      int
	Errors    int
}

// Collect reads the log file and aggregates its events.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByType:    make(map[wire.MessageType]int),
		Connections:       make(map[string]*ConnectionStats),
		Subscriptions:     make(map[string]*SubscriptionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.Endpoint != "" && conn.Endpoint == "" {
		conn.Endpoint = event.Endpoint
	}
	if event.Category == log.CategoryKeepAlive {
		conn.KeepAlives++
	}
	if sc := event.StateChange; sc != nil && sc.Entity == log.StateEntityConnection {
		conn.LastState = sc.NewState
	}

	if event.Message != nil {
		s.MessagesByType[event.Message.Type]++
	}
	if event.Error != nil {
		s.Errors++
	}

	id := event.SubscriptionID
	if id == "" && event.Message != nil {
		id = event.Message.ID
	}
	if id == "" {
		return
	}
	sub, ok := s.Subscriptions[id]
	if !ok {
		sub = &SubscriptionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Subscriptions[id] = sub
	}
	if event.Timestamp.After(sub.LastSeen) {
		sub.LastSeen = event.Timestamp
	}
	if event.Message != nil {
		switch event.Message.Type {
		case wire.TypeData:
			sub.Data++
		case wire.TypeError:
			sub.Errors++
		}
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== AppSync Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerClient} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryKeepAlive, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByType) > 0 {
		fmt.Fprintln(w, "Messages by Type:")
		for _, typ := range knownTypes {
			if count := stats.MessagesByType[typ]; count > 0 {
				fmt.Fprintf(w, "  %-20s %d\n", typ.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.Endpoint != "" {
				fmt.Fprintf(w, "           Endpoint: %s\n", c.stats.Endpoint)
			}
			if c.stats.KeepAlives > 0 {
				fmt.Fprintf(w, "           Keep-alives: %d\n", c.stats.KeepAlives)
			}
			if c.stats.LastState != "" {
				fmt.Fprintf(w, "           Last state: %s\n", c.stats.LastState)
			}
		}
	}

	if len(stats.Subscriptions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Subscriptions: %d\n", len(stats.Subscriptions))
		ids := make([]string, 0, len(stats.Subscriptions))
		for id := range stats.Subscriptions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			sub := stats.Subscriptions[id]
			fmt.Fprintf(w, "  %s: %d data, %d errors\n", id, sub.Data, sub.Errors)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
