package commands

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/jdfoster/appsync-realtime-util/pkg/log"
)

var (
	outColor   = color.New(color.FgCyan)
	inColor    = color.New(color.FgGreen)
	errColor   = color.New(color.FgRed)
	stateColor = color.New(color.FgYellow)
)

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)

	var typeLabel string
	switch {
	case event.Frame != nil:
		typeLabel = "Frame"
	case event.Message != nil:
		typeLabel = event.Message.Type.String()
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	dir := fmt.Sprintf("%-3s", event.Direction.String())
	switch {
	case event.Error != nil:
		dir = errColor.Sprint(dir)
	case event.StateChange != nil:
		dir = stateColor.Sprint(dir)
	case event.Direction == log.DirectionOut:
		dir = outColor.Sprint(dir)
	default:
		dir = inColor.Sprint(dir)
	}

	fmt.Fprintf(w, "%s [conn:%s] %s %s %s", ts, connID, dir, event.Layer.String(), typeLabel)
	if event.SubscriptionID != "" {
		fmt.Fprintf(w, " [sub:%s]", event.SubscriptionID)
	}
	fmt.Fprintln(w)

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	kind := "text"
	if frame.Binary {
		kind = "binary"
	}
	fmt.Fprintf(w, "  Size: %d bytes (%s)\n", frame.Size, kind)
	if len(frame.Data) > 0 {
		if frame.Binary {
			fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		} else {
			fmt.Fprintf(w, "  Data: %q", frame.Data)
		}
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	if msg.ID != "" {
		fmt.Fprintf(w, "  ID: %s\n", msg.ID)
	}
	if msg.Payload == "" {
		return
	}
	var compact any
	if err := json.Unmarshal([]byte(msg.Payload), &compact); err == nil {
		if out, err := json.Marshal(compact); err == nil {
			fmt.Fprintf(w, "  Payload: %s\n", out)
			return
		}
	}
	fmt.Fprintf(w, "  Payload: %s\n", msg.Payload)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// RunView prints the events of the log file matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	return nil
}
