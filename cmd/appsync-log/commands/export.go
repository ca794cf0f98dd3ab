package commands

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/jdfoster/appsync-realtime-util/pkg/log"
)

// RunExport writes the events matching filter to output (stdout if empty)
// as jsonl or csv.
func RunExport(path, format, output string, filter log.Filter) error {
	switch format {
	case "jsonl", "csv":
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

// exportJSONL writes the same line format appsync-sub prints to stdout.
func exportJSONL(reader *log.Reader, w io.Writer) error {
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		line, err := log.MarshalJSONLine(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "subscription_id", "type", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		eventType := "unknown"
		detail := ""
		switch {
		case event.Frame != nil:
			eventType = "frame"
			detail = fmt.Sprintf("%d bytes", event.Frame.Size)
		case event.Message != nil:
			eventType = event.Message.Type.String()
			detail = event.Message.Payload
		case event.StateChange != nil:
			eventType = "state"
			detail = event.StateChange.OldState + " -> " + event.StateChange.NewState
		case event.Error != nil:
			eventType = "error"
			detail = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.SubscriptionID,
			eventType,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
