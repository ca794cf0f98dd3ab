// Command appsync-log views and analyzes protocol event files written by
// appsync-sub -events-file.
//
// Usage:
//
//	appsync-log <command> [flags] <file.cbor>
//
// Commands:
//
//	view     View events in human-readable format
//	export   Export events to JSONL or CSV
//	filter   Filter events and write them to a new file
//	stats    Show statistics about the event file
//
// Examples:
//
//	# View only outgoing wire messages
//	appsync-log view --layer wire --direction out events.cbor
//
//	# View the data of one subscription
//	appsync-log view --sub-id prices --type data events.cbor
//
//	# Export without keep-alives
//	appsync-log export --format jsonl --exclude-type ka events.cbor
//
//	# Show statistics
//	appsync-log stats events.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jdfoster/appsync-realtime-util/cmd/appsync-log/commands"
	"github.com/jdfoster/appsync-realtime-util/pkg/log"
)

const usage = `appsync-log - AppSync realtime protocol event analyzer

Usage:
  appsync-log <command> [flags] <file.cbor>

Commands:
  view     View events in human-readable format
  export   Export events to JSONL or CSV
  filter   Filter events and write them to a new file
  stats    Show statistics about the event file

Use "appsync-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet creates a command flag set with usage text.
func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "appsync-log %s - %s\n\nUsage:\n  appsync-log %s [flags] <file.cbor>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// addFilterFlags registers the event filter flags on fs.
func addFilterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.SubscriptionID, "sub-id", "", "Filter by subscription ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, client)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, keepalive, state, error)")
	fs.StringVar(&opts.Types, "type", "", "Keep only these message types (comma separated)")
	fs.StringVar(&opts.ExcludeTypes, "exclude-type", "", "Drop these message types (comma separated)")
	return opts
}

// parseArgs parses args and returns the log file path and filter.
func parseArgs(fs *flag.FlagSet, opts *commands.FilterOptions, args []string) (string, log.Filter, error) {
	if err := fs.Parse(args); err != nil {
		return "", log.Filter{}, err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", log.Filter{}, fmt.Errorf("log file path required")
	}
	if opts == nil {
		return fs.Arg(0), log.Filter{}, nil
	}
	filter, err := opts.Build()
	return fs.Arg(0), filter, err
}

func runView(args []string) error {
	fs := newFlagSet("view", "View events in human-readable format")
	opts := addFilterFlags(fs)
	path, filter, err := parseArgs(fs, opts, args)
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "Export events to JSONL or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	opts := addFilterFlags(fs)
	path, filter, err := parseArgs(fs, opts, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output, filter)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "Filter events and write them to a new file")
	output := fs.String("o", "", "Output file (required)")
	opts := addFilterFlags(fs)
	path, filter, err := parseArgs(fs, opts, args)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}
	count, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d events to %s\n", count, *output)
	return nil
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "Show statistics about the event file")
	path, _, err := parseArgs(fs, nil, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
