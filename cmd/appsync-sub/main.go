// Command appsync-sub subscribes to an AWS AppSync GraphQL API over its
// realtime WebSocket endpoint and prints what it receives.
//
// Usage:
//
//	appsync-sub [flags]
//
// Flags:
//
//	-config string       Configuration file path (YAML, or TOML by .toml extension)
//	-endpoint string     GraphQL endpoint URL (or GRAPH_ENDPOINT_URL)
//	-api-key string      API key (or GRAPH_API_KEY)
//	-query string        Subscription query to start
//	-query-file string   File holding a subscription query to start
//	-variables string    JSON object of query variables
//	-id string           Subscription id (default: random UUID)
//	-timeout duration    Timeout for each protocol exchange (default 15s)
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-events-file string  Record a protocol trace (CBOR) to this file
//	-interactive         Enable interactive command mode
//
// Requests and non-data responses are written to stdout as JSON lines, as
// is every data message. Diagnostics go to stderr.
//
// The first SIGINT stops every subscription and closes the connection; a
// second one exits immediately.
//
// Examples:
//
//	# Subscribe using the environment
//	GRAPH_ENDPOINT_URL=https://xxx.appsync-api.eu-west-1.amazonaws.com/graphql \
//	GRAPH_API_KEY=da2-... \
//	appsync-sub -query 'subscription { onNewMessage { id body } }'
//
//	# Subscriptions from a config file, with a trace for appsync-log
//	appsync-sub -config appsync.yaml -events-file trace.cbor
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jdfoster/appsync-realtime-util/cmd/appsync-sub/interactive"
	"github.com/jdfoster/appsync-realtime-util/pkg/appsync"
	"github.com/jdfoster/appsync-realtime-util/pkg/config"
	"github.com/jdfoster/appsync-realtime-util/pkg/log"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// Flags holds the command line.
type Flags struct {
	ConfigFile  string
	Endpoint    string
	APIKey      string
	Query       string
	QueryFile   string
	Variables   string
	ID          string
	Timeout     time.Duration
	LogLevel    string
	EventsFile  string
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML, or TOML by .toml extension)")
	flag.StringVar(&flags.Endpoint, "endpoint", "", "GraphQL endpoint URL (or "+config.EnvEndpoint+")")
	flag.StringVar(&flags.APIKey, "api-key", "", "API key (or "+config.EnvAPIKey+")")
	flag.StringVar(&flags.Query, "query", "", "Subscription query to start")
	flag.StringVar(&flags.QueryFile, "query-file", "", "File holding a subscription query to start")
	flag.StringVar(&flags.Variables, "variables", "", "JSON object of query variables")
	flag.StringVar(&flags.ID, "id", "", "Subscription id (default: random UUID)")
	flag.DurationVar(&flags.Timeout, "timeout", config.DefaultTimeout, "Timeout for each protocol exchange")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.EventsFile, "events-file", "", "Record a protocol trace (CBOR) to this file")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags, setFlags(), os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	os.Exit(run(cfg))
}

// setFlags returns the names of the flags given on the command line.
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig merges the config file, the environment and the flags, in
// increasing precedence.
func loadConfig(f Flags, set map[string]bool, getenv func(string) string) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(getenv)

	if set["endpoint"] {
		cfg.Endpoint = f.Endpoint
	}
	if set["api-key"] {
		cfg.Auth.APIKey = f.APIKey
	}
	if set["timeout"] {
		cfg.Timeout = config.Duration(f.Timeout)
	}
	if set["log-level"] {
		cfg.LogLevel = f.LogLevel
	}
	if set["events-file"] {
		cfg.EventsFile = f.EventsFile
	}

	if f.Query != "" || f.QueryFile != "" {
		sub := config.Subscription{ID: f.ID, Query: f.Query, QueryFile: f.QueryFile}
		if f.Variables != "" {
			if err := json.Unmarshal([]byte(f.Variables), &sub.Variables); err != nil {
				return nil, fmt.Errorf("invalid -variables: %w", err)
			}
		}
		cfg.Subscriptions = append(cfg.Subscriptions, sub)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Subscriptions) == 0 && !f.Interactive {
		return nil, fmt.Errorf("nothing to subscribe to: give -query, -query-file, a config file, or -interactive")
	}
	return cfg, nil
}

func run(cfg *config.Config) int {
	level, _ := config.ParseLevel(cfg.LogLevel)
	stderrW := newSwitchWriter(os.Stderr)
	stdoutW := newSwitchWriter(os.Stdout)
	logger := slog.New(log.NewConsoleHandler(stderrW, level))

	stdout := log.NewJSONLogger(stdoutW)
	protocol := []log.Logger{
		log.NewFilteredLogger(stdout, consoleFilter()),
	}
	if cfg.EventsFile != "" {
		fl, err := log.NewFileLogger(cfg.EventsFile)
		if err != nil {
			logger.Error("Failed to open events file", "error", err)
			return 1
		}
		defer func() {
			if err := fl.Close(); err != nil {
				logger.Warn("Failed to close events file", "error", err)
			}
			if n := fl.Dropped(); n > 0 {
				logger.Warn("Events dropped", "count", n)
			}
		}()
		protocol = append(protocol, fl)
		logger.Info("Recording protocol events", "path", fl.Path())
	}

	cred, err := cfg.Credential()
	if err != nil {
		logger.Error("Invalid credential", "error", err)
		return 1
	}

	client, err := appsync.New(context.Background(), appsync.Config{
		Endpoint:       cfg.Endpoint,
		Credential:     cred,
		Timeout:        time.Duration(cfg.Timeout),
		Logger:         logger,
		ProtocolLogger: log.NewMultiLogger(protocol...),
	})
	if err != nil {
		logger.Error("Failed to create client", "error", err)
		return 1
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	printer := newDataPrinter(stdout, client.ConnectionID(), logger)
	exit := make(chan int, 1)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go handleSignals(sigCh, client, logger, exit)

	if err := client.Connect(ctx); err != nil {
		logger.Error("Failed to connect", "error", err)
		client.Cancel()
		<-client.Done()
		return 1
	}

	for _, s := range cfg.Subscriptions {
		if err := startSubscription(ctx, client, s, printer); err != nil {
			logger.Error("Failed to subscribe", "id", s.ID, "error", err)
		}
	}

	if flags.Interactive {
		console, err := interactive.New(client, printer.consume, time.Duration(cfg.Timeout))
		if err != nil {
			logger.Error("Failed to create interactive console", "error", err)
			client.Cancel()
		} else {
			// Route output through readline so the prompt survives.
			stderrW.Set(console.Stderr())
			stdoutW.Set(console.Stdout())
			go console.Run(ctx)
		}
	}

	select {
	case code := <-exit:
		return code
	case <-client.Done():
	}

	printer.wait()
	if err := client.Err(); err != nil && !errors.Is(err, appsync.ErrClientClosed) {
		logger.Error("Connection ended", "error", err)
		return 1
	}
	return 0
}

// consoleFilter keeps protocol messages on stdout; data is printed by the
// subscription consumers.
func consoleFilter() log.Filter {
	layer := log.LayerWire
	return log.Filter{
		Layer:               &layer,
		ExcludeMessageTypes: []wire.MessageType{wire.TypeData},
	}
}

func startSubscription(ctx context.Context, client *appsync.Client, s config.Subscription, printer *dataPrinter) error {
	query, err := s.QueryText()
	if err != nil {
		return err
	}
	var opts []appsync.SubscribeOption
	if s.ID != "" {
		opts = append(opts, appsync.WithID(s.ID))
	}
	sub, err := client.Subscribe(ctx, query, s.Variables, opts...)
	if err != nil {
		return err
	}
	printer.consume(sub)
	return nil
}
