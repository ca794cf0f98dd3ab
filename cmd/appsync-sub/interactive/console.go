// Package interactive provides the interactive command-line interface
// for appsync-sub.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/jdfoster/appsync-realtime-util/pkg/appsync"
)

// ConsumeFunc takes ownership of a new subscription's data.
type ConsumeFunc func(sub *appsync.Subscription)

// Console handles interactive mode for appsync-sub.
type Console struct {
	client  *appsync.Client
	consume ConsumeFunc
	timeout time.Duration
	rl      *readline.Instance
	out     io.Writer
}

// New creates a console reading commands from the terminal.
func New(client *appsync.Client, consume ConsumeFunc, timeout time.Duration) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "appsync> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newConsole(client, consume, timeout, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(client *appsync.Client, consume ConsumeFunc, timeout time.Duration, out io.Writer) *Console {
	return &Console{
		client:  client,
		consume: consume,
		timeout: timeout,
		out:     out,
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop. It returns when the user quits,
// input ends, ctx is cancelled or the client shuts down.
func (c *Console) Run(ctx context.Context) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.client.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			c.Execute(ctx, "quit")
			return
		}

		if !c.Execute(ctx, line) {
			return
		}
	}
}

// Execute runs one command line. It returns false once the console should
// stop reading.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "sub", "subscribe":
		c.cmdSubscribe(ctx, args)

	case "subfile":
		c.cmdSubscribeFile(ctx, args)

	case "stop", "unsub":
		c.cmdStop(ctx, args)

	case "list", "ls":
		c.cmdList()

	case "status":
		c.cmdStatus()

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		c.client.Cancel()
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
AppSync Subscription Commands:
  Subscriptions:
    sub <id|-> <query>       - Start a subscription ('-' generates an id)
    subfile <id|-> <path>    - Start a subscription read from a file
    stop <id>                - Stop a subscription
    list                     - List live subscriptions

  General:
    status                   - Show connection status
    help                     - Show this help
    quit                     - Stop everything and exit`)
}

func (c *Console) cmdSubscribe(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: sub <id|-> <query>")
		return
	}
	c.subscribe(ctx, args[0], strings.Join(args[1:], " "))
}

func (c *Console) cmdSubscribeFile(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: subfile <id|-> <path>")
		return
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Failed to read query: %v\n", err)
		return
	}
	c.subscribe(ctx, args[0], strings.TrimSpace(string(data)))
}

func (c *Console) subscribe(ctx context.Context, id, query string) {
	var opts []appsync.SubscribeOption
	if id != "-" {
		opts = append(opts, appsync.WithID(id))
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	sub, err := c.client.Subscribe(ctx, query, nil, opts...)
	if err != nil {
		fmt.Fprintf(c.out, "Subscribe failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Subscribed: %s\n", sub.ID())
	if c.consume != nil {
		c.consume(sub)
	}
}

func (c *Console) cmdStop(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: stop <id>")
		return
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.client.Unsubscribe(ctx, args[0])
	switch {
	case errors.Is(err, appsync.ErrSubscriptionNotFound):
		fmt.Fprintf(c.out, "No live subscription %q\n", args[0])
	case err != nil:
		fmt.Fprintf(c.out, "Stop failed: %v\n", err)
	default:
		fmt.Fprintf(c.out, "Stopped: %s\n", args[0])
	}
}

func (c *Console) cmdList() {
	ids := c.client.Subscriptions()
	if len(ids) == 0 {
		fmt.Fprintln(c.out, "No live subscriptions")
		return
	}
	fmt.Fprintf(c.out, "Live subscriptions (%d):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(c.out, "  %s\n", id)
	}
}

func (c *Console) cmdStatus() {
	fmt.Fprintln(c.out, "Connection Status:")
	fmt.Fprintf(c.out, "  ID:            %s\n", c.client.ConnectionID())
	fmt.Fprintf(c.out, "  State:         %s\n", c.client.State())
	if ka := c.client.KeepAliveInterval(); ka > 0 {
		fmt.Fprintf(c.out, "  Keep-alive:    %s\n", ka)
	}
	fmt.Fprintf(c.out, "  Subscriptions: %d\n", len(c.client.Subscriptions()))
	if err := c.client.Err(); err != nil {
		fmt.Fprintf(c.out, "  Closed by:     %v\n", err)
	}
}

func (c *Console) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	// Leave the client's own timeout room to report first.
	return context.WithTimeout(ctx, 2*c.timeout)
}
