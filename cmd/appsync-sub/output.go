package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jdfoster/appsync-realtime-util/pkg/appsync"
	"github.com/jdfoster/appsync-realtime-util/pkg/log"
)

// backlogWarnEvery is the queue depth step at which a slow consumer is
// reported.
const backlogWarnEvery = 100

// dataPrinter drains subscriptions and writes each data message as a JSON
// line.
type dataPrinter struct {
	out    log.Logger
	connID string
	logger *slog.Logger
	wg     sync.WaitGroup
}

func newDataPrinter(out log.Logger, connID string, logger *slog.Logger) *dataPrinter {
	return &dataPrinter{out: out, connID: connID, logger: logger}
}

// consume drains sub on its own goroutine until the subscription ends.
func (p *dataPrinter) consume(sub *appsync.Subscription) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logger.Info("Starting subscription", "id", sub.ID())

		for msg, err := range sub.All(context.Background()) {
			if err != nil {
				p.logger.Warn("Subscription error", "id", sub.ID(), "error", err)
				break
			}
			p.out.Log(log.Event{
				Timestamp:      time.Now(),
				ConnectionID:   p.connID,
				Direction:      log.DirectionIn,
				Layer:          log.LayerClient,
				Category:       log.CategoryMessage,
				SubscriptionID: sub.ID(),
				Message:        log.NewMessageEvent(msg),
			})
			p.checkBacklog(sub)
		}
		p.logger.Info("Ended subscription", "id", sub.ID())
	}()
}

// checkBacklog warns when the messages queued behind the printer reach a
// multiple of backlogWarnEvery.
func (p *dataPrinter) checkBacklog(sub *appsync.Subscription) {
	if n := sub.Buffered(); n > 0 && n%backlogWarnEvery == 0 {
		p.logger.Warn("Subscription backlog growing", "id", sub.ID(), "buffered", n)
	}
}

// wait blocks until every consumer has finished.
func (p *dataPrinter) wait() {
	p.wg.Wait()
}

// switchWriter is an io.Writer whose destination can be replaced while in
// use.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSwitchWriter(w io.Writer) *switchWriter {
	return &switchWriter{w: w}
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Set replaces the destination.
func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}
