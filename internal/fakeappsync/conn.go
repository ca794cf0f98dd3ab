package fakeappsync

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

type conn struct {
	server *Server
	ws     *websocket.Conn
	apiKey string

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]struct{}

	quit      chan struct{}
	closeOnce sync.Once
}

func (c *conn) run() {
	defer c.close(websocket.CloseNormalClosure)

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		msg, err := wire.Decode(data)
		if err != nil {
			continue
		}
		c.server.record(msg)
		c.handle(msg)
	}
}

func (c *conn) handle(msg *wire.Message) {
	cfg := c.server.config

	switch msg.Type {
	case wire.TypeConnectionInit:
		if cfg.APIKey != "" && c.apiKey != cfg.APIKey {
			_ = c.send(wire.TypeConnectionError, "", errorPayload("UnauthorizedException", "You are not authorized to make this call."))
			return
		}
		_ = c.send(wire.TypeConnectionAck, "", map[string]int64{
			"connectionTimeoutMs": cfg.ConnectionTimeout.Milliseconds(),
		})
		if cfg.KeepAliveEvery > 0 {
			go c.keepAlive(cfg.KeepAliveEvery)
		}

	case wire.TypeStart:
		start, err := msg.Start()
		if err != nil {
			_ = c.send(wire.TypeError, msg.ID, errorPayload("BadRequest", err.Error()))
			return
		}
		req, err := start.Request()
		if err != nil || req.Query == "" {
			_ = c.send(wire.TypeError, msg.ID, errorPayload("BadRequest", "query is required"))
			return
		}
		if cfg.APIKey != "" && start.Extensions.Authorization["x-api-key"] != cfg.APIKey {
			_ = c.send(wire.TypeError, msg.ID, errorPayload("UnauthorizedException", "invalid api key"))
			return
		}
		c.mu.Lock()
		c.subs[msg.ID] = struct{}{}
		c.mu.Unlock()
		_ = c.send(wire.TypeStartAck, msg.ID, nil)

	case wire.TypeStop:
		c.mu.Lock()
		delete(c.subs, msg.ID)
		c.mu.Unlock()
		if !cfg.SilentStop {
			_ = c.send(wire.TypeComplete, msg.ID, nil)
		}
	}
}

func (c *conn) keepAlive(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.send(wire.TypeKeepAlive, "", nil); err != nil {
				return
			}
		case <-c.quit:
			return
		}
	}
}

func (c *conn) send(typ wire.MessageType, id string, payload any) error {
	msg := &wire.Message{Type: typ, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = raw
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) subscriptionIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *conn) close(code int) {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

func errorPayload(errorType, message string) map[string]any {
	return map[string]any{
		"errors": []map[string]string{{"errorType": errorType, "message": message}},
	}
}
