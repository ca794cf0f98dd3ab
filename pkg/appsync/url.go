package appsync

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Subprotocol is the WebSocket sub-protocol of the realtime endpoint.
const Subprotocol = "graphql-ws"

const (
	apiHostSegment      = "appsync-api"
	realtimeHostSegment = "appsync-realtime-api"
)

// RealtimeURL derives the realtime connection URL from a GraphQL endpoint.
// The data-API host segment becomes the realtime one, https becomes wss
// (anything else ws), and the base64 JSON query parameters "header" and
// "payload" carry the authorization headers and an empty object.
func RealtimeURL(endpoint *url.URL, headers map[string]string) (*url.URL, error) {
	u := *endpoint
	u.Host = strings.Replace(u.Host, apiHostSegment, realtimeHostSegment, 1)
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("encode header parameter: %w", err)
	}

	q := u.Query()
	q.Set("header", base64.StdEncoding.EncodeToString(header))
	q.Set("payload", base64.StdEncoding.EncodeToString([]byte("{}")))
	u.RawQuery = q.Encode()
	return &u, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint: %v", ErrInvalidConfig, err)
	}
	switch u.Scheme {
	case "https", "http", "wss", "ws":
	default:
		return nil, fmt.Errorf("%w: endpoint scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint has no host", ErrInvalidConfig)
	}
	return u, nil
}
