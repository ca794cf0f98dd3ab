// Package wire defines the JSON wire format of the AppSync realtime protocol.
//
// Messages travel as JSON text frames over a WebSocket negotiated with the
// graphql-ws sub-protocol. Every message carries a "type" discriminator and
// optionally an "id" (subscription identifier) and a "payload".
//
// # Message Types
//
// Requests are sent by the client:
//   - connection_init: opens the protocol session
//   - start: starts a subscription
//   - stop: stops a subscription
//
// Responses are sent by the server:
//   - connection_ack / connection_error: handshake outcome
//   - ka: keep-alive
//   - start_ack / data / complete: subscription lifecycle
//   - error: failure, targeted at one subscription when it carries an id
//
// # Start Payload
//
// The start payload's "data" field is itself a JSON string holding the
// GraphQL query and variables. Use NewStart to build it and
// StartPayload.Request to recover the original request.
package wire
