// Package appsync implements a client for the AWS AppSync realtime
// subscription protocol (graphql-ws over one WebSocket).
//
// A Client connects once, performs the connection_init handshake, and
// multiplexes any number of subscriptions over the socket. Every message
// is published on an internal mediator keyed by message type; correlated
// exchanges (handshake, start, stop) register short-lived listeners there
// and wait for the matching response, a targeted error, a timeout, or the
// end of the connection.
//
// Cancellation is one-way. Cancelling the parent context, calling Cancel,
// a keep-alive timeout, or a transport close all trigger the same teardown:
// best-effort stop of every live subscription, closing the socket, and
// ending every subscription's sequence. Done is closed when teardown has
// completed.
//
//	client, err := appsync.New(ctx, appsync.Config{
//		Endpoint:   "https://example.appsync-api.eu-west-1.amazonaws.com/graphql",
//		Credential: auth.APIKey{Key: key},
//	})
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	sub, err := client.Subscribe(ctx, query, nil)
//	if err != nil {
//		return err
//	}
//	for msg, err := range sub.All(ctx) {
//		...
//	}
package appsync
