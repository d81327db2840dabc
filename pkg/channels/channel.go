// Package channels routes inbound text from external messaging platforms
// into the turn engine and carries the assistant's bubbles back out.
package channels

import "context"

// Channel is one external messaging front. Start is expected to return once
// the channel is connected (or has begun connecting) and to keep receiving
// in the background until Stop.
type Channel interface {
	// ID is the stable channel name used in channel links ("telegram",
	// "whatsapp", "web").
	ID() string
	// Start connects and begins receiving. The context bounds the startup
	// handshake, not the lifetime of the channel.
	Start(ctx context.Context) error
	// Stop disconnects and releases resources. Safe to call more than once.
	Stop() error
	// Status reports the current connection state.
	Status() Status
}

// Status is the externally visible state of one channel.
type Status struct {
	Channel   string `json:"channel"`
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
	// QRCode carries the pairing code while a channel waits for the user
	// to authenticate (WhatsApp login handshake).
	QRCode string `json:"qrCode,omitempty"`
	Detail string `json:"detail,omitempty"`
}
