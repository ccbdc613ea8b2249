package models

import "encoding/json"

// Broadcast channels. Each carries the full structured collection of its family.
const (
	ChannelBits        = "bits-updated"
	ChannelBitTypes    = "bittypes-updated"
	ChannelCollections = "collections-updated"
)

// Envelope frames a broadcast on transports that multiplex channels over one
// stream (WebSocket).
type Envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}
