package types

import (
	"encoding/json"
)

// Frame type tags for proxy -> downstream messages.
const (
	MessageTypeRoomJoined        = "room_joined"
	MessageTypeYahooConnected    = "yahoo_connected"
	MessageTypeYahooMessage      = "yahoo_message"
	MessageTypeYahooDisconnected = "yahoo_disconnected"
	MessageTypeYahooError        = "yahoo_error"
	MessageTypeYahooMaxReconnect = "yahoo_max_reconnect_reached"
)

// Frame type tags for downstream -> proxy control messages.
const (
	CommandTypeYahooMessage   = "yahoo_message"
	CommandTypeYahooReconnect = "yahoo_reconnect"
)

// RoomJoined is sent to a session immediately after it is added to a room.
// YahooConnected is always false here: the join races the upstream dial and
// the session learns about the open via a separate yahoo_connected frame.
type RoomJoined struct {
	Type           string `json:"type"`
	RoomID         string `json:"roomId"`
	YahooConnected bool   `json:"yahooConnected"`
	ClientsCount   int    `json:"clientsCount"`
	DraftPosition  int    `json:"draftPosition"`
}

// YahooConnected announces a successful upstream open to every session.
type YahooConnected struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// YahooMessage carries one upstream text frame verbatim in Data.
type YahooMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// YahooDisconnected announces an upstream close with its code and reason: the
// peer's for a peer close, the proxy's own for a local close, and 0 with
// "dial failed" when the dial did not succeed.
type YahooDisconnected struct {
	Type   string `json:"type"`
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// YahooError surfaces an upstream failure meaningful to clients.
type YahooError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ClientCommand is the tagged envelope for downstream control messages.
// Data stays raw until the tag selects an interpretation.
type ClientCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ReconnectRequest is the payload of a yahoo_reconnect command.
type ReconnectRequest struct {
	LeagueID      string `json:"leagueId"`
	DraftPosition int    `json:"draftPosition"`
}

// DecodeClientCommand parses a downstream frame as a tagged control message.
// A frame that does not parse as a JSON object is not a command; callers fall
// back to forwarding the raw bytes upstream.
func DecodeClientCommand(data []byte) (*ClientCommand, error) {
	// Decoding into a pointer leaves it nil for the literal null, which is
	// valid JSON but not an object.
	var cmd *ClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil || cmd == nil {
		return nil, ErrNotACommand
	}
	return cmd, nil
}

// ReconnectData decodes the yahoo_reconnect payload.
func (c *ClientCommand) ReconnectData() (*ReconnectRequest, error) {
	if c.Type != CommandTypeYahooReconnect {
		return nil, ErrUnknownCommandType
	}
	var req ReconnectRequest
	if err := json.Unmarshal(c.Data, &req); err != nil {
		return nil, ErrInvalidCommandData
	}
	return &req, nil
}

// MessageData decodes the yahoo_message payload (an upstream text frame).
func (c *ClientCommand) MessageData() (string, error) {
	if c.Type != CommandTypeYahooMessage {
		return "", ErrUnknownCommandType
	}
	var data string
	if err := json.Unmarshal(c.Data, &data); err != nil {
		return "", ErrInvalidCommandData
	}
	return data, nil
}
