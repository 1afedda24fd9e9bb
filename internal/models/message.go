// internal/models/message.go
package models

import (
	"encoding/json"
	"fmt"
)

// Client message types. Anything else is malformed and dropped at the
// transport boundary.
const (
	MsgRegister    = "register"
	MsgJoinMatch   = "join_match"
	MsgUpdateState = "update_state"
	MsgPlayerKill  = "player_kill"
	MsgReady       = "ready"
)

// ClientMessage is the tagged inbound payload. Only the fields relevant
// to Type are populated; the rest stay zero.
type ClientMessage struct {
	Type string `json:"type"`

	// register
	Name     string `json:"name,omitempty"`
	Contact  string `json:"contact,omitempty"`
	StableID string `json:"stable_id,omitempty"`

	// join_match
	MatchType string `json:"match_type,omitempty"`

	// update_state
	State interface{} `json:"state,omitempty"`

	// player_kill
	KillerSessionID string `json:"killer_session_id,omitempty"`
	VictimSessionID string `json:"victim_session_id,omitempty"`
}

// DecodeClientMessage parses raw JSON into a ClientMessage and rejects
// payloads whose type tag is missing or unknown.
func DecodeClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	switch msg.Type {
	case MsgRegister, MsgJoinMatch, MsgUpdateState, MsgPlayerKill, MsgReady:
		return &msg, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}
