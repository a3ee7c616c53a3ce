package ws

import (
	"bytes"
	"encoding/json"
)

const (
	EventSetup           = "setup"
	EventConnected       = "connected"
	EventJoinChat        = "join chat"
	EventLeaveChat       = "leave chat"
	EventTyping          = "typing"
	EventStopTyping      = "stop typing"
	EventNewMessage      = "new message"
	EventMessageReceived = "message received"
	EventUserOnline      = "user online"
	EventUserOffline     = "user offline"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, data json.RawMessage) []byte {
	b, _ := json.Marshal(Envelope{Event: event, Data: data})
	return b
}

// ref is an id given either as a bare string or as an object with _id.
type ref string

func (r *ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = ref(s)
		return nil
	}
	var obj struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = ref(obj.ID)
	return nil
}

func decodeRef(data json.RawMessage) string {
	var r ref
	if len(data) == 0 || json.Unmarshal(data, &r) != nil {
		return ""
	}
	return string(r)
}

// relayedMessage is the part of a "new message" payload the hub routes on.
type relayedMessage struct {
	Sender ref `json:"sender"`
	Chat   *struct {
		Users []ref `json:"users"`
	} `json:"chat"`
}
