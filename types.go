package community

import (
	"encoding/json"
)

const (
	RoomCommunity string = "community"
)

// client -> server
const (
	EventSession string = "session"
	EventLog     string = "log"
	EventShare   string = "share"
	EventUpvote  string = "upvote"
	EventJoin    string = "join"
	EventLeave   string = "leave"
)

// server -> client
const (
	EventOK         string = "ok"
	EventError      string = "error"
	EventNewAccept  string = "new_accept"
	EventNewDefine  string = "new_define"
	EventStruct     string = "struct"
	EventUtterances string = "utterances"
)

// Event is the frame exchanged over the socket in both directions.
type Event struct {
	Name string          `json:"event" msgpack:"event"`
	Data json.RawMessage `json:"data,omitempty" msgpack:"data"`
}

func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: data}, nil
}

type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

type ShareRequest struct {
	Struct json.RawMessage `json:"struct"`
}

// UpvoteRequest.ID is sent either as a number or as a string.
type UpvoteRequest struct {
	UID string          `json:"uid"`
	ID  json.RawMessage `json:"id"`
}

// LocalID returns the id as text, or "" when it is absent or null.
func (r UpvoteRequest) LocalID() string {
	if len(r.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(r.ID, &n); err == nil {
		return n.String()
	}
	return string(r.ID)
}

type RoomRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Room      string `json:"room"`
}

type OKMessage struct {
	Data string `json:"data"`
}

type ErrorMessage struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}

type NewAcceptMessage struct {
	UID       string          `json:"uid"`
	Query     json.RawMessage `json:"query"`
	Timestamp int64           `json:"timestamp"`
}

type NewDefineMessage struct {
	UID       string          `json:"uid"`
	Defined   json.RawMessage `json:"defined"`
	Timestamp int64           `json:"timestamp"`
}

type UpvoteMessage struct {
	UID   string  `json:"uid"`
	ID    string  `json:"id"`
	Up    string  `json:"up"`
	Score float64 `json:"score"`
}

type StructMessage struct {
	UID     string          `json:"uid"`
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Upvotes []string        `json:"upvotes"`
	Struct  json.RawMessage `json:"struct"`
}

// UtterancesMessage carries each utterance as its stored log line, a JSON
// object encoded as a string.
type UtterancesMessage struct {
	UID        string   `json:"uid"`
	Utterances []string `json:"utterances"`
}
