package streamevent

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Name identifies an event type on the wire (SSE "event:" line and the JSON "type" tag).
type Name string

const (
	ThreadNew         Name = "thread.new"
	ThreadActivity    Name = "thread.activity"
	MessageDelta      Name = "message.delta"
	MessageDone       Name = "message.done"
	PresenceUpdate    Name = "presence.update"
	TypingUpdate      Name = "typing.update"
	UnreadUpdate      Name = "unread.update"
	MembershipChanged Name = "membership.changed"
	Error             Name = "error"
	StreamError       Name = "stream.error"
)

// Ephemeral events are fanned out but never recorded.
func (n Name) Ephemeral() bool {
	return n == TypingUpdate
}

const eventIDPrefix = "evt_"

// FormatEventID renders the SSE id for a per-user sequence.
func FormatEventID(sequence int64) string {
	return eventIDPrefix + strconv.FormatInt(sequence, 10)
}

// ParseEventID extracts the sequence from an id produced by FormatEventID.
func ParseEventID(id string) (int64, bool) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(id), eventIDPrefix)
	if !ok || raw == "" {
		return 0, false
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// Record is one entry of a user's event log. Ephemeral deliveries carry Sequence 0 and no EventID.
type Record struct {
	UserID         string
	Sequence       int64
	EventID        string
	Name           Name
	ConversationID string
	Payload        json.RawMessage
	RecordedAt     time.Time
}

// Persisted reports whether the record has a replayable id.
func (r Record) Persisted() bool {
	return r.EventID != ""
}

type envelope struct {
	Type    Name            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Data returns the JSON body written on the SSE "data:" line.
func (r Record) Data() ([]byte, error) {
	payload := r.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal(envelope{Type: r.Name, Payload: payload})
}

// Draft is an event handed to the hub for publishing.
type Draft struct {
	Name    Name
	Payload any
	// TargetUserIDs restricts delivery; empty means every member of the conversation.
	TargetUserIDs []string
	// Ephemeral skips persistence. Typing events are always ephemeral.
	Ephemeral bool
}

func (d Draft) IsEphemeral() bool {
	return d.Ephemeral || d.Name.Ephemeral()
}
