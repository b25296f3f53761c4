package models

import (
	"time"

	"github.com/google/uuid"
)

// Origin identifies what initiated a request.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginScheduled Origin = "scheduled"
	OriginReminder  Origin = "reminder"
	OriginSystem    Origin = "system"
)

// Request is one unit of work submitted to the execution core. It is created
// at ingress and dropped once the pipeline has fully posted or aborted.
type Request struct {
	ID         string    `json:"id"`
	Origin     Origin    `json:"origin"`
	ChannelID  string    `json:"channel_id"`
	UserID     string    `json:"user_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	SkillName  string    `json:"skill_name,omitempty"`
	Raw        bool      `json:"raw,omitempty"` // sanitiser bypass (--raw suffix)
	ReceivedAt time.Time `json:"received_at"`
}

// NewRequest mints a request with a fresh ID and receive timestamp.
func NewRequest(origin Origin, channelID, text string) *Request {
	return &Request{
		ID:         uuid.NewString(),
		Origin:     origin,
		ChannelID:  channelID,
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}
}

// NewSkillRequest mints a request bound to a named skill rather than free text.
func NewSkillRequest(origin Origin, channelID, skillName string) *Request {
	r := NewRequest(origin, channelID, "")
	r.SkillName = skillName
	return r
}
