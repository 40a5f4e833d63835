package model

import (
	"errors"
	"strings"
	"time"
)

const (
	TypeInteraction = "interaction"
	TypeFeedback    = "feedback"
)

// Record is one entry of a user's interaction log. Interactions and feedback
// share the collection and are told apart by Type.
type Record struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id" bson:"_id"`
	AppID            string    `gorm:"size:128;not null;index:idx_partition_ts,priority:1" json:"-" bson:"appId"`
	UserID           string    `gorm:"size:64;not null;index:idx_partition_ts,priority:2" json:"-" bson:"userId"`
	Type             string    `gorm:"size:16;not null" json:"type" bson:"type"`
	Prompt           string    `gorm:"type:text" json:"prompt,omitempty" bson:"prompt,omitempty"`
	AIResponse       string    `gorm:"type:text" json:"aiResponse,omitempty" bson:"aiResponse,omitempty"`
	Function         string    `gorm:"size:16" json:"function,omitempty" bson:"function,omitempty"`
	ForInteractionID string    `gorm:"size:36;index" json:"forInteractionId,omitempty" bson:"forInteractionId,omitempty"`
	FeedbackValue    *bool     `json:"feedbackValue,omitempty" bson:"feedbackValue,omitempty"`
	Timestamp        time.Time `gorm:"not null;index:idx_partition_ts,priority:3" json:"timestamp" bson:"timestamp"`
}

func (Record) TableName() string {
	return "assistant_interactions"
}

func (r *Record) IsFeedback() bool {
	return r.Type == TypeFeedback
}

// Partition scopes records to an application instance and a user.
type Partition struct {
	AppID  string
	UserID string
}

func (p Partition) Key() string {
	return p.AppID + "/" + p.UserID
}

func (p Partition) Valid() bool {
	return strings.TrimSpace(p.AppID) != "" && strings.TrimSpace(p.UserID) != ""
}

func (r *Record) Partition() Partition {
	return Partition{AppID: r.AppID, UserID: r.UserID}
}

var ErrInvalidRecord = errors.New("invalid record")

// NewInteraction builds an interaction record; id and timestamp are assigned by the store.
func NewInteraction(p Partition, function, prompt, aiResponse string) *Record {
	return &Record{
		AppID:      p.AppID,
		UserID:     p.UserID,
		Type:       TypeInteraction,
		Prompt:     prompt,
		AIResponse: aiResponse,
		Function:   function,
	}
}

// NewFeedback builds a feedback record pointing at an interaction.
func NewFeedback(p Partition, forInteractionID string, helpful bool) *Record {
	value := helpful
	return &Record{
		AppID:            p.AppID,
		UserID:           p.UserID,
		Type:             TypeFeedback,
		ForInteractionID: forInteractionID,
		FeedbackValue:    &value,
	}
}

// Validate checks the shape of a record before it is appended.
func (r *Record) Validate() error {
	if !r.Partition().Valid() {
		return errors.Join(ErrInvalidRecord, errors.New("partition is incomplete"))
	}
	switch r.Type {
	case TypeInteraction:
		if strings.TrimSpace(r.Prompt) == "" {
			return errors.Join(ErrInvalidRecord, errors.New("prompt is empty"))
		}
	case TypeFeedback:
		if r.ForInteractionID == "" || r.FeedbackValue == nil {
			return errors.Join(ErrInvalidRecord, errors.New("feedback needs an interaction id and a value"))
		}
	default:
		return errors.Join(ErrInvalidRecord, errors.New("unknown record type "+r.Type))
	}
	return nil
}
