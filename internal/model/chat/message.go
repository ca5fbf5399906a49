package chat

import (
	"fmt"
	"time"
)

// Sender identifies which side of a thread produced a message.
type Sender string

const (
	SenderUser    Sender = "user"
	SenderPartner Sender = "partner"
)

// Kind distinguishes plain text turns from recorded audio turns.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

// DeliveryState tracks optimistic sends. It is UI-facing state only and is
// never persisted upstream.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// AudioAttachment carries the playable capture reference for an audio-kind
// message together with its best-effort transcript.
type AudioAttachment struct {
	Ref        string `json:"ref"`
	Transcript string `json:"transcript"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

// Message is a single turn within one partner's thread.
type Message struct {
	ID        string           `json:"id"`
	PartnerID string           `json:"partnerId"`
	Kind      Kind             `json:"kind"`
	Sender    Sender           `json:"sender"`
	Body      string           `json:"body"`
	Audio     *AudioAttachment `json:"audio,omitempty"`
	Delivery  DeliveryState    `json:"delivery,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NewPendingText builds the optimistic local echo for a text send. The id is
// time-derived so it cannot collide with server-issued uuids.
func NewPendingText(partnerID, body string) Message {
	return Message{
		ID:        LocalID(),
		PartnerID: partnerID,
		Kind:      KindText,
		Sender:    SenderUser,
		Body:      body,
		Delivery:  DeliveryPending,
		CreatedAt: time.Now().UTC(),
	}
}

// NewPendingAudio builds the optimistic local echo for a confirmed recording.
func NewPendingAudio(partnerID, transcript string, audio AudioAttachment) Message {
	return Message{
		ID:        LocalID(),
		PartnerID: partnerID,
		Kind:      KindAudio,
		Sender:    SenderUser,
		Body:      transcript,
		Audio:     &audio,
		Delivery:  DeliveryPending,
		CreatedAt: time.Now().UTC(),
	}
}

// LocalID returns a locally-unique token for optimistic entries.
func LocalID() string {
	return fmt.Sprintf("local-%d", time.Now().UnixNano())
}

// IsPending reports whether the message still awaits reconciliation.
func (m Message) IsPending() bool {
	return m.Delivery == DeliveryPending
}
