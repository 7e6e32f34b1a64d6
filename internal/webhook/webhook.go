// Package webhook defines the inbound webhook wire format and parsing.
package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Webhook is one inbound source-control event, parsed from the queue message.
// Immutable after Parse; lives only for the duration of one delivery.
type Webhook struct {
	WebhookType string // source-control provider, e.g. "github"
	Event       string // provider event name, e.g. "push"
	GitURL      string // repository clone URL used for project lookup
	UUID        string // correlation id, generated if the message lacks one

	// Payload is the event body decoded into its typed variant.
	Payload Payload

	// Raw is the original message bytes, kept so a retry republish can
	// carry the content unchanged.
	Raw []byte
}

// FullEvent returns the "webhooktype:event" routing tag, extended with the
// payload discriminator where one exists.
func (w *Webhook) FullEvent() string {
	base := w.WebhookType + ":" + w.Event
	switch p := w.Payload.(type) {
	case PullRequestPayload:
		return base + ":" + p.Action
	case DeletePayload:
		return base + ":" + p.RefType
	default:
		return base
	}
}

// Payload is the per-event body variant. Exactly one concrete type is chosen
// at parse time based on (webhooktype, event); handlers and the router match
// on the type instead of probing loose fields.
type Payload interface {
	payload()
}

// PullRequestPayload is the body of a github pull_request event.
type PullRequestPayload struct {
	Action string          `json:"action"`
	Number int             `json:"number"`
	Body   json.RawMessage `json:"-"`
}

// PushPayload is the body of a github push event. Deleted marks a branch
// deletion delivered through the push event.
type PushPayload struct {
	Ref     string          `json:"ref"`
	After   string          `json:"after"`
	Deleted bool            `json:"deleted"`
	Body    json.RawMessage `json:"-"`
}

// DeletePayload is the body of a github delete event.
type DeletePayload struct {
	RefType string          `json:"ref_type"`
	Ref     string          `json:"ref"`
	Body    json.RawMessage `json:"-"`
}

// RawPayload holds the body of any event without a typed variant.
type RawPayload struct {
	Body json.RawMessage
}

func (PullRequestPayload) payload() {}
func (PushPayload) payload()        {}
func (DeletePayload) payload()      {}
func (RawPayload) payload()         {}

// wireMessage matches the JSON body the webhook producer publishes.
type wireMessage struct {
	WebhookType string          `json:"webhooktype"`
	Event       string          `json:"event"`
	GitURL      string          `json:"giturl"`
	UUID        string          `json:"uuid"`
	Body        json.RawMessage `json:"body"`
}

// Parse decodes one queue message body into a Webhook. The payload variant
// is selected by (webhooktype, event); unknown combinations keep the raw
// body so the message can still be routed (and logged as unhandled).
func Parse(data []byte) (*Webhook, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding webhook message: %w", err)
	}

	if msg.WebhookType == "" || msg.Event == "" {
		return nil, fmt.Errorf("webhook message missing webhooktype or event")
	}

	w := &Webhook{
		WebhookType: msg.WebhookType,
		Event:       msg.Event,
		GitURL:      msg.GitURL,
		UUID:        msg.UUID,
		Raw:         data,
	}
	if w.UUID == "" {
		w.UUID = uuid.New().String()
	}

	payload, err := decodePayload(msg.WebhookType, msg.Event, msg.Body)
	if err != nil {
		return nil, err
	}
	w.Payload = payload

	return w, nil
}

func decodePayload(webhookType, event string, body json.RawMessage) (Payload, error) {
	switch webhookType + ":" + event {
	case "github:pull_request":
		var p PullRequestPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decoding pull_request payload: %w", err)
		}
		p.Body = body
		return p, nil

	case "github:push":
		var p PushPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decoding push payload: %w", err)
		}
		p.Body = body
		return p, nil

	case "github:delete":
		var p DeletePayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decoding delete payload: %w", err)
		}
		p.Body = body
		return p, nil

	default:
		return RawPayload{Body: body}, nil
	}
}
