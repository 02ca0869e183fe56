package dispatch

import (
	"errors"

	"github.com/tidwall/gjson"
)

// Kind is the routing decision for one webhook payload
type Kind int

const (
	KindIgnored Kind = iota
	KindChallenge
	KindMessage
)

// ErrMalformedPayload is returned for bodies that are not JSON objects
var ErrMalformedPayload = errors.New("malformed event payload")

// WebhookEvent holds the fields of an event_callback the dispatcher needs
type WebhookEvent struct {
	TeamID       string
	EnterpriseID string
	APIAppID     string
	User         string
	Channel      string
	TS           string
	ThreadTS     string
	Text         string
	EventType    string
}

// ReplyThread is the thread a reply belongs in
func (e WebhookEvent) ReplyThread() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.TS
}

// Classified is the result of Classify
type Classified struct {
	Kind      Kind
	Challenge string
	Event     WebhookEvent
}

// Classify decides what a verified payload is without decoding it fully
func Classify(body []byte) (*Classified, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedPayload
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, ErrMalformedPayload
	}

	switch root.Get("type").String() {
	case "url_verification":
		return &Classified{Kind: KindChallenge, Challenge: root.Get("challenge").String()}, nil
	case "event_callback":
	default:
		return &Classified{Kind: KindIgnored}, nil
	}

	event := root.Get("event")
	eventType := event.Get("type").String()
	if eventType != "app_mention" && eventType != "message" {
		return &Classified{Kind: KindIgnored}, nil
	}

	// bot posts and edits, joins, deletions and the like
	if event.Get("bot_id").Exists() || event.Get("subtype").Exists() {
		return &Classified{Kind: KindIgnored}, nil
	}

	teamID := root.Get("team_id").String()
	if teamID == "" {
		teamID = event.Get("team").String()
	}
	enterpriseID := root.Get("enterprise_id").String()
	if enterpriseID == "" {
		enterpriseID = root.Get("authorizations.0.enterprise_id").String()
	}

	return &Classified{
		Kind: KindMessage,
		Event: WebhookEvent{
			TeamID:       teamID,
			EnterpriseID: enterpriseID,
			APIAppID:     root.Get("api_app_id").String(),
			User:         event.Get("user").String(),
			Channel:      event.Get("channel").String(),
			TS:           event.Get("ts").String(),
			ThreadTS:     event.Get("thread_ts").String(),
			Text:         event.Get("text").String(),
			EventType:    eventType,
		},
	}, nil
}
