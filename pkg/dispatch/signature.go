// Package dispatch verifies inbound Slack events and hands genuine messages
// to the agent collaborator
package dispatch

import (
	"net/http"

	"github.com/slack-go/slack"
)

const (
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"
	HeaderRetryNum  = "X-Slack-Retry-Num"
)

// VerifySignature checks the v0 HMAC-SHA256 signature of a raw request body.
// Stale timestamps and an empty secret never verify
func VerifySignature(body []byte, timestamp, signature, secret string) bool {
	if secret == "" || timestamp == "" || signature == "" {
		return false
	}

	header := http.Header{}
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderSignature, signature)

	verifier, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return false
	}
	if _, err := verifier.Write(body); err != nil {
		return false
	}
	return verifier.Ensure() == nil
}
