package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/slack-go/slack"
)

// DefaultReplyTries includes the first attempt
const DefaultReplyTries = 3

// SlackReplier posts replies with chat.postMessage, retrying transient failures
type SlackReplier struct {
	client          *http.Client
	apiURL          string
	maxTries        uint
	initialInterval time.Duration
}

// NewSlackReplier creates a replier. apiURL may be empty for the public Slack API
func NewSlackReplier(client *http.Client, apiURL string) *SlackReplier {
	return &SlackReplier{
		client:          client,
		apiURL:          apiURL,
		maxTries:        DefaultReplyTries,
		initialInterval: 500 * time.Millisecond,
	}
}

// WithRetry overrides the attempt count and first backoff interval
func (r *SlackReplier) WithRetry(maxTries uint, initialInterval time.Duration) *SlackReplier {
	r.maxTries = maxTries
	r.initialInterval = initialInterval
	return r
}

func (r *SlackReplier) api(bot *credential.BotCredential) *slack.Client {
	opts := []slack.Option{slack.OptionHTTPClient(r.client)}
	if r.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(r.apiURL))
	}
	return slack.New(bot.AccessToken, opts...)
}

// Reply posts text into the thread as the bot and returns the message ts
func (r *SlackReplier) Reply(ctx context.Context, bot *credential.BotCredential, channel, threadTS, text string) (string, error) {
	api := r.api(bot)

	msgOpts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		msgOpts = append(msgOpts, slack.MsgOptionTS(threadTS))
	}

	ts, err := r.retry(ctx, func() (string, error) {
		_, ts, err := api.PostMessageContext(ctx, channel, msgOpts...)
		return ts, err
	})
	if err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}
	return ts, nil
}

// Update replaces the text of the bot's message at ts
func (r *SlackReplier) Update(ctx context.Context, bot *credential.BotCredential, channel, ts, text string) error {
	api := r.api(bot)

	_, err := r.retry(ctx, func() (string, error) {
		_, ts, _, err := api.UpdateMessageContext(ctx, channel, ts, slack.MsgOptionText(text, false))
		return ts, err
	})
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

// retry runs call with exponential backoff. Rate limits wait for Retry-After
func (r *SlackReplier) retry(ctx context.Context, call func() (string, error)) (string, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.initialInterval
	expBackoff.Reset()

	operation := func() (string, error) {
		ts, err := call()
		if err == nil {
			return ts, nil
		}

		var rateLimited *slack.RateLimitedError
		if errors.As(err, &rateLimited) {
			return "", backoff.RetryAfter(int(rateLimited.RetryAfter.Seconds()))
		}

		// ok=false answers such as channel_not_found will not change on retry
		var apiErr slack.SlackErrorResponse
		if errors.As(err, &apiErr) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(r.maxTries),
	)
}
