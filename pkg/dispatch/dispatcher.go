package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ethanbaker/agentlink/pkg/credential"
)

// DefaultJobTimeout bounds one background invocation including the reply
const DefaultJobTimeout = 2 * time.Minute

const (
	placeholderMessage = ":mag: Searching..."
	reconnectMessage   = "I can't reach your account right now. Please reconnect the integration and try again."
	failureMessage     = "Sorry, something went wrong while answering that. Please try again."
)

// ResultKind is what Handle did with a payload
type ResultKind int

const (
	ResultIgnored ResultKind = iota
	ResultChallenge
	ResultNotInstalled
	ResultDispatched
)

type Result struct {
	Kind      ResultKind
	Challenge string
}

// Invoker runs the agent collaborator for a credential and query text
type Invoker interface {
	Invoke(ctx context.Context, agent *credential.AgentCredential, input string) (string, error)
}

// Replier posts and edits the bot's messages in a channel thread
type Replier interface {
	Reply(ctx context.Context, bot *credential.BotCredential, channel, threadTS, text string) (string, error)
	Update(ctx context.Context, bot *credential.BotCredential, channel, ts, text string) error
}

// Credentials resolves bots and agents for events
type Credentials interface {
	FindBotByWorkspace(ctx context.Context, teamID, enterpriseID, userID string) (*credential.BotCredential, error)
	GetAgent(ctx context.Context, id string) (*credential.AgentCredential, error)
	RefreshIfExpired(ctx context.Context, agent *credential.AgentCredential) (*credential.AgentCredential, error)
}

// Dispatcher routes verified events and runs agent invocations in the background
type Dispatcher struct {
	credentials Credentials
	invoker     Invoker
	replier     Replier
	jobTimeout  time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// NewDispatcher creates a dispatcher. Jobs run with jobTimeout, or DefaultJobTimeout when zero
func NewDispatcher(credentials Credentials, invoker Invoker, replier Replier, jobTimeout time.Duration) *Dispatcher {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		credentials: credentials,
		invoker:     invoker,
		replier:     replier,
		jobTimeout:  jobTimeout,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Handle classifies an already verified body. Messages are handed to a
// background job and Handle returns without waiting for it. retry marks a
// redelivery, which is never dispatched a second time
func (d *Dispatcher) Handle(ctx context.Context, body []byte, retry bool) (*Result, error) {
	classified, err := Classify(body)
	if err != nil {
		return nil, err
	}

	switch classified.Kind {
	case KindChallenge:
		return &Result{Kind: ResultChallenge, Challenge: classified.Challenge}, nil
	case KindMessage:
	default:
		return &Result{Kind: ResultIgnored}, nil
	}

	if retry {
		log.Printf("[DISPATCH]: Ignoring redelivered event in team %s\n", classified.Event.TeamID)
		return &Result{Kind: ResultIgnored}, nil
	}

	event := classified.Event
	bot, err := d.credentials.FindBotByWorkspace(ctx, event.TeamID, event.EnterpriseID, event.User)
	if err != nil {
		if errors.Is(err, credential.ErrNotInstalled) {
			return &Result{Kind: ResultNotInstalled}, nil
		}
		return nil, fmt.Errorf("failed to resolve bot: %w", err)
	}

	if event.User == "" || event.User == bot.BotUserID {
		return &Result{Kind: ResultIgnored}, nil
	}

	// a mention arrives as both message and app_mention, answer the latter only
	if event.EventType == "message" && strings.Contains(event.Text, "<@"+bot.BotUserID+">") {
		return &Result{Kind: ResultIgnored}, nil
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return &Result{Kind: ResultIgnored}, nil
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		jobCtx, cancel := context.WithTimeout(d.baseCtx, d.jobTimeout)
		defer cancel()
		d.run(jobCtx, bot, event)
	}()

	return &Result{Kind: ResultDispatched}, nil
}

func (d *Dispatcher) run(ctx context.Context, bot *credential.BotCredential, event WebhookEvent) {
	// the placeholder is edited into the answer, or a new reply is posted when it failed
	placeholderTS, err := d.replier.Reply(ctx, bot, event.Channel, event.ReplyThread(), placeholderMessage)
	if err != nil {
		log.Printf("[DISPATCH]: Failed to post placeholder in %s: %v\n", event.Channel, err)
		placeholderTS = ""
	}

	reply := func(text string) {
		message := fmt.Sprintf("<@%s> %s", event.User, text)
		if placeholderTS != "" {
			err := d.replier.Update(ctx, bot, event.Channel, placeholderTS, message)
			if err == nil {
				return
			}
			log.Printf("[DISPATCH]: Failed to update placeholder in %s: %v\n", event.Channel, err)
		}
		if _, err := d.replier.Reply(ctx, bot, event.Channel, event.ReplyThread(), message); err != nil {
			log.Printf("[DISPATCH]: Failed to reply in %s: %v\n", event.Channel, err)
		}
	}

	agent, err := d.credentials.GetAgent(ctx, bot.AgentID)
	if err != nil {
		log.Printf("[DISPATCH]: Bot %s has no usable agent: %v\n", bot.ID, err)
		reply(reconnectMessage)
		return
	}

	agent, err = d.credentials.RefreshIfExpired(ctx, agent)
	if err != nil {
		log.Printf("[DISPATCH]: %v\n", err)
		reply(reconnectMessage)
		return
	}

	output, err := d.invoker.Invoke(ctx, agent, stripMention(event.Text, bot.BotUserID))
	if err != nil {
		log.Printf("[DISPATCH]: Agent %s failed: %v\n", agent.ID, err)
		reply(failureMessage)
		return
	}

	reply(output)
}

// stripMention removes the bot's own mention from the query text
func stripMention(text, botUserID string) string {
	if botUserID != "" {
		text = strings.ReplaceAll(text, "<@"+botUserID+">", "")
	}
	return strings.TrimSpace(text)
}

// Close stops accepting work and waits for in-flight jobs
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
}
