// Package agentrun invokes the language model agent on behalf of a stored credential
package agentrun

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/utils"
	"github.com/nlpodyssey/openai-agents-go/agents"
)

// DefaultModel is used when MODEL is not configured
const DefaultModel = "gpt-4o"

// ErrEmptyInput is returned when there is nothing to ask the agent
var ErrEmptyInput = errors.New("empty input")

// RunFunc executes one agent turn and returns its final output
type RunFunc func(ctx context.Context, agent *agents.Agent, input string) (string, error)

// Runner builds a provider-specific agent per call and runs it
type Runner struct {
	model      string
	promptsDir string
	run        RunFunc
	now        func() time.Time
}

// NewRunner creates a runner from MODEL and PROMPTS_DIR
func NewRunner(cfg *utils.Config) *Runner {
	return &Runner{
		model:      cfg.GetWithDefault("MODEL", DefaultModel),
		promptsDir: cfg.Get("PROMPTS_DIR"),
		run:        runAgent,
		now:        time.Now,
	}
}

// WithRunFunc replaces the function used to execute the agent
func (r *Runner) WithRunFunc(run RunFunc) *Runner {
	r.run = run
	return r
}

func runAgent(ctx context.Context, agent *agents.Agent, input string) (string, error) {
	result, err := agents.Run(ctx, agent, input)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(result.FinalOutput), nil
}

// Instructions returns the system instructions for an agent credential.
// A file named <provider>.md under PROMPTS_DIR replaces the built-in persona
func (r *Runner) Instructions(agent *credential.AgentCredential) string {
	base := Persona(agent.Provider)
	if r.promptsDir != "" {
		base = utils.LoadPromptWithFallback(filepath.Join(r.promptsDir, string(agent.Provider)+".md"), base)
	}

	builder := NewPromptBuilder(base).
		AddFact("Assistant name", agent.Name).
		AddFact("Integration", string(agent.Provider))
	if email, ok := agent.Data["email"].(string); ok {
		builder.AddFact("Account", email)
	}

	builder.AddContext("Date: " + r.now().Format("Monday, 2006-01-02"))
	return builder.Build()
}

// Invoke answers input using the credential's provider persona
func (r *Runner) Invoke(ctx context.Context, agent *credential.AgentCredential, input string) (string, error) {
	if input == "" {
		return "", ErrEmptyInput
	}

	name := agent.Name
	if name == "" {
		name = credential.DefaultAgentName
	}

	a := agents.New(name).
		WithInstructions(r.Instructions(agent)).
		WithModel(r.model)

	output, err := r.run(ctx, a, input)
	if err != nil {
		return "", fmt.Errorf("agent run failed: %w", err)
	}

	log.Printf("[AGENT]: Agent %s answered a %s query\n", agent.ID, agent.Provider)
	return output, nil
}
