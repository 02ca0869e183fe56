package agentrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/provider"
	"github.com/ethanbaker/agentlink/pkg/utils"
	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(cfg map[string]string) *Runner {
	r := NewRunner(utils.NewConfig(cfg))
	r.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return r
}

func TestInvoke(t *testing.T) {
	var gotName, gotInput string
	r := newTestRunner(nil).WithRunFunc(func(_ context.Context, a *agents.Agent, input string) (string, error) {
		gotName = a.Name
		gotInput = input
		return "*3 unread*", nil
	})

	output, err := r.Invoke(context.Background(), &credential.AgentCredential{
		ID: "a1", Provider: provider.Gmail,
	}, "how many unread?")
	require.NoError(t, err)

	assert.Equal(t, "*3 unread*", output)
	assert.Equal(t, "how many unread?", gotInput)
	assert.Equal(t, credential.DefaultAgentName, gotName)
}

func TestInvokeErrors(t *testing.T) {
	r := newTestRunner(nil).WithRunFunc(func(context.Context, *agents.Agent, string) (string, error) {
		return "", errors.New("rate limited")
	})

	_, err := r.Invoke(context.Background(), &credential.AgentCredential{Provider: provider.Gmail}, "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = r.Invoke(context.Background(), &credential.AgentCredential{Provider: provider.Gmail}, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestInstructions(t *testing.T) {
	r := newTestRunner(nil)

	instructions := r.Instructions(&credential.AgentCredential{
		Name:     "Inbox helper",
		Provider: provider.GoogleCalendar,
		Data:     map[string]any{"email": "alice@example.com"},
	})

	assert.Contains(t, instructions, "Slack mrkdwn")
	assert.Contains(t, instructions, "Google calendar assistant")
	assert.Contains(t, instructions, "- Account: alice@example.com")
	assert.Contains(t, instructions, "- Date: Monday, 2026-03-02")

	// facts are emitted in key order
	account := strings.Index(instructions, "- Account:")
	name := strings.Index(instructions, "- Assistant name: Inbox helper")
	integration := strings.Index(instructions, "- Integration: google-calendar")
	assert.True(t, account < name && name < integration)

	t.Run("unknown provider uses the default persona", func(t *testing.T) {
		instructions := r.Instructions(&credential.AgentCredential{Provider: provider.Slack})
		assert.Contains(t, instructions, defaultPersona)
		assert.NotContains(t, instructions, "Assistant name")
	})
}

func TestInstructionsOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "salesforce.md"), []byte("  You answer from the CRM.\n"), 0644))

	r := newTestRunner(map[string]string{"PROMPTS_DIR": dir})

	instructions := r.Instructions(&credential.AgentCredential{Provider: provider.Salesforce})
	assert.True(t, strings.HasPrefix(instructions, "You answer from the CRM."))
	assert.NotContains(t, instructions, "Slack mrkdwn")

	// providers without a file keep the built-in persona
	instructions = r.Instructions(&credential.AgentCredential{Provider: provider.Gmail})
	assert.Contains(t, instructions, "Google mail assistant")
}

func TestNewRunnerModel(t *testing.T) {
	assert.Equal(t, DefaultModel, NewRunner(utils.NewConfig(nil)).model)
	assert.Equal(t, "gpt-4o-mini", NewRunner(utils.NewConfig(map[string]string{"MODEL": "gpt-4o-mini"})).model)
}
