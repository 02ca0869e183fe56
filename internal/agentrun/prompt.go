package agentrun

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethanbaker/agentlink/pkg/provider"
)

const formattingInstructions = `Use tools (only if necessary) to best answer the users' questions.
Return the response in Slack mrkdwn format, including emojis, bullet points, and bold text where necessary.

Slack message formatting example:
Bold text: *bold text*
Italic text: _italic text_
Bullet points: • example 1 \n • example 2 \n
Link: <https://example.com/profile|Fred Enriquez - New device request>
Remember that Slack mrkdwn formatting is different from regular markdown formatting. Do not use regular markdown formatting in your response.
As an example do not use the following: **bold text** or [link](http://example.com)`

const defaultPersona = "You are a helpful assistant that searches domain knowledge."

var personas = map[provider.ID]string{
	provider.Gmail:          "You are a helpful Google mail assistant that searches domain knowledge.",
	provider.GoogleCalendar: "You are a helpful Google calendar assistant that searches domain knowledge.",
	provider.GoogleDrive:    "You are a helpful Google drive assistant that searches domain knowledge.",
	provider.GoogleDocument: "You are a helpful Google docs assistant that searches domain knowledge.",
	provider.GoogleSheet:    "You are a helpful Google sheet assistant that searches domain knowledge.",
	provider.GoogleForm:     "You are a helpful Google forms assistant that searches domain knowledge.",
	provider.Salesforce:     "You are a helpful assistant that searches Salesforce Knowledge articles.",
}

// Persona returns the base instructions for a provider
func Persona(id provider.ID) string {
	persona, ok := personas[id]
	if !ok {
		persona = defaultPersona
	}
	return formattingInstructions + "\n\n" + persona
}

// PromptBuilder helps construct the instructions for one invocation
type PromptBuilder struct {
	systemPrompt string
	context      []string
	facts        map[string]string
}

// NewPromptBuilder creates a new prompt builder with a base system prompt
func NewPromptBuilder(systemPrompt string) *PromptBuilder {
	return &PromptBuilder{
		systemPrompt: systemPrompt,
		facts:        make(map[string]string),
	}
}

// AddContext adds contextual information to the prompt
func (pb *PromptBuilder) AddContext(context string) *PromptBuilder {
	pb.context = append(pb.context, context)
	return pb
}

// AddFact adds a key-value fact. Empty values are skipped
func (pb *PromptBuilder) AddFact(key, value string) *PromptBuilder {
	if value != "" {
		pb.facts[key] = value
	}
	return pb
}

// Build constructs the final prompt with facts in key order
func (pb *PromptBuilder) Build() string {
	parts := []string{pb.systemPrompt}

	if len(pb.facts) > 0 {
		keys := make([]string, 0, len(pb.facts))
		for key := range pb.facts {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		parts = append(parts, "\n## Key Facts:")
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("- %s: %s", key, pb.facts[key]))
		}
	}

	if len(pb.context) > 0 {
		parts = append(parts, "\n## Context:")
		for _, ctx := range pb.context {
			parts = append(parts, "- "+ctx)
		}
	}

	return strings.Join(parts, "\n")
}
