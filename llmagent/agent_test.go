package llmagent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapa-ai/zapa/models"
)

type fakeChat struct {
	reply string
	err   error

	gotInstructions string
	gotHistory      []HistoryEntry
	gotText         string
}

func (f *fakeChat) Run(ctx context.Context, instructions string, history []HistoryEntry, userText string, tools *ToolSet) (string, error) {
	f.gotInstructions = instructions
	f.gotHistory = history
	f.gotText = userText
	return f.reply, f.err
}

func TestNewAgent_ProviderDefaults(t *testing.T) {
	cases := []struct {
		provider    string
		wantModel   string
		wantBaseURL string
	}{
		{models.ProviderOpenAI, "gpt-4o", ""},
		{models.ProviderAnthropic, "claude-3-opus-20240229", "https://api.anthropic.com/v1"},
		{models.ProviderGoogle, "gemini-pro", "https://generativelanguage.googleapis.com/v1beta"},
		{models.ProviderOllama, "llama2", "http://localhost:11434/v1"},
	}
	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			a := NewAgent(Config{Provider: tc.provider, APIKey: "k"}, nil)
			assert.Equal(t, tc.wantModel, a.Model())
			assert.Equal(t, tc.wantBaseURL, a.cfg.BaseURL)
		})
	}
}

func TestNewAgent_ExplicitModelWins(t *testing.T) {
	a := NewAgent(Config{Provider: models.ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "k"}, nil)
	assert.Equal(t, "gpt-4o-mini", a.Model())
}

func TestNewAgent_ProviderWiring(t *testing.T) {
	openai := NewAgent(Config{Provider: models.ProviderOpenAI, APIKey: "k"}, nil)
	_, ok := openai.chat.(*openAIChat)
	assert.True(t, ok)

	// Anthropic and Ollama ride the OpenAI-compatible path.
	anthropic := NewAgent(Config{Provider: models.ProviderAnthropic, APIKey: "k"}, nil)
	_, ok = anthropic.chat.(*openAIChat)
	assert.True(t, ok)

	google := NewAgent(Config{Provider: models.ProviderGoogle, APIKey: "k"}, nil)
	_, ok = google.chat.(*geminiChat)
	assert.True(t, ok)
}

func TestProcessMessage_PassesContext(t *testing.T) {
	fake := &fakeChat{reply: "Sure, here is the answer."}
	a := NewAgent(Config{Provider: models.ProviderOpenAI, APIKey: "k"}, nil)
	a.chat = fake

	history := []HistoryEntry{
		{Role: RoleUser, Content: "earlier question"},
		{Role: RoleAssistant, Content: "earlier answer"},
	}
	reply := a.ProcessMessage(context.Background(), "new question", history)

	assert.Equal(t, "Sure, here is the answer.", reply)
	assert.Equal(t, DefaultInstructions, fake.gotInstructions)
	assert.Equal(t, history, fake.gotHistory)
	assert.Equal(t, "new question", fake.gotText)
}

func TestProcessMessage_ApologyOnFailure(t *testing.T) {
	a := NewAgent(Config{Provider: models.ProviderOpenAI, APIKey: "k"}, nil)
	a.chat = &fakeChat{err: fmt.Errorf("provider exploded")}

	reply := a.ProcessMessage(context.Background(), "hello", nil)
	assert.Equal(t, Apology, reply)
}

func TestProcessMessage_ApologyOnEmptyReply(t *testing.T) {
	a := NewAgent(Config{Provider: models.ProviderOpenAI, APIKey: "k"}, nil)
	a.chat = &fakeChat{reply: ""}

	reply := a.ProcessMessage(context.Background(), "hello", nil)
	assert.Equal(t, Apology, reply)
}

func TestUpdateInstructionsAndModel(t *testing.T) {
	fake := &fakeChat{reply: "ok"}
	a := NewAgent(Config{Provider: models.ProviderOpenAI, APIKey: "k"}, nil)
	a.chat = fake

	a.UpdateInstructions("Answer in pirate speak.")
	a.ProcessMessage(context.Background(), "hi", nil)
	assert.Equal(t, "Answer in pirate speak.", fake.gotInstructions)

	real := NewAgent(Config{Provider: models.ProviderOpenAI, APIKey: "k"}, nil)
	real.UpdateModel("gpt-4o-mini")
	require.Equal(t, "gpt-4o-mini", real.Model())
	oc := real.chat.(*openAIChat)
	assert.Equal(t, "gpt-4o-mini", oc.model)
}

func TestSchemaFromJSON(t *testing.T) {
	schema := schemaFromJSON(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "text"},
			"limit": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"query"},
	})

	require.NotNil(t, schema)
	require.Len(t, schema.Properties, 2)
	assert.Equal(t, []string{"query"}, schema.Required)
	assert.Equal(t, "text", schema.Properties["query"].Description)
}
