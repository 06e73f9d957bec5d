package llmagent

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/models"
)

// DefaultInstructions is the system prompt used when a user has not set
// custom instructions.
const DefaultInstructions = "You are a helpful WhatsApp assistant. You have access to the user's message history through tools. Use them when the user asks about past conversations. Keep replies concise and conversational."

// Apology is returned whenever a run fails; the user always gets a reply.
const Apology = "I apologize, but I encountered an error processing your message. Please try again."

// maxRunIterations bounds the tool-call loop of a single run.
const maxRunIterations = 10

// HistoryEntry is one prior conversation turn, oldest first.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type providerDefaults struct {
	model   string
	baseURL string
}

// defaults per provider: model plus OpenAI-compatible base URL override.
var providerTable = map[string]providerDefaults{
	models.ProviderOpenAI:    {model: "gpt-4o"},
	models.ProviderAnthropic: {model: "claude-3-opus-20240229", baseURL: "https://api.anthropic.com/v1"},
	models.ProviderGoogle:    {model: "gemini-pro", baseURL: "https://generativelanguage.googleapis.com/v1beta"},
	models.ProviderOllama:    {model: "llama2", baseURL: "http://localhost:11434/v1"},
}

// chatProvider executes one full agent run against a concrete LLM API.
type chatProvider interface {
	Run(ctx context.Context, instructions string, history []HistoryEntry, userText string, tools *ToolSet) (string, error)
}

// Config describes one agent instance.
type Config struct {
	Name         string
	Instructions string
	Provider     string
	Model        string
	Temperature  float64
	MaxTokens    int
	APIKey       string
	BaseURL      string
}

// Agent is a provider-neutral LLM adapter: instructions, a fixed tool set,
// and a run loop. Stateless across invocations beyond its configuration.
type Agent struct {
	cfg   Config
	chat  chatProvider
	tools *ToolSet
}

// NewAgent builds an agent, filling model and base URL from the provider
// defaults table where unset.
func NewAgent(cfg Config, tools *ToolSet) *Agent {
	def := providerTable[cfg.Provider]
	if cfg.Model == "" {
		cfg.Model = def.model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.baseURL
	}
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	a := &Agent{cfg: cfg, tools: tools}
	switch cfg.Provider {
	case models.ProviderGoogle:
		a.chat = &geminiChat{apiKey: cfg.APIKey, model: cfg.Model, temperature: cfg.Temperature}
	default:
		// openai, anthropic and ollama all speak the OpenAI wire protocol,
		// differing only in base URL.
		a.chat = &openAIChat{
			apiKey:      cfg.APIKey,
			baseURL:     cfg.BaseURL,
			model:       cfg.Model,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
		}
	}
	return a
}

// Model returns the resolved model identifier.
func (a *Agent) Model() string { return a.cfg.Model }

// Provider returns the configured provider name.
func (a *Agent) Provider() string { return a.cfg.Provider }

// UpdateInstructions replaces the system prompt for subsequent runs.
func (a *Agent) UpdateInstructions(instructions string) {
	a.cfg.Instructions = instructions
}

// UpdateModel replaces the model for subsequent runs.
func (a *Agent) UpdateModel(model string) {
	a.cfg.Model = model
	switch c := a.chat.(type) {
	case *openAIChat:
		c.model = model
	case *geminiChat:
		c.model = model
	}
}

// ProcessMessage performs one agent run: history, then the user text, then
// the tool loop until the model yields a final answer. Run failures never
// propagate; the caller always receives text.
func (a *Agent) ProcessMessage(ctx context.Context, text string, history []HistoryEntry) string {
	reply, err := a.chat.Run(ctx, a.cfg.Instructions, history, text, a.tools)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"provider": a.cfg.Provider,
			"model":    a.cfg.Model,
		}).Error("[AGENT] Run failed")
		return Apology
	}
	if reply == "" {
		return Apology
	}
	return reply
}
