package llmagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

// openAIChat drives any OpenAI-compatible chat-completions endpoint
// (OpenAI itself, Anthropic's compatibility layer, Ollama).
type openAIChat struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

func (c *openAIChat) Run(ctx context.Context, instructions string, history []HistoryEntry, userText string, tools *ToolSet) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(c.apiKey)}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	client := openai.NewClient(opts...)

	var messages []openai.ChatCompletionMessageParamUnion
	if instructions != "" {
		messages = append(messages, openai.SystemMessage(instructions))
	}
	for _, h := range history {
		if h.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(h.Content))
		} else {
			messages = append(messages, openai.UserMessage(h.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userText))

	var toolParams []openai.ChatCompletionToolUnionParam
	for _, def := range tools.Definitions() {
		toolParams = append(toolParams, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters:  openai.FunctionParameters(def.Parameters),
				},
			},
		})
	}

	for i := 0; i < maxRunIterations; i++ {
		params := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(c.model),
			Messages:    messages,
			Temperature: openai.Float(c.temperature),
		}
		if c.maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(c.maxTokens))
		}
		if len(toolParams) > 0 {
			params.Tools = toolParams
		}

		completion, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("empty completion from %s", c.model)
		}

		choice := completion.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			return choice.Message.Content, nil
		}

		// Re-inject the assistant turn, then answer each tool call.
		messages = append(messages, choice.Message.ToParam())
		for _, tc := range choice.Message.ToolCalls {
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]interface{}{}
			}

			result := tools.Invoke(ctx, tc.Function.Name, args)
			raw, err := json.Marshal(result)
			if err != nil {
				raw = []byte(`{}`)
			}
			logrus.WithFields(logrus.Fields{
				"tool": tc.Function.Name,
			}).Debug("[AGENT] Tool invoked")
			messages = append(messages, openai.ToolMessage(string(raw), tc.ID))
		}
	}
	return "", fmt.Errorf("run exceeded %d tool iterations", maxRunIterations)
}
