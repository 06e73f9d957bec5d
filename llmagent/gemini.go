package llmagent

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// geminiChat drives the Google Gemini API with native function calling.
type geminiChat struct {
	apiKey      string
	model       string
	temperature float64
}

func (c *geminiChat) Run(ctx context.Context, instructions string, history []HistoryEntry, userText string, tools *ToolSet) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}

	temp := float32(c.temperature)
	genConfig := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if instructions != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(instructions, "")
	}

	var decls []*genai.FunctionDeclaration
	for _, def := range tools.Definitions() {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  schemaFromJSON(def.Parameters),
		})
	}
	if len(decls) > 0 {
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	var contents []*genai.Content
	for _, h := range history {
		role := genai.RoleUser
		if h.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: h.Content}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: userText}},
	})

	for i := 0; i < maxRunIterations; i++ {
		resp, err := client.Models.GenerateContent(ctx, c.model, contents, genConfig)
		if err != nil {
			return "", err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", fmt.Errorf("empty response from %s", c.model)
		}

		candidate := resp.Candidates[0].Content
		var calls []*genai.FunctionCall
		for _, part := range candidate.Parts {
			if part.FunctionCall != nil {
				calls = append(calls, part.FunctionCall)
			}
		}
		if len(calls) == 0 {
			return resp.Text(), nil
		}

		contents = append(contents, candidate)

		// All tool responses of the turn travel in one content.
		var parts []*genai.Part
		for _, call := range calls {
			result := tools.Invoke(ctx, call.Name, call.Args)
			logrus.WithField("tool", call.Name).Debug("[AGENT] Tool invoked")
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     call.Name,
					Response: map[string]any{"result": result},
				},
			})
		}
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
	}
	return "", fmt.Errorf("run exceeded %d tool iterations", maxRunIterations)
}

// schemaFromJSON converts a JSON-schema parameter map into a genai.Schema.
// Only the object/string/integer/number/boolean subset the tools use.
func schemaFromJSON(schema map[string]interface{}) *genai.Schema {
	out := &genai.Schema{Type: genai.TypeObject}
	if schema == nil {
		return out
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			prop, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			child := &genai.Schema{}
			switch prop["type"] {
			case "string":
				child.Type = genai.TypeString
			case "integer":
				child.Type = genai.TypeInteger
			case "number":
				child.Type = genai.TypeNumber
			case "boolean":
				child.Type = genai.TypeBoolean
			default:
				child.Type = genai.TypeString
			}
			if desc, ok := prop["description"].(string); ok {
				child.Description = desc
			}
			out.Properties[name] = child
		}
	}
	if required, ok := schema["required"].([]string); ok {
		out.Required = required
	}
	return out
}
