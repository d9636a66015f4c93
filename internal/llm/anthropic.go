package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
)

// completeAnthropic forces a single tool call whose input schema is the
// requested output shape; the tool input is the structured answer.
func (c *Client) completeAnthropic(ctx context.Context, req Request, out any) error {
	if len(req.Schema.Definition) == 0 {
		return ErrUpstreamGeneration(req.Op, "schema is required for anthropic")
	}
	schema, err := schemaObject(req.Op, req.Schema.Definition)
	if err != nil {
		return err
	}
	tool := req.Schema.Name
	if tool == "" {
		tool = "process_input"
	}
	desc := req.Schema.Description
	if desc == "" {
		desc = "Process the input and generate structured output."
	}

	input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
	if list, ok := schema["required"].([]any); ok {
		for _, r := range list {
			if s, ok := r.(string); ok {
				input.Required = append(input.Required, s)
			}
		}
	}
	for k, v := range schema {
		switch k {
		case "type", "properties", "required":
		default:
			if input.ExtraFields == nil {
				input.ExtraFields = map[string]any{}
			}
			input.ExtraFields[k] = v
		}
	}

	resp, err := c.anthropicClient().Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Temperature: anthropic.Float(c.temperature),
		Tools: []anthropic.ToolUnionParam{{OfTool: &anthropic.ToolParam{
			Name:        tool,
			Description: anthropic.String(desc),
			InputSchema: input,
		}}},
		ToolChoice: anthropic.ToolChoiceParamOfTool(tool),
		Messages:   []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
	})
	if err != nil {
		return callError(ctx, req.Op, err)
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "tool_use":
			if len(block.Input) == 0 {
				continue
			}
			return decodeInto(req.Op, string(block.Input), req.Schema.WrapKey, out)
		case "text":
			// some proxies flatten tool output into text
			if block.Text != "" {
				return decodeInto(req.Op, block.Text, req.Schema.WrapKey, out)
			}
		}
	}
	return ErrUpstreamGeneration(req.Op, "no tool output")
}
