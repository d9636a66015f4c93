package llm

import (
	"context"

	"github.com/openai/openai-go/v3"
)

func (c *Client) completeOpenAI(ctx context.Context, req Request, out any) error {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	}
	if len(req.Schema.Definition) > 0 {
		schema, err := schemaObject(req.Op, req.Schema.Definition)
		if err != nil {
			return err
		}
		name := req.Schema.Name
		if name == "" {
			name = "output"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{Name: name, Schema: schema},
			},
		}
	} else {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.openAI().Chat.Completions.New(ctx, params)
	if err != nil {
		return callError(ctx, req.Op, err)
	}
	if len(resp.Choices) == 0 {
		return ErrUpstreamGeneration(req.Op, "no choices")
	}
	return decodeInto(req.Op, resp.Choices[0].Message.Content, req.Schema.WrapKey, out)
}
