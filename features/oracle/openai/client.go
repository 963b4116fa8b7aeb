// Package openai provides an oracle.Oracle implementation backed by the
// OpenAI Chat Completions API. It renders the session ledger as a chat
// transcript, advertises the registry's tool schemas as function tools, and
// maps the model's reply to exactly one action.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"goa.design/aide/runtime/agent/oracle"
	"goa.design/aide/runtime/agent/session"
	"goa.design/aide/runtime/agent/tools"
)

// defaultSystemPrompt frames the assistant when callers do not provide one.
const defaultSystemPrompt = "You are a developer productivity assistant. " +
	"You manage the user's calendar, tasks, and repository workload through the provided tools. " +
	"Call at most one tool per turn. When you have enough information, reply with a final answer instead of a tool call."

type (
	// ChatClient captures the subset of the OpenAI SDK used by the oracle. It
	// is satisfied by openai.Client.Chat.Completions so tests can substitute a
	// fake.
	ChatClient interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Options configures the OpenAI oracle.
	Options struct {
		// Client issues chat completion requests.
		Client ChatClient
		// Model is the model identifier (e.g., openai.ChatModelGPT4o).
		Model sdk.ChatModel
		// SystemPrompt overrides the default framing.
		SystemPrompt string
		// Temperature is forwarded when positive.
		Temperature float64
	}

	// Client implements oracle.Oracle via the OpenAI Chat Completions API.
	Client struct {
		chat   ChatClient
		model  sdk.ChatModel
		prompt string
		temp   float64
	}
)

// New validates the options and returns a Client.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Client{chat: opts.Client, model: opts.Model, prompt: prompt, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the default OpenAI HTTP transport.
func NewFromAPIKey(apiKey string, model sdk.ChatModel) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Client: &client.Chat.Completions, Model: model})
}

// Decide implements oracle.Oracle.
func (c *Client) Decide(ctx context.Context, in oracle.Input) (oracle.Action, error) {
	if len(in.Turns) == 0 {
		return oracle.Action{}, errors.New("turns are required")
	}
	params := sdk.ChatCompletionNewParams{
		Model:    c.model,
		Messages: encodeTurns(c.prompt, in.Turns),
		Tools:    encodeTools(in.Tools),
	}
	if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return oracle.Action{}, fmt.Errorf("%w: %w", oracle.ErrRateLimited, err)
		}
		return oracle.Action{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return translate(resp)
}

// encodeTurns renders the ledger as chat messages. Agent tool-call turns are
// replayed as assistant tool calls and tool turns as tool results, so the
// model sees the same call/result pairing it produced. Synthesized feedback
// turns without a call ID are surfaced as user messages.
func encodeTurns(prompt string, turns []session.Turn) []sdk.ChatCompletionMessageParamUnion {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	msgs = append(msgs, sdk.SystemMessage(prompt))
	for _, turn := range turns {
		switch turn.Role {
		case session.RoleUser:
			msgs = append(msgs, sdk.UserMessage(turn.Content))
		case session.RoleAgent:
			if turn.ToolName != "" {
				msgs = append(msgs, sdk.ChatCompletionMessageParamUnion{
					OfAssistant: &sdk.ChatCompletionAssistantMessageParam{
						ToolCalls: []sdk.ChatCompletionMessageToolCallParam{{
							ID: turn.ToolCallID,
							Function: sdk.ChatCompletionMessageToolCallFunctionParam{
								Name:      string(turn.ToolName),
								Arguments: turn.Content,
							},
						}},
					},
				})
				continue
			}
			msgs = append(msgs, sdk.AssistantMessage(turn.Content))
		case session.RoleTool:
			if turn.ToolCallID == "" {
				msgs = append(msgs, sdk.UserMessage(turn.Content))
				continue
			}
			content := turn.Content
			if turn.ErrorKind != "" {
				content = fmt.Sprintf("error (%s): %s", turn.ErrorKind, turn.Content)
			}
			msgs = append(msgs, sdk.ToolMessage(content, turn.ToolCallID))
		}
	}
	return msgs
}

func encodeTools(specs []tools.Spec) []sdk.ChatCompletionToolParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]sdk.ChatCompletionToolParam, len(specs))
	for i, spec := range specs {
		out[i] = sdk.ChatCompletionToolParam{
			Function: sdk.FunctionDefinitionParam{
				Name:        string(spec.Name),
				Description: sdk.String(spec.Description),
				Parameters:  sdk.FunctionParameters(spec.JSONSchema()),
			},
		}
	}
	return out
}

// translate maps the completion to an action: the first tool call when
// present, the text content otherwise. Empty content yields a malformed
// action the loop feeds back to the model.
func translate(resp *sdk.ChatCompletion) (oracle.Action, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return oracle.Action{}, errors.New("openai: response carries no choices")
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return oracle.Action{}, fmt.Errorf("openai: tool call arguments: %w", err)
			}
		}
		return oracle.Call(tools.Ident(call.Function.Name), args), nil
	}
	return oracle.Final(msg.Content), nil
}

func isRateLimited(err error) bool {
	var apierr *sdk.Error
	return errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests
}
