// Package anthropic provides an oracle.Oracle implementation backed by the
// Anthropic Messages API. The session ledger is rendered as alternating
// user/assistant messages with tool_use and tool_result blocks, and the
// model's reply is mapped to exactly one action.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"goa.design/aide/runtime/agent/oracle"
	"goa.design/aide/runtime/agent/session"
	"goa.design/aide/runtime/agent/tools"
)

// defaultMaxTokens caps completions when callers do not configure a limit.
const defaultMaxTokens = 2048

// defaultSystemPrompt frames the assistant when callers do not provide one.
const defaultSystemPrompt = "You are a developer productivity assistant. " +
	"You manage the user's calendar, tasks, and repository workload through the provided tools. " +
	"Call at most one tool per turn. When you have enough information, reply with a final answer instead of a tool call."

type (
	// MessagesClient captures the subset of the Anthropic SDK used by the
	// oracle. It is satisfied by sdk.Client.Messages so tests can substitute
	// a fake.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures the Anthropic oracle.
	Options struct {
		// Client issues Messages API requests.
		Client MessagesClient
		// Model is the Claude model identifier.
		Model sdk.Model
		// SystemPrompt overrides the default framing.
		SystemPrompt string
		// MaxTokens caps each completion. Defaults to defaultMaxTokens.
		MaxTokens int64
	}

	// Client implements oracle.Oracle on top of Anthropic Claude Messages.
	Client struct {
		msg       MessagesClient
		model     sdk.Model
		prompt    string
		maxTokens int64
	}
)

// New validates the options and returns a Client.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{msg: opts.Client, model: opts.Model, prompt: prompt, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// transport.
func NewFromAPIKey(apiKey string, model sdk.Model) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Client: &client.Messages, Model: model})
}

// Decide implements oracle.Oracle.
func (c *Client) Decide(ctx context.Context, in oracle.Input) (oracle.Action, error) {
	if len(in.Turns) == 0 {
		return oracle.Action{}, errors.New("turns are required")
	}
	msgs, err := encodeTurns(in.Turns)
	if err != nil {
		return oracle.Action{}, err
	}
	params := sdk.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: c.prompt}},
		Messages:  msgs,
		Tools:     encodeTools(in.Tools),
	}

	resp, err := c.msg.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return oracle.Action{}, fmt.Errorf("%w: %w", oracle.ErrRateLimited, err)
		}
		return oracle.Action{}, fmt.Errorf("anthropic messages: %w", err)
	}
	return translate(resp)
}

// encodeTurns renders the ledger as Messages API turns. Tool results travel
// as tool_result blocks inside user messages; synthesized feedback without a
// call ID travels as plain user text.
func encodeTurns(turns []session.Turn) ([]sdk.MessageParam, error) {
	msgs := make([]sdk.MessageParam, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case session.RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(turn.Content)))
		case session.RoleAgent:
			if turn.ToolName != "" {
				var input map[string]any
				if turn.Content != "" {
					if err := json.Unmarshal([]byte(turn.Content), &input); err != nil {
						return nil, fmt.Errorf("anthropic: tool call arguments for %q: %w", turn.ToolName, err)
					}
				}
				msgs = append(msgs, sdk.NewAssistantMessage(
					sdk.NewToolUseBlock(turn.ToolCallID, input, string(turn.ToolName))))
				continue
			}
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(turn.Content)))
		case session.RoleTool:
			if turn.ToolCallID == "" {
				msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(turn.Content)))
				continue
			}
			msgs = append(msgs, sdk.NewUserMessage(
				sdk.NewToolResultBlock(turn.ToolCallID, turn.Content, turn.ErrorKind != "")))
		}
	}
	return msgs, nil
}

func encodeTools(specs []tools.Spec) []sdk.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]sdk.ToolUnionParam, len(specs))
	for i, spec := range specs {
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{
			ExtraFields: spec.JSONSchema(),
		}, string(spec.Name))
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(spec.Description)
		}
		out[i] = u
	}
	return out
}

// translate maps the response to an action: the first tool_use block when
// present, the concatenated text blocks otherwise.
func translate(resp *sdk.Message) (oracle.Action, error) {
	if resp == nil {
		return oracle.Action{}, errors.New("anthropic: response message is nil")
	}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return oracle.Action{}, fmt.Errorf("anthropic: tool input: %w", err)
				}
			}
			return oracle.Call(tools.Ident(block.Name), args), nil
		}
	}
	return oracle.Final(text.String()), nil
}

func isRateLimited(err error) bool {
	var apierr *sdk.Error
	return errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests
}
