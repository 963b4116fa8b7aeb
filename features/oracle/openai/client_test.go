package openai

import (
	"context"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"goa.design/aide/runtime/agent/oracle"
	"goa.design/aide/runtime/agent/session"
	"goa.design/aide/runtime/agent/tools"
)

type fakeChat struct {
	params sdk.ChatCompletionNewParams
	resp   *sdk.ChatCompletion
	err    error
}

func (f *fakeChat) New(_ context.Context, body sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	f.params = body
	return f.resp, f.err
}

func newTestClient(t *testing.T, chat *fakeChat) *Client {
	t.Helper()
	c, err := New(Options{Client: chat, Model: sdk.ChatModelGPT4o})
	require.NoError(t, err)
	return c
}

func textResponse(content string) *sdk.ChatCompletion {
	return &sdk.ChatCompletion{
		Choices: []sdk.ChatCompletionChoice{{
			Message: sdk.ChatCompletionMessage{Content: content},
		}},
	}
}

func toolCallResponse(id, name, args string) *sdk.ChatCompletion {
	return &sdk.ChatCompletion{
		Choices: []sdk.ChatCompletionChoice{{
			Message: sdk.ChatCompletionMessage{
				ToolCalls: []sdk.ChatCompletionMessageToolCall{{
					ID: id,
					Function: sdk.ChatCompletionMessageToolCallFunction{
						Name:      name,
						Arguments: args,
					},
				}},
			},
		}},
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Model: sdk.ChatModelGPT4o})
	require.Error(t, err)
	_, err = New(Options{Client: &fakeChat{}})
	require.Error(t, err)
}

func TestDecideReturnsFinalAnswer(t *testing.T) {
	chat := &fakeChat{resp: textResponse("You have no meetings today.")}
	c := newTestClient(t, chat)

	action, err := c.Decide(context.Background(), oracle.Input{
		SessionID: "sess-1",
		Turns:     []session.Turn{{Role: session.RoleUser, Content: "what's on my calendar?"}},
	})
	require.NoError(t, err)
	require.NoError(t, action.Validate())
	require.NotNil(t, action.Final)
	require.Equal(t, "You have no meetings today.", action.Final.Message)
}

func TestDecideReturnsToolCall(t *testing.T) {
	chat := &fakeChat{resp: toolCallResponse("call-1", "list_tasks", `{"status":"pending"}`)}
	c := newTestClient(t, chat)

	action, err := c.Decide(context.Background(), oracle.Input{
		Turns: []session.Turn{{Role: session.RoleUser, Content: "what are my tasks?"}},
	})
	require.NoError(t, err)
	require.NotNil(t, action.ToolCall)
	require.Equal(t, tools.Ident("list_tasks"), action.ToolCall.Name)
	require.Equal(t, map[string]any{"status": "pending"}, action.ToolCall.Args)
}

func TestDecideForwardsToolSchemas(t *testing.T) {
	chat := &fakeChat{resp: textResponse("ok")}
	c := newTestClient(t, chat)

	_, err := c.Decide(context.Background(), oracle.Input{
		Turns: []session.Turn{{Role: session.RoleUser, Content: "hi"}},
		Tools: []tools.Spec{{
			Name:        "list_tasks",
			Description: "List tasks.",
			Family:      "tasks",
			Scope:       "tasks:read",
			Params: map[string]tools.Param{
				"status": {Type: tools.ParamString, Enum: []string{"pending", "completed", "all"}},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, chat.params.Tools, 1)
	require.Equal(t, "list_tasks", chat.params.Tools[0].Function.Name)
	params := map[string]any(chat.params.Tools[0].Function.Parameters)
	require.Equal(t, "object", params["type"])
}

func TestEncodeTurnsReplaysToolCycle(t *testing.T) {
	msgs := encodeTurns("prompt", []session.Turn{
		{Role: session.RoleUser, Content: "schedule a sync"},
		{Role: session.RoleAgent, ToolName: "create_calendar_event", ToolCallID: "call-1", Content: `{"title":"Sync"}`},
		{Role: session.RoleTool, ToolCallID: "call-1", Content: `{"id":"evt-1"}`},
		{Role: session.RoleAgent, Content: "Scheduled the sync."},
	})
	require.Len(t, msgs, 5)
	require.NotNil(t, msgs[0].OfSystem)
	require.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	require.Equal(t, "call-1", msgs[2].OfAssistant.ToolCalls[0].ID)
	require.NotNil(t, msgs[3].OfTool)
	require.NotNil(t, msgs[4].OfAssistant)
}

func TestEncodeTurnsMapsFailedResultsAndFeedback(t *testing.T) {
	msgs := encodeTurns("prompt", []session.Turn{
		{Role: session.RoleUser, Content: "hello"},
		{Role: session.RoleTool, Content: "action rejected: empty", ErrorKind: "malformed_action"},
		{Role: session.RoleTool, ToolCallID: "call-1", Content: "boom", ErrorKind: "transient"},
	})
	require.Len(t, msgs, 4)
	// Feedback without a call ID travels as a user message.
	require.NotNil(t, msgs[2].OfUser)
	require.NotNil(t, msgs[3].OfTool)
}

func TestDecideRejectsEmptyTranscript(t *testing.T) {
	c := newTestClient(t, &fakeChat{resp: textResponse("hi")})
	_, err := c.Decide(context.Background(), oracle.Input{})
	require.Error(t, err)
}

func TestDecideRejectsEmptyResponse(t *testing.T) {
	c := newTestClient(t, &fakeChat{resp: &sdk.ChatCompletion{}})
	_, err := c.Decide(context.Background(), oracle.Input{
		Turns: []session.Turn{{Role: session.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
}
