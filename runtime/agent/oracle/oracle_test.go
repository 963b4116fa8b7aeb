package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActionValidate(t *testing.T) {
	require.NoError(t, Final("done").Validate())
	require.NoError(t, Call("list_tasks", nil).Validate())
	require.NoError(t, Call("create_task", map[string]any{"title": "x"}).Validate())

	require.Error(t, Action{}.Validate())
	require.Error(t, Action{
		Final:    &FinalAnswer{Message: "done"},
		ToolCall: &ToolCall{Name: "list_tasks"},
	}.Validate())
	require.Error(t, Action{Final: &FinalAnswer{}}.Validate())
	require.Error(t, Action{ToolCall: &ToolCall{}}.Validate())
}
