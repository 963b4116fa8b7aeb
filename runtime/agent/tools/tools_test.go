package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validSpec() Spec {
	return Spec{
		Name:        "create_task",
		Description: "Create a task.",
		Family:      "tasks",
		Scope:       "tasks:write",
		Params: map[string]Param{
			"title":           {Type: ParamString, Description: "Task title.", Required: true},
			"priority":        {Type: ParamString, Enum: []string{"low", "medium", "high"}, Default: "medium"},
			"estimated_hours": {Type: ParamNumber, Default: 1.0},
			"subtasks":        {Type: ParamInteger},
			"urgent":          {Type: ParamBoolean},
		},
	}
}

func TestSpecValidate(t *testing.T) {
	require.NoError(t, validSpec().Validate())

	spec := validSpec()
	spec.Name = ""
	require.Error(t, spec.Validate())

	spec = validSpec()
	spec.Family = ""
	require.Error(t, spec.Validate())

	spec = validSpec()
	spec.Scope = ""
	require.Error(t, spec.Validate())

	spec = validSpec()
	spec.Params["title"] = Param{Type: "blob"}
	require.Error(t, spec.Validate())

	spec = validSpec()
	spec.Params["title"] = Param{Type: ParamString, Required: true, Default: "x"}
	require.Error(t, spec.Validate())

	spec = validSpec()
	spec.Params["estimated_hours"] = Param{Type: ParamNumber, Enum: []string{"1"}}
	require.Error(t, spec.Validate())
}

func TestJSONSchemaShape(t *testing.T) {
	schema := validSpec().JSONSchema()
	require.Equal(t, "object", schema["type"])
	require.Equal(t, false, schema["additionalProperties"])
	require.Equal(t, []any{"title"}, schema["required"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	require.Len(t, props, 5)

	title, ok := props["title"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "string", title["type"])
	require.Equal(t, "Task title.", title["description"])

	priority, ok := props["priority"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, []any{"low", "medium", "high"}, priority["enum"])
	require.Equal(t, "medium", priority["default"])
}

func TestJSONSchemaOmitsRequiredWhenEmpty(t *testing.T) {
	spec := Spec{Name: "list_tasks", Family: "tasks", Scope: "tasks:read"}
	schema := spec.JSONSchema()
	_, present := schema["required"]
	require.False(t, present)
}
