package nodes

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/render"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
)

func TestExecutorNodeRequiresState(t *testing.T) {
	ctx := context.Background()
	runnable, err := compose.NewChain[model.ParsedReply, model.Execution]().
		AppendLambda(NewExecutorNode()).
		Compile(ctx)
	require.NoError(t, err)

	_, err = runnable.Invoke(ctx, model.ParsedReply{Reply: &model.Reply{
		Commands: []backend.Command{backend.SQLCommand{Name: "todos", Query: "SELECT 1"}},
	}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to access state")
}

func TestRendererNodeRequiresState(t *testing.T) {
	ctx := context.Background()
	runnable, err := compose.NewChain[model.Execution, *model.PageResult]().
		AppendLambda(NewRendererNode(nil, render.NewRenderer())).
		Compile(ctx)
	require.NoError(t, err)

	_, err = runnable.Invoke(ctx, model.Execution{Reply: &model.Reply{Template: "<p>hi</p>"}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to access state")
}

func TestTemplateContext(t *testing.T) {
	req := model.PageRequest{
		TenantID: "t",
		Path:     "/list",
		Method:   "post",
		Query:    map[string]string{"sort": "asc"},
		Form:     map[string]string{"title": "milk"},
	}
	data := TemplateContext(context.Background(), req, nil, backend.Results{"todos": []map[string]any{}})

	assert.Equal(t, "/list", data["path"])
	assert.Contains(t, data["results"], "todos")
	request := data["request"].(map[string]any)
	assert.Equal(t, "POST", request["method"])
	assert.Equal(t, req.Form, request["form"])
	assert.NotContains(t, data, "db")
}
