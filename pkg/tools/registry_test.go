package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/tools"
)

type fakeAdapter struct {
	name    string
	list    []tools.Tool
	closed  bool
	closeCh chan<- string
}

func (f *fakeAdapter) ListTools(ctx context.Context) ([]tools.Tool, error) { return f.list, nil }

func (f *fakeAdapter) CallTool(ctx context.Context, name, callableName string, args map[string]any) (any, error) {
	if name != f.list[0].Name {
		return nil, errors.New("unknown tool")
	}
	return "called:" + name, nil
}

func (f *fakeAdapter) Close() error {
	f.closed = true
	if f.closeCh != nil {
		f.closeCh <- f.name
	}
	return nil
}

func TestRegistryRegisterAndCall(t *testing.T) {
	ctx := context.Background()
	reg := tools.New(nil)

	a := &fakeAdapter{name: "a", list: []tools.Tool{{Name: "echo", Description: "echoes"}}}
	require.NoError(t, reg.RegisterAdapter(ctx, a, "net"))

	listed := reg.ListTools()
	require.Len(t, listed, 1)
	require.Contains(t, listed[0].Tags, "net")

	result, err := reg.CallTool(ctx, "echo", "", nil)
	require.NoError(t, err)
	require.Equal(t, "called:echo", result)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	ctx := context.Background()
	reg := tools.New(nil)
	require.NoError(t, reg.RegisterAdapter(ctx, &fakeAdapter{name: "a", list: []tools.Tool{{Name: "echo"}}}))

	err := reg.RegisterAdapter(ctx, &fakeAdapter{name: "b", list: []tools.Tool{{Name: "echo"}}})
	require.Error(t, err)
	require.Equal(t, errs.AlreadyExists, errs.KindOf(err))
}

func TestRegistrySubstringSearch(t *testing.T) {
	ctx := context.Background()
	reg := tools.New(nil)
	require.NoError(t, reg.RegisterAdapter(ctx, &fakeAdapter{name: "a", list: []tools.Tool{
		{Name: "fetch", Description: "fetches a url"},
		{Name: "fetcher-extra", Description: "unrelated"},
		{Name: "other", Description: "mentions fetch in passing"},
	}}))

	results, err := reg.Search(ctx, "fetch", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "fetch", results[0].Tool.Name)
	require.Equal(t, float64(100), results[0].Score)
}

func TestRegistryScopedView(t *testing.T) {
	ctx := context.Background()
	reg := tools.New(nil)
	require.NoError(t, reg.RegisterAdapter(ctx, &fakeAdapter{name: "a", list: []tools.Tool{
		{Name: "net-tool", Tags: []string{"net"}},
	}}))
	require.NoError(t, reg.RegisterAdapter(ctx, &fakeAdapter{name: "b", list: []tools.Tool{
		{Name: "fs-tool", Tags: []string{"fs"}},
	}}))

	view := reg.ScopedView("net")
	listed := view.ListTools()
	require.Len(t, listed, 1)
	require.Equal(t, "net-tool", listed[0].Name)

	_, err := view.CallTool(ctx, "fs-tool", "", nil)
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestRegistryCloseIsLIFO(t *testing.T) {
	ctx := context.Background()
	reg := tools.New(nil)
	order := make(chan string, 2)
	require.NoError(t, reg.RegisterAdapter(ctx, &fakeAdapter{name: "first", list: []tools.Tool{{Name: "t1"}}, closeCh: order}))
	require.NoError(t, reg.RegisterAdapter(ctx, &fakeAdapter{name: "second", list: []tools.Tool{{Name: "t2"}}, closeCh: order}))

	require.NoError(t, reg.Close())
	close(order)

	var closedOrder []string
	for name := range order {
		closedOrder = append(closedOrder, name)
	}
	require.Equal(t, []string{"second", "first"}, closedOrder)
}
