package scripts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/solidex/internal/fixture"
	"github.com/jward/solidex/internal/runtime"
)

func TestEmbeddedDetectors_Listed(t *testing.T) {
	t.Parallel()
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(FS))

	names, err := rt.Scripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"dead-internal.risor", "recursion.risor", "unread-state.risor"}, names)
}

func TestEmbeddedDetectors_Sample(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(FS))

	found, err := rt.RunDetectors(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "recursion", found[0].Detector)
	assert.Equal(t, "Mid2.fact calls itself", found[0].Message)
	assert.Equal(t, []string{"Mid2.fact"}, fixture.Names(m, found[0].Symbols))
}

func TestEmbeddedDetectors_EachScriptRuns(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(FS))

	names, err := rt.Scripts()
	require.NoError(t, err)
	for _, name := range names {
		_, err := rt.RunScript(context.Background(), m, name, nil)
		assert.NoError(t, err, name)
	}
}

func TestEmbeddedDetectors_DeadInternalAndUnreadState(t *testing.T) {
	t.Parallel()
	const src = "contract C { uint256 x; function f() internal { x = 1; } }"
	b := fixture.NewBuilder("/p")
	b.File("C.sol", src, 0).
		Decl("C", "contract", "C", "contract C", 0).
		Decl("C.x", "state_variable", "C.x", "uint256 x", 0, fixture.Parent("C"), fixture.Visibility("internal")).
		Decl("C.f", "function", "C.f", "function f", 0, fixture.Parent("C"), fixture.Visibility("internal"), fixture.Implemented()).
		Ref("C.x", "write", "x", 1)
	m := b.Model(t)
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(FS))

	found, err := rt.RunDetectors(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "dead-internal", found[0].Detector)
	assert.Equal(t, "C.f is never called", found[0].Message)
	assert.Equal(t, "unread-state", found[1].Detector)
	assert.Equal(t, "C.x is never read", found[1].Message)
}
