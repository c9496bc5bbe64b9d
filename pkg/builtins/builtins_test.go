package builtins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackb/classfactory/pkg/classloader"
)

func TestSystem(t *testing.T) {
	system := System()
	assert.Equal(t, []string{"json", "math", "time"}, system.Names())

	for _, name := range system.Names() {
		class, err := system.LoadClass(context.Background(), name)
		require.NoError(t, err)
		assert.NotEmpty(t, class.Names(), name)
	}

	_, err := system.LoadClass(context.Background(), "os")
	assert.ErrorIs(t, err, classloader.ErrClassNotFound)
}

func TestPredeclared(t *testing.T) {
	predeclared := Predeclared()
	assert.Equal(t, []string{"module", "struct"}, predeclared.Keys())

	// every call returns a fresh dictionary
	delete(predeclared, "struct")
	assert.True(t, Predeclared().Has("struct"))
}
