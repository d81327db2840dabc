package prompt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shrimp/pkg/memory"
)

func TestBuildWithoutMemoryOmitsBlock(t *testing.T) {
	mem := memory.NewStore(filepath.Join(t.TempDir(), "mem.json"))
	b := NewBuilder(mem)

	out := b.Build()
	assert.NotContains(t, out, "Persistent memory:")
	assert.Contains(t, out, "You are Shrimp")
}

func TestBuildNumbersMemoryItems(t *testing.T) {
	mem := memory.NewStore(filepath.Join(t.TempDir(), "mem.json"))
	_, _, err := mem.Add("prefers vim keybindings")
	require.NoError(t, err)
	_, _, err = mem.Add("projects live under ~/src")
	require.NoError(t, err)

	out := NewBuilder(mem).Build()
	assert.Contains(t, out, "Persistent memory:")
	assert.Contains(t, out, "1. prefers vim keybindings")
	assert.Contains(t, out, "2. projects live under ~/src")
}
