package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose_DefaultTemplate(t *testing.T) {
	c, err := NewComposer("")
	require.NoError(t, err)

	p := c.Compose("苯的替代物包括二甲苯", "苯有什麼替代物")
	assert.Contains(t, p, "資料來源：苯的替代物包括二甲苯\n")
	assert.Contains(t, p, "問題：苯有什麼替代物\n")
	assert.Contains(t, p, "依據目前的資料，無法回答此問題")
	assert.NotContains(t, p, "{context}")
	assert.NotContains(t, p, "{question}")
}

func TestCompose_NoReexpansion(t *testing.T) {
	c, err := NewComposer("C={context} Q={question}")
	require.NoError(t, err)
	assert.Equal(t, "C=see {question} Q=q", c.Compose("see {question}", "q"))
}

func TestNewComposer_RequiresSlots(t *testing.T) {
	_, err := NewComposer("only {context}")
	assert.Error(t, err)
}

func TestLoadComposer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("ctx: {context}\nq: {question}"), 0o644))

	c, err := LoadComposer(path)
	require.NoError(t, err)
	assert.Equal(t, "ctx: a\nq: b", c.Compose("a", "b"))

	_, err = LoadComposer(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	c, err = LoadComposer("")
	require.NoError(t, err)
	assert.True(t, strings.Contains(c.Compose("x", "y"), "資料來源：x"))
}

func TestFormatContext(t *testing.T) {
	chunks := []model.DocumentChunk{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	assert.Equal(t, "a\n\nb\n\nc", FormatContext(chunks))
	assert.Equal(t, "", FormatContext(nil))
}
