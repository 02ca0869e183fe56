package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrompt(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	content, err := LoadPrompt(write("gmail.md", "\n  You are a helpful Google mail assistant.\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful Google mail assistant.", content)

	_, err = LoadPrompt(write("blank.md", "   \n"))
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = LoadPrompt(filepath.Join(dir, "missing.md"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadPromptWithFallback(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "slack.md")
	require.NoError(t, os.WriteFile(present, []byte("Custom persona"), 0644))
	blank := filepath.Join(dir, "blank.md")
	require.NoError(t, os.WriteFile(blank, nil, 0644))

	tests := []struct {
		name string
		path string
		want string
	}{
		{"file present", present, "Custom persona"},
		{"file missing", filepath.Join(dir, "missing.md"), "fallback"},
		{"file empty", blank, "fallback"},
		{"path is a directory", dir, "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LoadPromptWithFallback(tt.path, "fallback"))
		})
	}
}
