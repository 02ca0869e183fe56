package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
)

// ErrEmptyPrompt is returned for prompt files with no content
var ErrEmptyPrompt = errors.New("prompt file is empty")

// LoadPrompt reads prompt instructions from an exact path and trims surrounding whitespace
func LoadPrompt(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt %s: %w", filePath, err)
	}

	prompt := strings.TrimSpace(string(content))
	if prompt == "" {
		return "", fmt.Errorf("%s: %w", filePath, ErrEmptyPrompt)
	}
	return prompt, nil
}

// LoadPromptWithFallback loads the prompt at filePath, returning fallback
// when the file is missing, unreadable or empty
func LoadPromptWithFallback(filePath, fallback string) string {
	prompt, err := LoadPrompt(filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[UTILS]: Warning, using built-in prompt: %v\n", err)
		}
		return fallback
	}
	return prompt
}
