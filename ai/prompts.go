package ai

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// PromptManager loads and renders the embedded prompt templates. Constructed
// once at startup and injected; no package-level cache.
type PromptManager struct{}

// NewPromptManager builds a prompt manager over the embedded templates.
func NewPromptManager() *PromptManager {
	return &PromptManager{}
}

// Load returns the raw template by name ("excluded", "timing", "reasoning").
func (pm *PromptManager) Load(name string) (string, error) {
	content, err := promptFS.ReadFile("prompts/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("prompt template not found: %s", name)
	}
	return string(content), nil
}

// Render loads a template and replaces each {PLACEHOLDER} with its value.
func (pm *PromptManager) Render(name string, replacements map[string]string) (string, error) {
	template, err := pm.Load(name)
	if err != nil {
		return "", err
	}
	result := template
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, "{"+placeholder+"}", value)
	}
	return result, nil
}
