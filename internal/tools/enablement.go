package tools

import (
	"os"
	"strings"
)

// IsToolEnabled checks if a tool is enabled via the ENABLE_ADDITIONAL_TOOLS environment variable.
// The environment variable should contain a comma-separated list of tool names.
// Tool names are case-insensitive and spaces are ignored.
//
// Example: ENABLE_ADDITIONAL_TOOLS="generate_document,fill_template,convert_document"
func IsToolEnabled(toolName string) bool {
	enabledTools := os.Getenv("ENABLE_ADDITIONAL_TOOLS")
	if enabledTools == "" {
		return false
	}

	// Normalise the tool name (lowercase, replace underscores with hyphens)
	normalisedToolName := strings.ToLower(strings.ReplaceAll(toolName, "_", "-"))

	toolsList := strings.Split(enabledTools, ",")
	for _, tool := range toolsList {
		normalisedTool := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tool), "_", "-"))
		if normalisedTool == normalisedToolName {
			return true
		}
	}

	return false
}
