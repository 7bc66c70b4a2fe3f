package registry

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/sirupsen/logrus"
)

var (
	// toolRegistry is a map of tool names to tool implementations
	toolRegistry = make(map[string]tools.Tool)

	// disabledTools is a set of tool names to disable
	disabledTools = make(map[string]bool)

	// logger is the shared logger instance
	logger *logrus.Logger

	// cache is the shared cache instance
	cache *sync.Map
)

// Init initialises the registry and shared resources
func Init(l *logrus.Logger) {
	logger = l
	cache = &sync.Map{}

	parseDisabledTools()
}

// parseDisabledTools parses the DISABLED_TOOLS environment variable
func parseDisabledTools() {
	disabledTools = make(map[string]bool)

	disabledEnv := os.Getenv("DISABLED_TOOLS")
	if disabledEnv == "" {
		return
	}

	for _, tool := range strings.Split(disabledEnv, ",") {
		tool = strings.TrimSpace(tool)
		if tool != "" {
			disabledTools[tool] = true
			if logger != nil {
				logger.WithField("tool", tool).Debug("Tool disabled")
			}
		}
	}

	if logger != nil && len(disabledTools) > 0 {
		logger.WithField("count", len(disabledTools)).Debug("Parsed disabled tools from environment")
	}
}

// requiresEnablement checks if a tool requires enablement via ENABLE_ADDITIONAL_TOOLS.
// Tools that spawn subprocesses, call paid model APIs, or write to cloud storage are
// disabled by default; add their names here.
func requiresEnablement(toolName string) bool {
	additionalTools := []string{
		"generate_document",
		"restructure_document",
		"convert_document",
		"fill_template",
		"extract_placeholders",
	}

	normalisedToolName := strings.ToLower(strings.ReplaceAll(toolName, "_", "-"))

	for _, tool := range additionalTools {
		normalisedAdditionalTool := strings.ToLower(strings.ReplaceAll(tool, "_", "-"))
		if normalisedToolName == normalisedAdditionalTool {
			return true
		}
	}
	return false
}

// IsToolAvailable checks if a tool is available for use based on:
// 1. DISABLED_TOOLS (explicit disable, highest priority)
// 2. Tool's enablement requirement
// 3. ENABLE_ADDITIONAL_TOOLS (explicit enable)
//
// Evaluated at lookup time, not registration time: tool packages register in
// init(), which runs before .env or file configuration is loaded, so the
// environment must be consulted when the tool is actually requested.
func IsToolAvailable(toolName string) bool {
	if disabledTools[toolName] {
		if logger != nil {
			logger.WithField("tool", toolName).Debug("Tool disabled via environment variable")
		}
		return false
	}

	if requiresEnablement(toolName) {
		enabled := tools.IsToolEnabled(toolName)
		if logger != nil {
			if enabled {
				logger.WithField("tool", toolName).Debug("Tool enabled via ENABLE_ADDITIONAL_TOOLS")
			} else {
				logger.WithField("tool", toolName).Debug("Tool requires enablement but is not enabled")
			}
		}
		return enabled
	}

	return true
}

// Register adds a tool implementation to the registry. Registration is
// unconditional; DISABLED_TOOLS and ENABLE_ADDITIONAL_TOOLS are applied when
// tools are looked up, after all configuration sources have been loaded.
func Register(tool tools.Tool) {
	if toolRegistry == nil {
		toolRegistry = make(map[string]tools.Tool)
	}

	toolName := tool.Definition().Name
	toolRegistry[toolName] = tool
	if logger != nil {
		logger.WithField("tool", toolName).Debug("Tool successfully registered")
	}
}

// GetTool retrieves a tool by name, returns false if disabled or not enabled
func GetTool(name string) (tools.Tool, bool) {
	if !IsToolAvailable(name) {
		return nil, false
	}
	tool, ok := toolRegistry[name]
	return tool, ok
}

// GetEnabledTools returns all tools that are enabled for MCP server registration
func GetEnabledTools() map[string]tools.Tool {
	filteredTools := make(map[string]tools.Tool)
	for name, tool := range toolRegistry {
		if !IsToolAvailable(name) {
			continue
		}
		filteredTools[name] = tool
	}
	return filteredTools
}

// GetEnabledToolNames returns a sorted list of enabled tool names
func GetEnabledToolNames() []string {
	var names []string
	for name := range GetEnabledTools() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return logger
}

// GetCache returns the shared cache instance
func GetCache() *sync.Map {
	return cache
}
