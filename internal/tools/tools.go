// Package tools defines the contract every docsmith tool implements and the
// shared helpers around it. Extraction, restructuring, generation, conversion,
// template filling and knowledge search all plug into the registry through the
// Tool interface and are surfaced over MCP, the HTTP API or the CLI.
package tools

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// Tool is implemented by every docsmith tool.
type Tool interface {
	// Definition describes the tool and its input schema for registration
	Definition() mcp.Tool

	// Execute runs the tool with the shared logger and cache and the parsed arguments
	Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// ExtendedHelpProvider is implemented by tools that carry usage guidance
// beyond their one-line description. The CLI renders it for `tool --info`.
type ExtendedHelpProvider interface {
	ProvideExtendedInfo() *ExtendedHelp
}

// ExtendedHelp is the usage guidance a tool exposes: worked examples,
// recurring invocation patterns and fixes for the failure modes users
// actually hit (missing binaries, unset endpoints, oversized inputs).
type ExtendedHelp struct {
	Examples         []ToolExample        `json:"examples,omitempty"`
	CommonPatterns   []string             `json:"common_patterns,omitempty"`
	Troubleshooting  []TroubleshootingTip `json:"troubleshooting,omitempty"`
	ParameterDetails map[string]string    `json:"parameter_details,omitempty"`
	WhenToUse        string               `json:"when_to_use,omitempty"`
	WhenNotToUse     string               `json:"when_not_to_use,omitempty"`
}

// ToolExample is one worked invocation: arguments plus the outcome to expect
type ToolExample struct {
	Description    string                 `json:"description"`
	Arguments      map[string]interface{} `json:"arguments"`
	ExpectedResult string                 `json:"expected_result,omitempty"`
}

// TroubleshootingTip pairs a known failure mode with its remedy
type TroubleshootingTip struct {
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
}
