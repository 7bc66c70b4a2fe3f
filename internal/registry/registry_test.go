package registry

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestRegistry(t *testing.T) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	Init(logger)
}

// stubTool is a minimal tool implementation for registry tests
type stubTool struct {
	name string
}

func (s *stubTool) Definition() mcp.Tool {
	return mcp.NewTool(s.name, mcp.WithDescription("stub"))
}

func (s *stubTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("ok"), nil
}

func TestIsToolAvailable(t *testing.T) {
	tests := []struct {
		name            string
		toolName        string
		disabledTools   string
		additionalTools string
		want            bool
	}{
		{
			name:     "standard tool available by default",
			toolName: "extract_document",
			want:     true,
		},
		{
			name:     "gated tool needs enablement",
			toolName: "generate_document",
			want:     false,
		},
		{
			name:            "gated tool enabled explicitly",
			toolName:        "generate_document",
			additionalTools: "generate_document",
			want:            true,
		},
		{
			name:            "gated tool enabled in a list",
			toolName:        "fill_template",
			additionalTools: "convert_document, fill_template",
			want:            true,
		},
		{
			name:          "disable wins over enable",
			toolName:      "convert_document",
			disabledTools: "convert_document",
			additionalTools: "convert_document",
			want:          false,
		},
		{
			name:          "standard tool disabled explicitly",
			toolName:      "knowledge_search",
			disabledTools: "knowledge_search",
			want:          false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DISABLED_TOOLS", tc.disabledTools)
			t.Setenv("ENABLE_ADDITIONAL_TOOLS", tc.additionalTools)
			initTestRegistry(t)
			assert.Equal(t, tc.want, IsToolAvailable(tc.toolName))
		})
	}
}

// Gated tools are registered during package init, before .env or file
// configuration has been loaded. Enablement set after registration must
// still take effect at lookup time.
func TestEnablementAppliedAfterRegistration(t *testing.T) {
	t.Setenv("DISABLED_TOOLS", "")
	t.Setenv("ENABLE_ADDITIONAL_TOOLS", "")
	initTestRegistry(t)

	Register(&stubTool{name: "generate_document"})

	_, ok := GetTool("generate_document")
	assert.False(t, ok, "gated tool must stay hidden while not enabled")
	assert.NotContains(t, GetEnabledTools(), "generate_document")

	t.Setenv("ENABLE_ADDITIONAL_TOOLS", "generate_document")

	tool, ok := GetTool("generate_document")
	require.True(t, ok, "enablement loaded after registration must take effect")
	assert.Equal(t, "generate_document", tool.Definition().Name)
	assert.Contains(t, GetEnabledTools(), "generate_document")
}

func TestGetToolRespectsDisabledList(t *testing.T) {
	t.Setenv("DISABLED_TOOLS", "document_status")
	initTestRegistry(t)

	_, ok := GetTool("document_status")
	assert.False(t, ok)
}

func TestSharedResources(t *testing.T) {
	t.Setenv("DISABLED_TOOLS", "")
	initTestRegistry(t)

	assert.NotNil(t, GetLogger())
	assert.NotNil(t, GetCache())
}

var _ tools.Tool = (*stubTool)(nil)
