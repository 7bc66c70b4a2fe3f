package toolcli

import (
	"context"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTool() mcp.Tool {
	return mcp.NewTool(
		"sample_tool",
		mcp.WithDescription("A sample tool"),
		mcp.WithString("file_path", mcp.Required()),
		mcp.WithNumber("top_k"),
		mcp.WithBoolean("upload"),
	)
}

func TestParseArgsFlags(t *testing.T) {
	params, err := parseArgs([]string{"--file-path=/tmp/doc.md", "--top-k=5", "--upload"}, testTool())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/doc.md", params["file_path"])
	assert.Equal(t, float64(5), params["top_k"])
	assert.Equal(t, true, params["upload"])
}

func TestParseArgsFlagWithSeparateValue(t *testing.T) {
	params, err := parseArgs([]string{"--file-path", "/tmp/doc.md"}, testTool())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/doc.md", params["file_path"])
}

func TestParseArgsJSONObject(t *testing.T) {
	params, err := parseArgs([]string{`{"file_path": "/tmp/doc.md", "top_k": 3}`}, testTool())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/doc.md", params["file_path"])
	assert.Equal(t, float64(3), params["top_k"])
}

func TestParseArgsFlagsWinOverJSON(t *testing.T) {
	params, err := parseArgs([]string{"--file-path=/flag.md", `{"file_path": "/json.md"}`}, testTool())
	require.NoError(t, err)
	assert.Equal(t, "/flag.md", params["file_path"])
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bare positional", []string{"value"}},
		{"invalid JSON", []string{"{not json"}},
		{"flag missing value", []string{"--file-path"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseArgs(tc.args, testTool())
			assert.Error(t, err)
		})
	}
}

func TestCoerceValue(t *testing.T) {
	assert.Equal(t, float64(5), coerceValue("5", "number"))
	assert.Equal(t, true, coerceValue("true", "boolean"))
	assert.Equal(t, "maybe", coerceValue("maybe", "boolean"))
	assert.Equal(t, "plain", coerceValue("plain", "string"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", firstLine("first\nsecond"))
	assert.Equal(t, "only", firstLine("only"))
}

type plainTool struct{}

func (p *plainTool) Definition() mcp.Tool {
	return testTool()
}

func (p *plainTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("ok"), nil
}

type helpfulTool struct {
	plainTool
}

func (h *helpfulTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{WhenToUse: "whenever"}
}

func TestExtendedHelp(t *testing.T) {
	assert.Nil(t, extendedHelp(&plainTool{}))

	help := extendedHelp(&helpfulTool{})
	require.NotNil(t, help)
	assert.Equal(t, "whenever", help.WhenToUse)
}
