package docsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quillhaven/docsmith/internal/registry"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/sirupsen/logrus"
)

// KnowledgeSearchTool queries the configured vector knowledge base for text
// passages or related images.
type KnowledgeSearchTool struct{}

func init() {
	registry.Register(&KnowledgeSearchTool{})
}

// SearchToolResponse is the JSON payload returned to the caller
type SearchToolResponse struct {
	Query   string   `json:"query"`
	Type    string   `json:"type"`
	Count   int      `json:"count"`
	Results []string `json:"results"`
}

// Definition returns the tool's definition for MCP registration
func (t *KnowledgeSearchTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"knowledge_search",
		mcp.WithDescription(`Search the vector knowledge base. Type 'text' returns supporting passages; type 'image' returns image URLs relevant to the query. Requires the corresponding search endpoint to be configured.`),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithString("type",
			mcp.Description("Search type: 'text' or 'image' (default: text)"),
			mcp.DefaultString("text"),
		),
		mcp.WithNumber("count",
			mcp.Description(fmt.Sprintf("Number of results to return (default: %d)", DefaultTopK)),
			mcp.DefaultNumber(DefaultTopK),
		),
		mcp.WithNumber("min_score",
			mcp.Description(fmt.Sprintf("Minimum relevance score for image results (default: %.1f)", DefaultMinScore)),
			mcp.DefaultNumber(DefaultMinScore),
		),
	)
}

// Execute runs the search
func (t *KnowledgeSearchTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: query")
	}

	searchType := "text"
	if st, ok := args["type"].(string); ok && st != "" {
		searchType = st
	}
	if searchType != "text" && searchType != "image" {
		return nil, fmt.Errorf("invalid search type %q (expected 'text' or 'image')", searchType)
	}

	count := DefaultTopK
	if raw, ok := args["count"].(float64); ok && raw > 0 {
		count = int(math.Round(raw))
	}
	minScore := DefaultMinScore
	if raw, ok := args["min_score"].(float64); ok && raw > 0 {
		minScore = raw
	}

	logger.WithFields(logrus.Fields{
		"query": query,
		"type":  searchType,
		"count": count,
	}).Debug("Executing knowledge search")

	client := NewSearchClient(logger)

	var results []string
	var err error
	switch searchType {
	case "text":
		results, err = client.SearchText(ctx, query, count)
	case "image":
		results, err = client.SearchImages(ctx, query, count, minScore)
	}
	if err != nil {
		return newToolResultJSON(map[string]any{
			"success": false,
			"error":   err.Error(),
			"query":   query,
		})
	}

	return newToolResultJSON(&SearchToolResponse{
		Query:   query,
		Type:    searchType,
		Count:   len(results),
		Results: results,
	})
}

func newToolResultJSON(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ProvideExtendedInfo provides detailed usage information
func (t *KnowledgeSearchTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Find supporting passages for a report section",
				Arguments: map[string]any{
					"query": "heritage building conservation requirements",
					"count": 3,
				},
				ExpectedResult: "Returns up to 3 text passages from the knowledge base ranked by relevance",
			},
			{
				Description: "Find illustrations for a chapter",
				Arguments: map[string]any{
					"query":     "temple facade",
					"type":      "image",
					"min_score": 0.6,
				},
				ExpectedResult: "Returns image URLs scoring at least 0.6 against the query",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Search endpoint is not configured error",
				Solution: "Set DOCSMITH_TEXT_SEARCH_ENDPOINT and/or DOCSMITH_IMAGE_SEARCH_ENDPOINT to your knowledge base URLs.",
			},
			{
				Problem:  "Image search returns no results",
				Solution: "Lower min_score (it defaults to 0.4) or broaden the query. The image index only knows images that were previously ingested.",
			},
		},
		WhenToUse:    "Use to ground document generation in your own knowledge base, or to find illustrations for generated chapters.",
		WhenNotToUse: "Don't use for general web search; it only queries the configured vector endpoints.",
	}
}
