package restructure

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quillhaven/docsmith/internal/llm"
	"github.com/quillhaven/docsmith/internal/registry"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/quillhaven/docsmith/internal/tools/extract"
	"github.com/sirupsen/logrus"
)

// promptWordLimit caps how much of the document is sent to the model
const promptWordLimit = 2000

// fallbackSummaryWords is the excerpt length used when no LLM is configured
const fallbackSummaryWords = 100

// RestructureTool analyses a document with an LLM and returns a structured
// profile: description, summary, section outline and any label/value fields
// found in the text.
type RestructureTool struct{}

func init() {
	registry.Register(&RestructureTool{})
}

// Analysis is the LLM-produced part of the document profile
type Analysis struct {
	Description string    `json:"description"`
	Summary     string    `json:"summary"`
	Sections    []Section `json:"sections"`
}

// Section is one outline entry of the analysed document
type Section struct {
	Title     string   `json:"title"`
	KeyPoints []string `json:"key_points"`
}

// RestructureResponse is the JSON payload returned to the caller
type RestructureResponse struct {
	DocumentName string            `json:"document_name"`
	Description  string            `json:"description"`
	Summary      string            `json:"summary"`
	Sections     []Section         `json:"sections,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	FromCache    bool              `json:"from_cache"`
	LLMUsed      bool              `json:"llm_used"`
}

// Definition returns the tool's definition for MCP registration
func (t *RestructureTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"restructure_document",
		mcp.WithDescription(`Analyse a document with an LLM and return a structured profile: a one-line description, a detailed summary, a section outline with key points, and any label/value fields detected in the text. Results are cached by content hash. Requires an LLM API key for full analysis; falls back to an excerpt-based summary without one.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Absolute path to the document to analyse (.pdf, .docx, .html, .txt, .md)"),
		),
		mcp.WithString("instructions",
			mcp.Description("Optional extra analysis instructions, e.g. 'focus on financial figures'"),
		),
		mcp.WithBoolean("no_cache",
			mcp.Description("Skip the analysis cache and re-run the LLM (default: false)"),
			mcp.DefaultBool(false),
		),
	)
}

// Execute analyses the document
func (t *RestructureTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	if !tools.IsToolEnabled("restructure_document") {
		return nil, fmt.Errorf("restructure_document tool is not enabled. Set ENABLE_ADDITIONAL_TOOLS environment variable to include 'restructure_document'")
	}

	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: file_path")
	}
	if !filepath.IsAbs(filePath) {
		return nil, fmt.Errorf("file_path must be an absolute path")
	}
	instructions, _ := args["instructions"].(string)
	noCache, _ := args["no_cache"].(bool)

	logger.WithFields(logrus.Fields{
		"file_path": filePath,
		"no_cache":  noCache,
	}).Debug("Restructuring document")

	text, err := readDocumentText(filePath)
	if err != nil {
		return newToolResultJSON(map[string]any{
			"success":   false,
			"error":     err.Error(),
			"file_path": filePath,
		})
	}
	if strings.TrimSpace(text) == "" {
		return newToolResultJSON(map[string]any{
			"success":   false,
			"error":     "no readable text content found in document",
			"file_path": filePath,
		})
	}

	documentName := filepath.Base(filePath)
	response := &RestructureResponse{
		DocumentName: documentName,
		Fields:       ExtractFields(text),
	}

	analysisCache := newAnalysisCache(logger)
	cacheKey := analysisCache.Key(text, instructions)

	if !noCache {
		if cached, ok := analysisCache.Get(cacheKey); ok {
			logger.WithField("key", cacheKey[:12]).Debug("Analysis cache hit")
			response.Description = cached.Description
			response.Summary = cached.Summary
			response.Sections = cached.Sections
			response.FromCache = true
			response.LLMUsed = true
			return newToolResultJSON(response)
		}
	}

	analysis, llmUsed, err := t.analyse(ctx, logger, documentName, text, instructions)
	if err != nil {
		return newToolResultJSON(map[string]any{
			"success":   false,
			"error":     err.Error(),
			"file_path": filePath,
		})
	}

	response.Description = analysis.Description
	response.Summary = analysis.Summary
	response.Sections = analysis.Sections
	response.LLMUsed = llmUsed

	if llmUsed {
		analysisCache.Put(cacheKey, analysis)
	}

	return newToolResultJSON(response)
}

// analyse runs the LLM analysis, or an excerpt-based fallback when no LLM is
// configured.
func (t *RestructureTool) analyse(ctx context.Context, logger *logrus.Logger, documentName, text, instructions string) (*Analysis, bool, error) {
	if !llm.IsConfigured() {
		logger.Warn("No LLM configured, using excerpt-based analysis")
		return fallbackAnalysis(text), false, nil
	}

	client, err := llm.NewClient()
	if err != nil {
		return nil, false, fmt.Errorf("failed to create LLM client: %w", err)
	}

	prompt := buildAnalysisPrompt(documentName, text, instructions)
	var analysis Analysis
	if err := client.ChatJSON(ctx, prompt, analysisSystemPrompt, &analysis); err != nil {
		return nil, false, fmt.Errorf("document analysis failed: %w", err)
	}
	if err := validateAnalysis(&analysis); err != nil {
		return nil, false, fmt.Errorf("model returned an invalid analysis: %w", err)
	}

	return &analysis, true, nil
}

const analysisSystemPrompt = `You are a professional document analyst. Given a document name and its content, produce a concise matching description and a detailed structural summary. Return strictly the JSON format the user specifies, with no extra commentary.`

// buildAnalysisPrompt assembles the user prompt, truncating the document to
// the word limit.
func buildAnalysisPrompt(documentName, text, instructions string) string {
	excerpt := truncateWords(text, promptWordLimit)

	var sb strings.Builder
	sb.WriteString("Analyse the following document:\n")
	fmt.Fprintf(&sb, "Document name: %q\n", documentName)
	sb.WriteString("Document content:\n---\n")
	sb.WriteString(excerpt)
	sb.WriteString("\n---\n")
	if instructions != "" {
		fmt.Fprintf(&sb, "Additional instructions: %s\n", instructions)
	}
	sb.WriteString(`Produce the analysis strictly in this JSON format:
{
  "description": "A one-sentence description of the document's purpose or topic.",
  "summary": "A detailed paragraph summarising the document's structure and core content.",
  "sections": [
    {
      "title": "Section title",
      "key_points": ["key point one", "key point two"]
    }
  ]
}`)
	return sb.String()
}

// validateAnalysis rejects structurally empty model output
func validateAnalysis(a *Analysis) error {
	if strings.TrimSpace(a.Description) == "" {
		return fmt.Errorf("missing description")
	}
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("missing summary")
	}
	for i, s := range a.Sections {
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("section %d has no title", i)
		}
	}
	return nil
}

// fallbackAnalysis builds an excerpt-based profile without an LLM
func fallbackAnalysis(text string) *Analysis {
	return &Analysis{
		Description: "Generic description generated from document content.",
		Summary:     fmt.Sprintf("Document excerpt (first %d words): %s...", fallbackSummaryWords, truncateWords(text, fallbackSummaryWords)),
	}
}

// truncateWords keeps at most limit whitespace-separated words
func truncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) > limit {
		words = words[:limit]
	}
	return strings.Join(words, " ")
}

// fieldPattern matches "Label: value" lines. Both ASCII and full-width
// colons are recognised since template documents use either.
var fieldPattern = regexp.MustCompile(`^([\w\s()（）/]+)[:：](.*)$`)

// ExtractFields collects label/value pairs from lines shaped like
// "Label: value". First occurrence of a label wins.
func ExtractFields(text string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		match := fieldPattern.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		key := strings.TrimSpace(match[1])
		value := strings.TrimSpace(match[2])
		if key == "" || len(key) >= 50 {
			continue
		}
		if _, exists := fields[key]; exists {
			continue
		}
		if value == "" {
			value = "(empty)"
		}
		fields[key] = value
	}
	return fields
}

// readDocumentText extracts plain text from a supported document
func readDocumentText(filePath string) (string, error) {
	format := extract.DetectFormat(filePath)
	if format == "" {
		return "", fmt.Errorf("unsupported document type: %s", filepath.Ext(filePath))
	}
	if _, err := os.Stat(filePath); err != nil {
		return "", fmt.Errorf("document does not exist: %s", filePath)
	}
	return extract.ReadText(filePath, format)
}

func newToolResultJSON(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ProvideExtendedInfo provides detailed usage information
func (t *RestructureTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Profile a contract template",
				Arguments: map[string]any{
					"file_path": "/home/user/templates/service-agreement.docx",
				},
				ExpectedResult: "Returns description, summary, section outline and the label/value fields found in the template",
			},
			{
				Description: "Re-analyse with custom focus, bypassing the cache",
				Arguments: map[string]any{
					"file_path":    "/home/user/reports/q3.pdf",
					"instructions": "focus on financial figures and risks",
					"no_cache":     true,
				},
				ExpectedResult: "Fresh LLM analysis emphasising the requested aspects",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Response says llm_used: false",
				Solution: "No LLM API key is configured. Set DOCSMITH_LLM_API_KEY (and optionally DOCSMITH_LLM_API_URL and DOCSMITH_LLM_MODEL) to enable full analysis.",
			},
			{
				Problem:  "Stale results after editing the document",
				Solution: "The cache key is the content hash, so edits produce a new key automatically. If you changed only the instructions parameter, that is also part of the key. Use no_cache to force a re-run.",
			},
		},
		WhenToUse:    "Use after extraction when you need a machine-readable profile of a document: what it is, how it is structured, and which fillable fields it contains.",
		WhenNotToUse: "Don't use for full-text retrieval (use extract_document) or for generating new documents (use generate_document).",
	}
}
