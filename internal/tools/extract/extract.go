package extract

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
	"github.com/quillhaven/docsmith/internal/registry"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

const (
	// File size limit for input documents
	DefaultMaxFileSize = int64(200 * 1024 * 1024) // 200MB
	MaxFileSizeEnvVar  = "DOCSMITH_MAX_FILE_SIZE"
)

// ExtractorTool converts PDF, DOCX, HTML and plain-text documents into
// markdown plus a structured section outline.
type ExtractorTool struct{}

// init registers the extractor tool
func init() {
	registry.Register(&ExtractorTool{})
}

// ExtractRequest holds the parsed tool arguments
type ExtractRequest struct {
	FilePath      string
	OutputDir     string
	Format        string
	Pages         string
	ExtractImages bool
}

// Section is one heading-delimited slice of the extracted document
type Section struct {
	Title   string   `json:"title"`
	Level   int      `json:"level"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ExtractResponse is the JSON payload returned to the caller
type ExtractResponse struct {
	FilePath       string    `json:"file_path"`
	Format         string    `json:"format"`
	MarkdownFile   string    `json:"markdown_file"`
	Sections       []Section `json:"sections"`
	CharacterCount int       `json:"character_count"`
	TotalPages     int       `json:"total_pages,omitempty"`
	PagesProcessed int       `json:"pages_processed,omitempty"`
	Images         []string  `json:"images,omitempty"`
	OutputDir      string    `json:"output_dir"`
}

// Definition returns the tool's definition for MCP registration
func (t *ExtractorTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"extract_document",
		mcp.WithDescription(`Extract the content of a document (PDF, DOCX, HTML, TXT or Markdown) into clean markdown plus a structured section outline. Writes a markdown file next to the source document (or into output_dir) and returns the sections as JSON.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Absolute file path to the document to extract"),
		),
		mcp.WithString("output_dir",
			mcp.Description("Output directory for the markdown file and any images (defaults to the document's directory)"),
		),
		mcp.WithString("format",
			mcp.Description("Override format detection: 'pdf', 'docx', 'html', 'text' (default: detect from extension)"),
		),
		mcp.WithString("pages",
			mcp.Description("PDF page range to process (e.g., '1-5', '1,3,5', or 'all', default: all). Ignored for non-PDF input"),
			mcp.DefaultString("all"),
		),
		mcp.WithBoolean("extract_images",
			mcp.Description("Extract embedded images from PDFs (default: false)"),
			mcp.DefaultBool(false),
		),
	)
}

// Execute extracts the document content
func (t *ExtractorTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	logger.Debug("Executing document extraction tool")

	request, err := t.ParseRequest(args)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"file_path": request.FilePath,
		"format":    request.Format,
		"pages":     request.Pages,
	}).Debug("Document extraction parameters")

	fileInfo, err := os.Stat(request.FilePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("document does not exist: %s", request.FilePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat document: %w", err)
	}
	if fileInfo.Size() > maxFileSize() {
		return nil, fmt.Errorf("document size %.1fMB exceeds the %.1fMB limit (set %s to adjust)",
			float64(fileInfo.Size())/(1024*1024), float64(maxFileSize())/(1024*1024), MaxFileSizeEnvVar)
	}

	response, err := t.extract(ctx, logger, request)
	if err != nil {
		return newToolResultJSON(map[string]any{
			"success":   false,
			"error":     err.Error(),
			"file_path": request.FilePath,
		})
	}

	logger.WithFields(logrus.Fields{
		"file_path":     request.FilePath,
		"markdown_file": response.MarkdownFile,
		"sections":      len(response.Sections),
	}).Debug("Document extraction completed")

	return newToolResultJSON(response)
}

// ParseRequest parses and validates the tool arguments
func (t *ExtractorTool) ParseRequest(args map[string]any) (*ExtractRequest, error) {
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: file_path")
	}
	if !filepath.IsAbs(filePath) {
		return nil, fmt.Errorf("file_path must be an absolute path")
	}

	request := &ExtractRequest{
		FilePath: filePath,
		Pages:    "all",
	}

	if format, ok := args["format"].(string); ok && format != "" {
		request.Format = strings.ToLower(format)
	} else {
		request.Format = DetectFormat(filePath)
	}
	if request.Format == "" {
		return nil, fmt.Errorf("unsupported document type: %s (supported: .pdf, .docx, .html, .htm, .txt, .md)", filepath.Ext(filePath))
	}

	if outputDir, ok := args["output_dir"].(string); ok && outputDir != "" {
		if !filepath.IsAbs(outputDir) {
			return nil, fmt.Errorf("output_dir must be an absolute path")
		}
		request.OutputDir = outputDir
	} else {
		request.OutputDir = filepath.Dir(filePath)
	}

	if pages, ok := args["pages"].(string); ok && pages != "" {
		request.Pages = pages
	}
	if extractImages, ok := args["extract_images"].(bool); ok {
		request.ExtractImages = extractImages
	}

	return request, nil
}

// DetectFormat maps a file extension to an extraction format, returning ""
// for unsupported types.
func DetectFormat(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return "pdf"
	case ".docx":
		return "docx"
	case ".html", ".htm":
		return "html"
	case ".txt", ".md", ".markdown":
		return "text"
	default:
		return ""
	}
}

// extract dispatches to the format-specific extractor and assembles the response
func (t *ExtractorTool) extract(ctx context.Context, logger *logrus.Logger, request *ExtractRequest) (*ExtractResponse, error) {
	if err := os.MkdirAll(request.OutputDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	response := &ExtractResponse{
		FilePath:  request.FilePath,
		Format:    request.Format,
		OutputDir: request.OutputDir,
	}

	var markdown string
	var err error
	switch request.Format {
	case "pdf":
		markdown, err = t.extractPDF(ctx, logger, request, response)
	case "docx":
		markdown, err = extractDocx(request.FilePath)
	case "html":
		markdown, err = extractHTML(request.FilePath)
	case "text":
		var data []byte
		data, err = os.ReadFile(request.FilePath)
		markdown = string(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", request.Format)
	}
	if err != nil {
		return nil, err
	}

	// Normalise to NFC so downstream diffing and LLM prompts see one
	// representation per character.
	markdown = norm.NFC.String(markdown)

	baseName := strings.TrimSuffix(filepath.Base(request.FilePath), filepath.Ext(request.FilePath))
	markdownFile := filepath.Join(request.OutputDir, baseName+".md")
	if err := os.WriteFile(markdownFile, []byte(markdown), 0600); err != nil {
		return nil, fmt.Errorf("failed to write markdown file: %w", err)
	}

	response.MarkdownFile = markdownFile
	response.CharacterCount = len(markdown)
	response.Sections = SplitSections(markdown)

	return response, nil
}

// ReadText returns a document's plain text without writing any output
// files. Used by tools that only need the content, not the markdown
// artefact.
func ReadText(filePath, format string) (string, error) {
	switch format {
	case "pdf":
		return extractPDFText(filePath)
	case "docx":
		return extractDocx(filePath)
	case "html":
		return extractHTML(filePath)
	case "text":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// SplitSections breaks markdown into heading-delimited sections. Content
// before the first heading becomes an untitled preamble section.
func SplitSections(markdown string) []Section {
	var sections []Section
	var current *Section

	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(current.Content)
			current.Images = imageRefs(current.Content)
			if current.Title != "" || current.Content != "" {
				sections = append(sections, *current)
			}
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if level, title, ok := parseHeading(trimmed); ok {
			flush()
			current = &Section{Title: title, Level: level}
			continue
		}
		if current == nil {
			current = &Section{}
		}
		current.Content += line + "\n"
	}
	flush()

	return sections
}

// sectionImagePattern captures the target of markdown image references
var sectionImagePattern = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)

// imageRefs lists the image targets referenced in a section's content
func imageRefs(content string) []string {
	var refs []string
	for _, match := range sectionImagePattern.FindAllStringSubmatch(content, -1) {
		if match[1] != "" {
			refs = append(refs, match[1])
		}
	}
	return refs
}

// parseHeading recognises ATX-style markdown headings
func parseHeading(line string) (level int, title string, ok bool) {
	if !strings.HasPrefix(line, "#") {
		return 0, "", false
	}
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		return 0, "", false
	}
	rest := line[level:]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return 0, "", false
	}
	return level, strings.TrimSpace(rest), true
}

func maxFileSize() int64 {
	if sizeStr := os.Getenv(MaxFileSizeEnvVar); sizeStr != "" {
		var size int64
		if _, err := fmt.Sscanf(sizeStr, "%d", &size); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxFileSize
}

// newToolResultJSON creates a new tool result with JSON content
func newToolResultJSON(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ProvideExtendedInfo provides detailed usage information for the extractor
func (t *ExtractorTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Extract a full PDF report",
				Arguments: map[string]any{
					"file_path": "/home/user/reports/annual.pdf",
				},
				ExpectedResult: "Creates annual.md next to the PDF and returns the section outline as JSON",
			},
			{
				Description: "Extract specific PDF pages with images",
				Arguments: map[string]any{
					"file_path":      "/home/user/reports/annual.pdf",
					"pages":          "1-5,12",
					"extract_images": true,
				},
				ExpectedResult: "Extracts pages 1-5 and 12 only, saving embedded images to an annual_images subfolder",
			},
			{
				Description: "Extract a DOCX into a working directory",
				Arguments: map[string]any{
					"file_path":  "/home/user/contracts/agreement.docx",
					"output_dir": "/home/user/work/agreement",
				},
				ExpectedResult: "Writes agreement.md into the output directory and returns its sections",
			},
		},
		CommonPatterns: []string{
			"Run extract_document first, then pass the markdown file to restructure_document for LLM analysis",
			"Use page ranges to sample large PDFs before committing to a full extraction",
			"The sections array gives you heading-level structure without re-parsing the markdown",
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "PDF text comes out garbled or empty",
				Solution: "Scanned PDFs carry no text layer. Extraction works on text-based PDFs only; OCR the document first if it is a scan.",
			},
			{
				Problem:  "Unsupported document type error",
				Solution: "Supported extensions are .pdf, .docx, .html, .htm, .txt and .md. Convert legacy .doc files with convert_document first.",
			},
		},
		ParameterDetails: map[string]string{
			"file_path":      "Absolute path to the source document (required).",
			"format":         "Force a specific extractor when the extension is misleading.",
			"pages":          "PDF-only page selection: ranges ('1-5'), lists ('1,3,5') or 'all'.",
			"extract_images": "PDF-only. Saves embedded images and references them from the markdown.",
		},
		WhenToUse:    "Use as the first step of any document workflow: it turns heterogeneous input formats into a single markdown representation plus a section outline.",
		WhenNotToUse: "Don't use for scanned PDFs needing OCR or for legacy .doc files (convert those to .docx first with convert_document).",
	}
}
