package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quillhaven/docsmith/internal/registry"
	"github.com/quillhaven/docsmith/internal/storage"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/sirupsen/logrus"
)

// ConverterTool converts markdown to DOCX via pandoc and legacy .doc files
// to DOCX via LibreOffice.
type ConverterTool struct{}

func init() {
	registry.Register(&ConverterTool{})
}

// ConvertRequest holds the parsed tool arguments
type ConvertRequest struct {
	FilePath   string
	OutputPath string
	Upload     bool
}

// ConvertResponse is the JSON payload returned to the caller
type ConvertResponse struct {
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
	Converter  string `json:"converter"`
	PublicURL  string `json:"public_url,omitempty"`
}

// Definition returns the tool's definition for MCP registration
func (t *ConverterTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"convert_document",
		mcp.WithDescription(`Convert a document to DOCX. Markdown files are converted with pandoc (remote images are downloaded and embedded); legacy .doc files are converted with LibreOffice. Requires pandoc or LibreOffice on the host.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Absolute path to the source file (.md or .doc)"),
		),
		mcp.WithString("output_path",
			mcp.Description("Absolute path for the resulting .docx (defaults to the source path with a .docx extension)"),
		),
		mcp.WithBoolean("upload",
			mcp.Description("Upload the result to object storage and return its public URL (default: false)"),
			mcp.DefaultBool(false),
		),
	)
}

// Execute converts the document
func (t *ConverterTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	if !tools.IsToolEnabled("convert_document") {
		return nil, fmt.Errorf("convert_document tool is not enabled. Set ENABLE_ADDITIONAL_TOOLS environment variable to include 'convert_document'")
	}

	request, err := t.ParseRequest(args)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"file_path":   request.FilePath,
		"output_path": request.OutputPath,
	}).Debug("Converting document")

	if _, err := os.Stat(request.FilePath); err != nil {
		return newToolResultJSON(map[string]any{
			"success": false,
			"error":   fmt.Sprintf("source file does not exist: %s", request.FilePath),
		})
	}

	response := &ConvertResponse{
		InputFile:  request.FilePath,
		OutputFile: request.OutputPath,
	}

	switch strings.ToLower(filepath.Ext(request.FilePath)) {
	case ".md", ".markdown":
		response.Converter = "pandoc"
		err = MarkdownToDocx(ctx, logger, request.FilePath, request.OutputPath)
	case ".doc":
		response.Converter = "libreoffice"
		err = DocToDocx(ctx, logger, request.FilePath, request.OutputPath)
	default:
		err = fmt.Errorf("unsupported source type %s (supported: .md, .doc)", filepath.Ext(request.FilePath))
	}
	if err != nil {
		return newToolResultJSON(map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}

	if request.Upload {
		url, uploadErr := uploadResult(ctx, logger, request.OutputPath)
		if uploadErr != nil {
			logger.WithError(uploadErr).Warn("Conversion succeeded but upload failed")
		} else {
			response.PublicURL = url
		}
	}

	logger.WithField("output_file", response.OutputFile).Info("Document converted")
	return newToolResultJSON(response)
}

// ParseRequest parses and validates the tool arguments
func (t *ConverterTool) ParseRequest(args map[string]any) (*ConvertRequest, error) {
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: file_path")
	}
	if !filepath.IsAbs(filePath) {
		return nil, fmt.Errorf("file_path must be an absolute path")
	}

	request := &ConvertRequest{FilePath: filePath}

	if outputPath, ok := args["output_path"].(string); ok && outputPath != "" {
		if !filepath.IsAbs(outputPath) {
			return nil, fmt.Errorf("output_path must be an absolute path")
		}
		if !strings.HasSuffix(strings.ToLower(outputPath), ".docx") {
			return nil, fmt.Errorf("output_path must end in .docx")
		}
		request.OutputPath = outputPath
	} else {
		request.OutputPath = DefaultOutputPath(filePath)
	}

	if upload, ok := args["upload"].(bool); ok {
		request.Upload = upload
	}

	return request, nil
}

// DefaultOutputPath swaps the source extension for .docx. When that path is
// already taken a numeric suffix is appended so repeated conversions never
// clobber an earlier result.
func DefaultOutputPath(filePath string) string {
	ext := filepath.Ext(filePath)
	base := strings.TrimSuffix(filePath, ext)
	candidate := base + ".docx"
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d.docx", base, i)
	}
}

func uploadResult(ctx context.Context, logger *logrus.Logger, outputPath string) (string, error) {
	store, err := storage.NewFromEnv(logger)
	if err != nil {
		return "", err
	}
	if !store.IsAvailable() {
		return "", fmt.Errorf("object storage is not configured")
	}
	return store.UploadFile(ctx, outputPath, filepath.Base(outputPath))
}

func newToolResultJSON(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ProvideExtendedInfo provides detailed usage information
func (t *ConverterTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Convert a generated markdown report to DOCX",
				Arguments: map[string]any{
					"file_path": "/home/user/reports/annual.md",
				},
				ExpectedResult: "Creates /home/user/reports/annual.docx, downloading and embedding any remote images referenced in the markdown",
			},
			{
				Description: "Upgrade a legacy .doc and upload it",
				Arguments: map[string]any{
					"file_path": "/home/user/archive/minutes.doc",
					"upload":    true,
				},
				ExpectedResult: "Converts with LibreOffice and returns a public URL for the uploaded .docx",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "pandoc not found error",
				Solution: "Install pandoc and make sure it is on PATH, or set DOCSMITH_PANDOC_PATH to the binary location.",
			},
			{
				Problem:  "LibreOffice not found error",
				Solution: "Install LibreOffice. The tool probes 'soffice', 'libreoffice' and the macOS app bundle path; set DOCSMITH_SOFFICE_PATH to override.",
			},
			{
				Problem:  "Conversion succeeds but images are missing",
				Solution: "Remote images that fail to download are left as URLs for pandoc to resolve. Check the logs for download warnings and verify the image URLs are reachable.",
			},
		},
		WhenToUse:    "Use at the end of a generation workflow to produce a DOCX deliverable, or to upgrade legacy .doc files before template analysis.",
		WhenNotToUse: "Don't use for extraction (extract_document) or for formats other than markdown and .doc input.",
	}
}
