package template

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nguyenthenguyen/docx"
	"github.com/quillhaven/docsmith/internal/registry"
	"github.com/quillhaven/docsmith/internal/storage"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/quillhaven/docsmith/internal/tools/extract"
	"github.com/sirupsen/logrus"
)

// PlaceholderTool lists the fillable markers of a DOCX template
type PlaceholderTool struct{}

// FillTool fills a DOCX template's moustache markers with provided values
type FillTool struct{}

func init() {
	registry.Register(&PlaceholderTool{})
	registry.Register(&FillTool{})
}

// PlaceholderResponse is the JSON payload of extract_placeholders
type PlaceholderResponse struct {
	TemplateFile      string   `json:"template_file"`
	PlaceholdersFound int      `json:"placeholders_found"`
	Placeholders      []string `json:"placeholders"`
}

// FillResponse is the JSON payload of fill_template
type FillResponse struct {
	TemplateFile  string   `json:"template_file"`
	OutputFile    string   `json:"output_file"`
	FilledFields  int      `json:"filled_fields"`
	UnmatchedKeys []string `json:"unmatched_keys,omitempty"`
	PublicURL     string   `json:"public_url,omitempty"`
}

// Definition returns the extract_placeholders tool definition
func (t *PlaceholderTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"extract_placeholders",
		mcp.WithDescription(`Analyse a DOCX template (paragraphs and tables) and return the fillable markers it contains: {{key}} moustaches, 'Label:' lines awaiting values, and underscore blanks.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Absolute path to the .docx template to analyse"),
		),
	)
}

// Execute analyses the template
func (t *PlaceholderTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	if !tools.IsToolEnabled("extract_placeholders") {
		return nil, fmt.Errorf("extract_placeholders tool is not enabled. Set ENABLE_ADDITIONAL_TOOLS environment variable to include 'extract_placeholders'")
	}

	filePath, err := requireDocxPath(args)
	if err != nil {
		return nil, err
	}

	logger.WithField("file_path", filePath).Debug("Extracting template placeholders")

	text, err := extract.ReadText(filePath, "docx")
	if err != nil {
		return newToolResultJSON(map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}

	placeholders := ExtractPlaceholders(text)
	logger.WithField("count", len(placeholders)).Debug("Placeholder extraction completed")

	return newToolResultJSON(&PlaceholderResponse{
		TemplateFile:      filePath,
		PlaceholdersFound: len(placeholders),
		Placeholders:      placeholders,
	})
}

// Definition returns the fill_template tool definition
func (t *FillTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"fill_template",
		mcp.WithDescription(`Fill a DOCX template's {{key}} markers with the provided values and write the result as a new file. Optionally uploads the filled document to object storage and returns its public URL.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Absolute path to the .docx template to fill"),
		),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description(`JSON object mapping placeholder keys to replacement values, e.g. {"name": "Alice", "date": "2026-01-31"}`),
		),
		mcp.WithString("output_path",
			mcp.Description("Absolute path for the filled .docx (defaults to 'filled_<template name>' beside the template)"),
		),
		mcp.WithBoolean("upload",
			mcp.Description("Upload the filled document to object storage (default: false)"),
			mcp.DefaultBool(false),
		),
	)
}

// Execute fills the template
func (t *FillTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	if !tools.IsToolEnabled("fill_template") {
		return nil, fmt.Errorf("fill_template tool is not enabled. Set ENABLE_ADDITIONAL_TOOLS environment variable to include 'fill_template'")
	}

	filePath, err := requireDocxPath(args)
	if err != nil {
		return nil, err
	}

	dataJSON, ok := args["data"].(string)
	if !ok || dataJSON == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: data")
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return nil, fmt.Errorf("data must be a JSON object of string values: %w", err)
	}

	outputPath := filepath.Join(filepath.Dir(filePath), "filled_"+filepath.Base(filePath))
	if custom, ok := args["output_path"].(string); ok && custom != "" {
		if !filepath.IsAbs(custom) {
			return nil, fmt.Errorf("output_path must be an absolute path")
		}
		outputPath = custom
	}

	logger.WithFields(logrus.Fields{
		"file_path":   filePath,
		"output_path": outputPath,
		"fields":      len(data),
	}).Debug("Filling template")

	filled, unmatched, err := FillTemplate(filePath, outputPath, data)
	if err != nil {
		return newToolResultJSON(map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}

	response := &FillResponse{
		TemplateFile:  filePath,
		OutputFile:    outputPath,
		FilledFields:  filled,
		UnmatchedKeys: unmatched,
	}

	if upload, ok := args["upload"].(bool); ok && upload {
		store, storeErr := storage.NewFromEnv(logger)
		if storeErr == nil && store.IsAvailable() {
			objectName := fmt.Sprintf("filled_template_%s.docx", time.Now().Format("20060102150405"))
			url, uploadErr := store.UploadFile(ctx, outputPath, objectName)
			if uploadErr != nil {
				logger.WithError(uploadErr).Warn("Template filled but upload failed")
			} else {
				response.PublicURL = url
			}
		} else {
			logger.Warn("Upload requested but object storage is not configured")
		}
	}

	logger.WithField("filled_fields", filled).Info("Template filled")
	return newToolResultJSON(response)
}

// FillTemplate replaces {{key}} markers in a DOCX with the given values and
// writes the result to outputPath. Returns how many keys were found in the
// document and which keys were not, so callers can detect markers Word has
// split across runs.
func FillTemplate(templatePath, outputPath string, data map[string]string) (int, []string, error) {
	r, err := docx.ReadDocxFile(templatePath)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer r.Close()

	doc := r.Editable()
	content := doc.GetContent()

	filled := 0
	var unmatched []string
	for key, value := range data {
		marker := "{{" + key + "}}"
		if !strings.Contains(content, marker) {
			unmatched = append(unmatched, key)
			continue
		}
		if err := doc.Replace(marker, value, -1); err != nil {
			return filled, unmatched, fmt.Errorf("failed to replace %s: %w", marker, err)
		}
		filled++
	}
	sort.Strings(unmatched)

	if err := doc.WriteToFile(outputPath); err != nil {
		return filled, unmatched, fmt.Errorf("failed to write filled document: %w", err)
	}

	return filled, unmatched, nil
}

// requireDocxPath validates the shared file_path argument
func requireDocxPath(args map[string]any) (string, error) {
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return "", fmt.Errorf("missing or invalid required parameter: file_path")
	}
	if !filepath.IsAbs(filePath) {
		return "", fmt.Errorf("file_path must be an absolute path")
	}
	if !strings.HasSuffix(strings.ToLower(filePath), ".docx") {
		return "", fmt.Errorf("file_path must be a .docx file")
	}
	return filePath, nil
}

func newToolResultJSON(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ProvideExtendedInfo provides usage details for extract_placeholders
func (t *PlaceholderTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "List the fillable fields of a contract template",
				Arguments: map[string]any{
					"file_path": "/home/user/templates/contract.docx",
				},
				ExpectedResult: `Returns keys like ["client_name", "label_Date", "blank_0"] covering moustache markers, label lines and underscore blanks`,
			},
		},
		WhenToUse:    "Use before fill_template to discover which keys a template expects.",
		WhenNotToUse: "Don't use on non-template documents; it only reports marker patterns, not content.",
	}
}

// ProvideExtendedInfo provides usage details for fill_template
func (t *FillTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Fill and upload a template",
				Arguments: map[string]any{
					"file_path": "/home/user/templates/contract.docx",
					"data":      `{"client_name": "Acme Corp", "date": "2026-08-29"}`,
					"upload":    true,
				},
				ExpectedResult: "Writes filled_contract.docx, uploads it and returns the public URL with the number of fields filled",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "filled_fields is lower than expected",
				Solution: "Only {{key}} markers present verbatim in the document XML are replaced. Word sometimes splits a marker across formatting runs; retype the marker in one go inside Word to fix it.",
			},
		},
		WhenToUse:    "Use to produce a finished document from a DOCX template and a JSON object of values.",
		WhenNotToUse: "Don't use for free-form document generation; that is generate_document's job.",
	}
}
