package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quillhaven/docsmith/internal/registry"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/sirupsen/logrus"
)

// GenerateTool starts a multi-stage document generation task
type GenerateTool struct{}

// StatusTool reports the progress of a generation task
type StatusTool struct{}

func init() {
	registry.Register(&GenerateTool{})
	registry.Register(&StatusTool{})
}

// Definition returns the generate_document tool definition
func (t *GenerateTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"generate_document",
		mcp.WithDescription(`Start a multi-stage document generation task: the request is distilled into a brief, an outline is generated and refined against the knowledge base, chapters are written with supporting passages and images, and the result is assembled into markdown and DOCX. Returns a task ID to poll with document_status. Requires an LLM API key.`),
		mcp.WithString("request",
			mcp.Required(),
			mcp.Description("The document request, e.g. 'write a detailed impact assessment report for ...'"),
		),
		mcp.WithString("chat_history",
			mcp.Description("Prior conversation context that informs the document (optional)"),
		),
		mcp.WithString("report_type",
			mcp.Description("'long' for the full outline-driven workflow, 'short' for a single-pass report of up to 2000 words (default: long)"),
			mcp.DefaultString(ReportTypeLong),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Run the task to completion before returning instead of returning the task ID immediately (default: false)"),
			mcp.DefaultBool(false),
		),
	)
}

// Execute starts the generation task
func (t *GenerateTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	if !tools.IsToolEnabled("generate_document") {
		return nil, fmt.Errorf("generate_document tool is not enabled. Set ENABLE_ADDITIONAL_TOOLS environment variable to include 'generate_document'")
	}

	request, ok := args["request"].(string)
	if !ok || request == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: request")
	}
	chatHistory, _ := args["chat_history"].(string)
	reportType := ReportTypeLong
	if rt, ok := args["report_type"].(string); ok && rt != "" {
		if rt != ReportTypeLong && rt != ReportTypeShort {
			return nil, fmt.Errorf("invalid report_type %q (expected 'long' or 'short')", rt)
		}
		reportType = rt
	}
	wait, _ := args["wait"].(bool)

	generator, err := NewGenerator(logger)
	if err != nil {
		return nil, err
	}

	taskID := uuid.NewString()

	if wait {
		if err := generator.StartNewJob(ctx, taskID, chatHistory, request, reportType); err != nil {
			return nil, err
		}
		task, err := generator.Store().Load(taskID)
		if err != nil {
			return nil, err
		}
		return newToolResultJSON(task.Summary())
	}

	if _, err := generator.Store().NewTask(taskID, InitialRequest{ChatHistory: chatHistory, Request: request}, reportType); err != nil {
		return nil, err
	}

	// Detached from the request context: the task must survive the end of
	// this tool call.
	go generator.Run(context.Background(), taskID)

	logger.WithField("task_id", taskID).Info("Generation task started in background")

	return newToolResultJSON(map[string]any{
		"taskId":  taskID,
		"status":  StatusPending,
		"message": "Task started. Poll document_status with this taskId for progress.",
	})
}

// Definition returns the document_status tool definition
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"document_status",
		mcp.WithDescription(`Check the progress of a document generation task started with generate_document. Returns the overall status, progress percentage, current stage message and, once completed, the public URLs of the markdown and DOCX outputs.`),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("The task ID returned by generate_document"),
		),
	)
}

// Execute reports the task status
func (t *StatusTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: task_id")
	}

	store := NewTaskStore()
	task, err := store.Load(taskID)
	if err != nil {
		return newToolResultJSON(map[string]any{
			"success": false,
			"error":   err.Error(),
			"taskId":  taskID,
		})
	}

	return newToolResultJSON(task.Summary())
}

func newToolResultJSON(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ProvideExtendedInfo provides usage details for generate_document
func (t *GenerateTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Start a long report and poll for completion",
				Arguments: map[string]any{
					"request":      "Write a detailed impact assessment report for the community centre construction project next to the old temple.",
					"chat_history": "We previously discussed the structural design notes for building one.",
				},
				ExpectedResult: "Returns a taskId immediately; document_status shows progress through brief, outline, chapters and assembly",
			},
			{
				Description: "Generate a short report synchronously",
				Arguments: map[string]any{
					"request":     "Write a 1500-word analysis of AI's impact on the marketing industry.",
					"report_type": "short",
					"wait":        true,
				},
				ExpectedResult: "Blocks until done and returns the final status with output URLs",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Task stays in failed status",
				Solution: "Load the task file from the tasks directory and inspect its errorLog for the failing stage. Common causes are missing LLM credentials and unreachable search endpoints.",
			},
			{
				Problem:  "No markdownPublicUrl or docxPublicUrl after completion",
				Solution: "Uploads only happen when object storage is configured. The local files are still written to the tasks directory. DOCX additionally requires pandoc on the host.",
			},
		},
		ParameterDetails: map[string]string{
			"report_type": "'long' runs the full pipeline (brief, outline, refinement, per-chapter generation, assembly). 'short' produces the whole document in one model call.",
			"wait":        "Long reports can take many minutes; prefer polling unless the caller handles long-running requests well.",
		},
		WhenToUse:    "Use for producing complete multi-chapter documents grounded in the knowledge base, or quick single-pass short reports.",
		WhenNotToUse: "Don't use for filling existing templates (fill_template) or format conversion alone (convert_document).",
	}
}
