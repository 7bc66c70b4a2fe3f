package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/quillhaven/docsmith/internal/llm"
	"github.com/quillhaven/docsmith/internal/storage"
	"github.com/quillhaven/docsmith/internal/tools/convert"
	"github.com/quillhaven/docsmith/internal/tools/docsearch"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxRefinementCycles bounds the outline review loop
	DefaultMaxRefinementCycles = 3
	MaxRefinementCyclesEnvVar  = "DOCSMITH_MAX_REFINEMENT_CYCLES"
)

// Generator drives a document generation task through its stages, persisting
// state after every step so a crashed run can be resumed and progress can be
// polled from another process.
type Generator struct {
	store  *TaskStore
	llm    *llm.Client
	search *docsearch.SearchClient
	logger *logrus.Logger
}

// NewGenerator wires a generator from environment configuration
func NewGenerator(logger *logrus.Logger) (*Generator, error) {
	if !llm.IsConfigured() {
		return nil, fmt.Errorf("document generation requires an LLM. Set %s, %s and %s", llm.EnvAPIBase, llm.EnvModel, llm.EnvAPIKey)
	}
	client, err := llm.NewClient()
	if err != nil {
		return nil, err
	}
	return &Generator{
		store:  NewTaskStore(),
		llm:    client,
		search: docsearch.NewSearchClient(logger),
		logger: logger,
	}, nil
}

// Store exposes the generator's task store
func (g *Generator) Store() *TaskStore {
	return g.store
}

// StartNewJob creates the task state and runs the workflow to completion.
// Returns the task ID; errors during the run are recorded on the task, so
// callers poll rather than inspect the return value.
func (g *Generator) StartNewJob(ctx context.Context, taskID, chatHistory, request, reportType string) error {
	if reportType != ReportTypeShort {
		reportType = ReportTypeLong
	}

	g.logger.WithFields(logrus.Fields{
		"task_id":     taskID,
		"report_type": reportType,
	}).Info("Starting generation task")

	if _, err := g.store.NewTask(taskID, InitialRequest{ChatHistory: chatHistory, Request: request}, reportType); err != nil {
		return err
	}
	g.Run(ctx, taskID)
	return nil
}

// Run advances a task until it completes or fails
func (g *Generator) Run(ctx context.Context, taskID string) {
	task, err := g.store.Load(taskID)
	if err != nil {
		g.logger.WithError(err).WithField("task_id", taskID).Error("Cannot load task")
		return
	}

	if resumed := resumeStatus(task); resumed != task.Status {
		g.logger.WithFields(logrus.Fields{
			"task_id":     taskID,
			"interrupted": task.Status,
			"resuming_at": resumed,
		}).Info("Task was interrupted mid-stage, re-entering the stage")
		task.Status = resumed
	}

	for task.Status != StatusCompleted && task.Status != StatusFailed {
		if err := ctx.Err(); err != nil {
			_ = g.store.LogError(task, task.Status, "generation cancelled: "+err.Error())
			return
		}

		var stageErr error
		switch task.Status {
		case StatusPending:
			stageErr = g.prepareCreativeBrief(ctx, task)
		case StatusBriefPrepared:
			if task.ReportType == ReportTypeShort {
				stageErr = g.generateShortReport(ctx, task)
			} else {
				stageErr = g.generateInitialOutline(ctx, task)
			}
		case StatusOutlineGenerated:
			stageErr = g.refineOutline(ctx, task)
		case StatusOutlineFinalized:
			stageErr = g.generateAllChapters(ctx, task)
		case StatusChaptersGenerated:
			stageErr = g.assembleFinalDocument(ctx, task, false)
		case StatusShortReportGenerated:
			stageErr = g.assembleFinalDocument(ctx, task, true)
		default:
			g.logger.WithField("status", task.Status).Error("Task is in an unknown state")
			_ = g.store.LogError(task, "run_loop", fmt.Sprintf("task is in an unknown state: %s", task.Status))
			return
		}

		if stageErr != nil {
			g.logger.WithError(stageErr).WithFields(logrus.Fields{
				"task_id": taskID,
				"stage":   task.Status,
			}).Error("Generation stage failed")
			_ = g.store.LogError(task, task.Status, stageErr.Error())
			return
		}
	}

	if task.Status == StatusCompleted {
		g.logger.WithField("task_id", taskID).Info("Generation task completed")
	}
}

// resumeStatus maps the in-progress labels UpdateStatus persists mid-stage
// back to the checkpoint that owns them, so a task reloaded after a crash
// re-enters its interrupted stage instead of stalling non-terminal.
func resumeStatus(task *Task) string {
	switch task.Status {
	case "brief_generation":
		return StatusPending
	case "outline_generation", "short_report_generation":
		return StatusBriefPrepared
	case "outline_refinement":
		return StatusOutlineGenerated
	case "content_generation":
		return StatusOutlineFinalized
	case "assembling":
		if task.ReportType == ReportTypeShort {
			return StatusShortReportGenerated
		}
		return StatusChaptersGenerated
	}
	return task.Status
}

// prepareCreativeBrief distils the chat history and request into a creative
// brief and a short project name used to scope knowledge base queries.
func (g *Generator) prepareCreativeBrief(ctx context.Context, task *Task) error {
	if err := g.store.UpdateStatus(task, "brief_generation", "Analysing chat history and request.", 5); err != nil {
		return err
	}

	briefPrompt := fmt.Sprintf(`You are a senior report writer. From the conversation below and the final request, distil a creative brief for the document to be written. The brief must state the subject, the nature of the work and the core requirements.
[Conversation]
%s
[Final request]
%s
Return your analysis as JSON with a single 'creative_brief' field.`, task.InitialRequest.ChatHistory, task.InitialRequest.Request)

	var briefResp struct {
		CreativeBrief string `json:"creative_brief"`
	}
	if err := g.llm.ChatJSON(ctx, briefPrompt, "", &briefResp); err != nil {
		return fmt.Errorf("brief generation failed: %w", err)
	}
	if strings.TrimSpace(briefResp.CreativeBrief) == "" {
		return fmt.Errorf("model did not produce a creative_brief")
	}
	task.CreativeBrief = briefResp.CreativeBrief

	if err := g.store.UpdateStatus(task, "brief_generation", "Distilling project name for retrieval.", 7); err != nil {
		return err
	}

	namePrompt := fmt.Sprintf(`From the creative brief below, extract a short core project name or topic to optimise knowledge base retrieval.
Return JSON with a single 'project_name' field.
Creative brief: %s`, task.CreativeBrief)

	var nameResp struct {
		ProjectName string `json:"project_name"`
	}
	if err := g.llm.ChatJSON(ctx, namePrompt, "", &nameResp); err != nil {
		return fmt.Errorf("project name extraction failed: %w", err)
	}
	task.ProjectName = nameResp.ProjectName
	g.logger.WithField("project_name", task.ProjectName).Debug("Distilled project name")

	task.Status = StatusBriefPrepared
	return g.store.Save(task)
}

// generateInitialOutline asks the model for a structured chapter plan
func (g *Generator) generateInitialOutline(ctx context.Context, task *Task) error {
	if err := g.store.UpdateStatus(task, "outline_generation", "Generating initial outline.", 10); err != nil {
		return err
	}

	prompt := fmt.Sprintf(`You are an experienced report writer. From the project information below, generate a professional structured outline for the report as JSON.
The root object must have a 'chapters' list. Each entry must have exactly these fields:
1. 'chapterId' (string, e.g. "ch_01")
2. 'title' (string, the chapter title)
3. 'key_points' (list of strings, the key points the chapter must cover)
Project information: %s`, task.CreativeBrief)

	var resp struct {
		Chapters []*Chapter `json:"chapters"`
	}
	if err := g.llm.ChatJSON(ctx, prompt, "", &resp); err != nil {
		return fmt.Errorf("outline generation failed: %w", err)
	}
	if resp.Chapters == nil {
		return fmt.Errorf("model did not produce a valid outline (missing 'chapters')")
	}

	task.Outline = Outline{
		Metadata: OutlineMetadata{RefinementCycles: 0},
		Chapters: resp.Chapters,
	}
	task.Status = StatusOutlineGenerated
	return g.store.Save(task)
}

// refineOutline runs the critique/retrieve/integrate loop until the model
// finds no gaps or the cycle limit is reached.
func (g *Generator) refineOutline(ctx context.Context, task *Task) error {
	if err := g.store.UpdateStatus(task, "outline_refinement", "Starting outline review and refinement.", 15); err != nil {
		return err
	}

	maxCycles := maxRefinementCycles()
	for i := 0; i < maxCycles; i++ {
		if err := g.store.UpdateStatus(task, "outline_refinement",
			fmt.Sprintf("Refinement cycle %d: model self-review.", i+1), 15+i*5); err != nil {
			return err
		}

		outlineJSON, err := json.Marshal(task.Outline.Chapters)
		if err != nil {
			return fmt.Errorf("failed to serialise outline: %w", err)
		}

		critiquePrompt := fmt.Sprintf(`You are a top reviewer examining a report outline submitted for approval.
Check whether the outline covers every stage a complete report of this kind needs: basis and references, current situation, impact analysis, mitigation measures, and conclusions with recommendations.
Return JSON whose root object contains a 'gaps_identified' list. Each entry represents a chapter that must be added or corrected and has these fields:
1. 'chapterId'
2. 'title'
3. 'query_keywords' (recommended keywords for retrieving regulations or precedents)
Return an empty 'gaps_identified' list only if the outline is already complete and well structured.
Outline: %s`, outlineJSON)

		var critique struct {
			GapsIdentified []struct {
				ChapterID     string   `json:"chapterId"`
				Title         string   `json:"title"`
				QueryKeywords []string `json:"query_keywords"`
			} `json:"gaps_identified"`
		}
		if err := g.llm.ChatJSON(ctx, critiquePrompt, "", &critique); err != nil {
			return fmt.Errorf("outline critique failed: %w", err)
		}
		if len(critique.GapsIdentified) == 0 {
			g.logger.Debug("Review complete, outline judged sufficient")
			break
		}

		if err := g.store.UpdateStatus(task, "outline_refinement",
			fmt.Sprintf("Found %d outline gaps, retrieving knowledge.", len(critique.GapsIdentified)), 16+i*5); err != nil {
			return err
		}

		var knowledge []string
		var gapTitles []string
		for _, gap := range critique.GapsIdentified {
			if gap.Title != "" {
				gapTitles = append(gapTitles, gap.Title)
			}
			for _, keyword := range gap.QueryKeywords {
				query := strings.TrimSpace(task.ProjectName + " " + keyword)
				pieces, err := g.search.SearchText(ctx, query, docsearch.DefaultTopK)
				if err != nil {
					g.logger.WithError(err).Debug("Knowledge retrieval failed, continuing")
					continue
				}
				knowledge = append(knowledge, pieces...)
			}
		}

		if len(knowledge) == 0 {
			g.logger.Debug("No knowledge retrieved, skipping this enhancement cycle")
			continue
		}

		integratePrompt := fmt.Sprintf(`Using the background material below, expand and improve this report outline, especially the chapters about '%s'.
Return the complete updated outline as JSON with the same structure as the original (a root object with a 'chapters' list).
Background material: %s
Original outline: %s`, strings.Join(gapTitles, ", "), strings.Join(knowledge, "\n\n---\n\n"), outlineJSON)

		var updated struct {
			Chapters []*Chapter `json:"chapters"`
		}
		if err := g.llm.ChatJSON(ctx, integratePrompt, "", &updated); err != nil {
			return fmt.Errorf("outline integration failed: %w", err)
		}
		if updated.Chapters != nil {
			task.Outline.Chapters = updated.Chapters
		}
		task.Outline.Metadata.RefinementCycles = i + 1
		if err := g.store.Save(task); err != nil {
			return err
		}
	}

	task.Status = StatusOutlineFinalized
	return g.store.UpdateStatus(task, StatusOutlineFinalized, "Outline finalised, ready to generate content.", 30)
}

// generateAllChapters writes each chapter in order, carrying the previous
// chapter's summary forward for smooth transitions and attaching any related
// images found in the knowledge base.
func (g *Generator) generateAllChapters(ctx context.Context, task *Task) error {
	chapters := task.Outline.Chapters
	total := len(chapters)
	if total == 0 {
		g.logger.Warn("Outline is empty, no chapters to generate")
		task.Status = StatusChaptersGenerated
		return g.store.Save(task)
	}

	outlineContext, err := json.Marshal(outlineForContext(chapters))
	if err != nil {
		return fmt.Errorf("failed to serialise outline context: %w", err)
	}

	for i, chapter := range chapters {
		progress := 30 + int(float64(i)/float64(total)*60)
		if err := g.store.UpdateStatus(task, "content_generation",
			fmt.Sprintf("Generating chapter %d/%d: %q.", i+1, total, chapter.Title), progress); err != nil {
			return err
		}

		query := strings.TrimSpace(task.ProjectName + " " + chapter.Title)
		knowledge, searchErr := g.search.SearchText(ctx, query, docsearch.DefaultTopK)
		if searchErr != nil {
			g.logger.WithError(searchErr).Debug("Chapter knowledge retrieval failed, continuing without it")
		}

		var contextBuilder strings.Builder
		fmt.Fprintf(&contextBuilder, "This is the structure of the full outline: %s\n", outlineContext)
		if i > 0 {
			if prev := chapters[i-1].Summary; prev != "" {
				fmt.Fprintf(&contextBuilder, "\nNote: the previous chapter's core content is summarised as: %q. Open this chapter with a natural transition from it.\n", prev)
			} else {
				fmt.Fprintf(&contextBuilder, "The previous chapter was about '%s'.\n", chapters[i-1].Title)
			}
		}
		if len(knowledge) > 0 {
			fmt.Fprintf(&contextBuilder, "\nWhile writing this chapter, draw on the following background material for accuracy and depth: %s\n", strings.Join(knowledge, "\n\n---\n\n"))
		}

		prompt := fmt.Sprintf(`You are an experienced report writer. Write the body of the chapter %q, covering these key points: %s.
Use an objective, professional tone and well-structured paragraphs.
Output only the chapter body. Do not repeat the chapter title at the start.`, chapter.Title, strings.Join(chapter.KeyPoints, "; "))

		content, err := g.llm.Chat(ctx, prompt, contextBuilder.String())
		if err != nil {
			return fmt.Errorf("chapter %q generation failed: %w", chapter.Title, err)
		}
		chapter.Content = content

		summaryPrompt := fmt.Sprintf("Summarise the following text into one or two concise sentences capturing its core point, for use as a bridge between chapters.\n\nText:\n%s", content)
		summary, err := g.llm.Chat(ctx, summaryPrompt, "")
		if err != nil {
			return fmt.Errorf("chapter %q summary failed: %w", chapter.Title, err)
		}
		chapter.Summary = summary

		if g.search.HasImageSearch() {
			imageURLs, imgErr := g.search.SearchImages(ctx, query, docsearch.DefaultTopK, docsearch.DefaultMinScore)
			if imgErr != nil {
				g.logger.WithError(imgErr).Debug("Chapter image retrieval failed")
			} else if len(imageURLs) > 0 {
				chapter.ImageURLs = imageURLs
				g.logger.WithField("count", len(imageURLs)).Debug("Retrieved chapter images")
			}
		}

		if err := g.store.Save(task); err != nil {
			return err
		}
	}

	task.Status = StatusChaptersGenerated
	return g.store.Save(task)
}

// generateShortReport writes the whole document in a single pass
func (g *Generator) generateShortReport(ctx context.Context, task *Task) error {
	if err := g.store.UpdateStatus(task, "short_report_generation", "Generating short report content.", 20); err != nil {
		return err
	}

	knowledgeContext := ""
	if g.search.HasTextSearch() {
		pieces, err := g.search.SearchText(ctx, task.ProjectName, docsearch.DefaultTopK)
		if err != nil {
			g.logger.WithError(err).Debug("Short report knowledge retrieval failed")
		} else if len(pieces) > 0 {
			knowledgeContext = fmt.Sprintf("\nDraw on the following background material while writing:\n%s\n", strings.Join(pieces, "\n\n---\n\n"))
		}
	}

	prompt := fmt.Sprintf(`You are a professional report writer. From the project brief and background material below, write a well-structured, fluent short report of at most 2000 words.
Divide the text into logical parts, marking each part's title with a markdown level-two heading (##).

[Project brief]
%s
%s
Output the complete report directly in markdown.`, task.CreativeBrief, knowledgeContext)

	content, err := g.llm.Chat(ctx, prompt, "")
	if err != nil {
		return fmt.Errorf("short report generation failed: %w", err)
	}

	task.FinalDocument = content
	task.Status = StatusShortReportGenerated
	return g.store.Save(task)
}

// assembleFinalDocument writes the markdown artefact, converts it to DOCX
// and uploads both. Long reports get a generated introduction and conclusion
// wrapped around the chapters first.
func (g *Generator) assembleFinalDocument(ctx context.Context, task *Task, isShortReport bool) error {
	if isShortReport {
		if err := g.store.UpdateStatus(task, "assembling", "Preparing short report files.", 95); err != nil {
			return err
		}
	} else {
		if err := g.store.UpdateStatus(task, "assembling", "All chapters generated, assembling document.", 95); err != nil {
			return err
		}
		if err := g.composeLongDocument(ctx, task); err != nil {
			return err
		}
	}

	if err := g.writeAndUploadMarkdown(ctx, task); err != nil {
		g.logger.WithError(err).Warn("Markdown handling failed")
		task.ErrorLog = append(task.ErrorLog, TaskError{Stage: "markdown_handling", Message: err.Error()})
	}

	if err := g.convertAndUploadDocx(ctx, task); err != nil {
		g.logger.WithError(err).Warn("DOCX conversion failed")
		task.ErrorLog = append(task.ErrorLog, TaskError{Stage: "docx_conversion", Message: err.Error()})
	}

	return g.store.UpdateStatus(task, StatusCompleted, "Document generated successfully.", 100)
}

// composeLongDocument generates the introduction and conclusion and stitches
// the full markdown together.
func (g *Generator) composeLongDocument(ctx context.Context, task *Task) error {
	chapters := task.Outline.Chapters
	outlineContext, err := json.Marshal(outlineForContext(chapters))
	if err != nil {
		return fmt.Errorf("failed to serialise outline context: %w", err)
	}

	introPrompt := `You are an experienced report writer. Using the full report outline provided as context, write the "Introduction" section.
It should cover the project background, the purpose of the work, the approach taken, and the structure of the report, in an objective and professional tone.
Output only the introduction body, with no meta commentary.`
	introduction, err := g.llm.Chat(ctx, introPrompt, string(outlineContext))
	if err != nil {
		return fmt.Errorf("introduction generation failed: %w", err)
	}
	task.Introduction = introduction

	conclusionPrompt := `You are an experienced report writer. Using the full report outline provided as context, write the "Conclusions and Recommendations" section.
State clearly whether the assessed impact is acceptable and summarise the key measures recommended, in an objective and professional tone.
Output only the section body, with no meta commentary.`
	conclusion, err := g.llm.Chat(ctx, conclusionPrompt, string(outlineContext))
	if err != nil {
		return fmt.Errorf("conclusion generation failed: %w", err)
	}
	task.Conclusion = conclusion

	task.FinalDocument = AssembleMarkdown(introduction, chapters, conclusion)
	return g.store.Save(task)
}

// AssembleMarkdown stitches the final document from its generated parts
func AssembleMarkdown(introduction string, chapters []*Chapter, conclusion string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Introduction\n\n%s", introduction)
	for _, chapter := range chapters {
		fmt.Fprintf(&sb, "\n\n## %s\n\n", chapter.Title)
		sb.WriteString(chapter.Content)
		for _, url := range chapter.ImageURLs {
			alt := chapter.Title
			if alt == "" {
				alt = "chapter illustration"
			}
			fmt.Fprintf(&sb, "\n\n![%s](%s)\n", alt, url)
		}
	}
	sb.WriteString("\n\n## Conclusions and Recommendations\n\n")
	sb.WriteString(conclusion)
	return sb.String()
}

// writeAndUploadMarkdown saves the final markdown beside the task state and
// uploads it when storage is configured.
func (g *Generator) writeAndUploadMarkdown(ctx context.Context, task *Task) error {
	if strings.TrimSpace(task.FinalDocument) == "" {
		return fmt.Errorf("finalDocument is empty, nothing to write")
	}

	filename := fmt.Sprintf("task_%s.md", task.TaskID)
	path := filepath.Join(g.store.Dir(), filename)
	if err := os.WriteFile(path, []byte(task.FinalDocument), 0600); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}
	g.logger.WithField("path", path).Debug("Markdown document written")

	store, err := storage.NewFromEnv(g.logger)
	if err != nil || !store.IsAvailable() {
		g.logger.Debug("Object storage not configured, skipping markdown upload")
		return nil
	}

	url, err := store.UploadFile(ctx, path, filename)
	if err != nil {
		return fmt.Errorf("markdown upload failed: %w", err)
	}
	task.MarkdownPublicURL = url
	return g.store.Save(task)
}

// convertAndUploadDocx converts the saved markdown to DOCX with pandoc and
// uploads the result when storage is configured.
func (g *Generator) convertAndUploadDocx(ctx context.Context, task *Task) error {
	mdPath := filepath.Join(g.store.Dir(), fmt.Sprintf("task_%s.md", task.TaskID))
	if _, err := os.Stat(mdPath); err != nil {
		return fmt.Errorf("markdown source %s not found, skipping DOCX conversion", mdPath)
	}

	docxFilename := fmt.Sprintf("task_%s.docx", task.TaskID)
	docxPath := filepath.Join(g.store.Dir(), docxFilename)
	if err := convert.MarkdownToDocx(ctx, g.logger, mdPath, docxPath); err != nil {
		return err
	}

	store, err := storage.NewFromEnv(g.logger)
	if err != nil || !store.IsAvailable() {
		g.logger.Debug("Object storage not configured, skipping DOCX upload")
		return nil
	}

	url, err := store.UploadFile(ctx, docxPath, docxFilename)
	if err != nil {
		return fmt.Errorf("DOCX upload failed: %w", err)
	}
	task.DocxPublicURL = url
	return g.store.Save(task)
}

// outlineForContext strips generated content from chapters so prompts only
// carry the plan, not the (potentially huge) bodies.
func outlineForContext(chapters []*Chapter) []map[string]any {
	clean := make([]map[string]any, 0, len(chapters))
	for _, ch := range chapters {
		clean = append(clean, map[string]any{
			"title":      ch.Title,
			"key_points": ch.KeyPoints,
		})
	}
	return clean
}

func maxRefinementCycles() int {
	if raw := os.Getenv(MaxRefinementCyclesEnvVar); raw != "" {
		if cycles, err := strconv.Atoi(raw); err == nil && cycles > 0 {
			return cycles
		}
	}
	return DefaultMaxRefinementCycles
}
