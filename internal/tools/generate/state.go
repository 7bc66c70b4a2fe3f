package generate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Task statuses. Long reports move pending -> brief_prepared ->
// outline_generated -> outline_finalized -> chapters_generated ->
// completed; short reports skip the outline stages via
// short_report_generated. Any stage can end in failed.
const (
	StatusPending              = "pending"
	StatusBriefPrepared        = "brief_prepared"
	StatusOutlineGenerated     = "outline_generated"
	StatusOutlineFinalized     = "outline_finalized"
	StatusChaptersGenerated    = "chapters_generated"
	StatusShortReportGenerated = "short_report_generated"
	StatusCompleted            = "completed"
	StatusFailed               = "failed"
)

// Report types
const (
	ReportTypeLong  = "long"
	ReportTypeShort = "short"
)

const TasksDirEnvVar = "DOCSMITH_TASKS_DIR"

// Task is the persisted state of one generation job. The JSON layout is the
// polling contract, so field names are camelCase.
type Task struct {
	TaskID               string         `json:"taskId"`
	Status               string         `json:"status"`
	ProgressPercentage   int            `json:"progressPercentage"`
	CurrentStatusMessage string         `json:"currentStatusMessage"`
	InitialRequest       InitialRequest `json:"initialRequest"`
	ReportType           string         `json:"reportType"`
	CreativeBrief        string         `json:"creativeBrief"`
	ProjectName          string         `json:"projectName"`
	Introduction         string         `json:"introduction"`
	Conclusion           string         `json:"conclusion"`
	Outline              Outline        `json:"outline"`
	FinalDocument        string         `json:"finalDocument"`
	MarkdownPublicURL    string         `json:"markdownPublicUrl"`
	DocxPublicURL        string         `json:"docxPublicUrl"`
	ErrorLog             []TaskError    `json:"errorLog"`
	LastUpdatedTimestamp string         `json:"lastUpdatedTimestamp,omitempty"`
}

// InitialRequest captures what the caller asked for
type InitialRequest struct {
	ChatHistory string `json:"chathistory"`
	Request     string `json:"request"`
}

// Outline is the chapter plan of a long report
type Outline struct {
	Metadata OutlineMetadata `json:"metadata"`
	Chapters []*Chapter      `json:"chapters"`
}

// OutlineMetadata tracks how the outline evolved
type OutlineMetadata struct {
	RefinementCycles int `json:"refinementCycles"`
}

// Chapter is one outline entry, filled in during content generation
type Chapter struct {
	ChapterID string   `json:"chapterId"`
	Title     string   `json:"title"`
	KeyPoints []string `json:"key_points"`
	Content   string   `json:"content,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// TaskError is one entry of the task's error log
type TaskError struct {
	Timestamp string `json:"timestamp"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
}

// TaskStore reads and writes task state files. A file lock guards each task
// so the HTTP API and MCP server can share a tasks directory.
type TaskStore struct {
	dir string
}

// NewTaskStore creates a store rooted at DOCSMITH_TASKS_DIR, defaulting to
// ~/.docsmith/tasks.
func NewTaskStore() *TaskStore {
	dir := os.Getenv(TasksDirEnvVar)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		dir = filepath.Join(home, ".docsmith", "tasks")
	}
	return &TaskStore{dir: dir}
}

// Dir returns the tasks directory
func (s *TaskStore) Dir() string {
	return s.dir
}

// NewTask initialises and persists a fresh task
func (s *TaskStore) NewTask(taskID string, request InitialRequest, reportType string) (*Task, error) {
	task := &Task{
		TaskID:               taskID,
		Status:               StatusPending,
		ProgressPercentage:   0,
		CurrentStatusMessage: "Task created, waiting for initialisation.",
		InitialRequest:       request,
		ReportType:           reportType,
		ErrorLog:             []TaskError{},
		Outline:              Outline{Chapters: []*Chapter{}},
	}
	if err := s.Save(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Load reads a task's state file
func (s *TaskStore) Load(taskID string) (*Task, error) {
	// Probing a nonexistent task must not leave a lock file behind.
	if !s.Exists(taskID) {
		return nil, fmt.Errorf("task %s not found", taskID)
	}

	unlock, err := s.lock(taskID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(s.taskPath(taskID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task state: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to parse task state: %w", err)
	}
	return &task, nil
}

// Save writes a task's state file, stamping the update time
func (s *TaskStore) Save(task *Task) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create tasks directory: %w", err)
	}

	unlock, err := s.lock(task.TaskID)
	if err != nil {
		return err
	}
	defer unlock()

	task.LastUpdatedTimestamp = time.Now().UTC().Format("2006-01-02T15:04:05Z")

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task state: %w", err)
	}
	if err := os.WriteFile(s.taskPath(task.TaskID), data, 0600); err != nil {
		return fmt.Errorf("failed to write task state: %w", err)
	}
	return nil
}

// Exists reports whether a task state file is present
func (s *TaskStore) Exists(taskID string) bool {
	_, err := os.Stat(s.taskPath(taskID))
	return err == nil
}

// UpdateStatus sets status, message and progress and persists the task.
// Terminal statuses also release the task's lock file, since no further
// writers are expected.
func (s *TaskStore) UpdateStatus(task *Task, status, message string, progress int) error {
	task.Status = status
	task.CurrentStatusMessage = message
	task.ProgressPercentage = progress
	if err := s.Save(task); err != nil {
		return err
	}
	if status == StatusCompleted || status == StatusFailed {
		s.removeLock(task.TaskID)
	}
	return nil
}

// LogError appends to the task's error log and marks it failed
func (s *TaskStore) LogError(task *Task, stage, message string) error {
	task.ErrorLog = append(task.ErrorLog, TaskError{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Stage:     stage,
		Message:   message,
	})
	return s.UpdateStatus(task, StatusFailed, fmt.Sprintf("Error during stage %s.", stage), task.ProgressPercentage)
}

func (s *TaskStore) taskPath(taskID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("task_%s.json", taskID))
}

// removeLock deletes a task's lock file. Only called once the task is
// terminal; a concurrent late reader simply recreates it.
func (s *TaskStore) removeLock(taskID string) {
	_ = os.Remove(s.taskPath(taskID) + ".lock")
}

// lock takes the per-task file lock and returns its release func
func (s *TaskStore) lock(taskID string) (func(), error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create tasks directory: %w", err)
	}

	fl := flock.New(s.taskPath(taskID) + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock task %s: %w", taskID, err)
	}
	return func() { _ = fl.Unlock() }, nil
}

// StatusSummary is the polling contract returned by document_status and the
// HTTP status endpoint.
type StatusSummary struct {
	TaskID             string `json:"taskId"`
	OverallStatus      string `json:"overallStatus"`
	ProgressPercentage int    `json:"progressPercentage"`
	Message            string `json:"message"`
	LastUpdated        string `json:"lastUpdated"`
	MarkdownPublicURL  string `json:"markdownPublicUrl"`
	DocxPublicURL      string `json:"docxPublicUrl"`
}

// Summary builds the polling view of a task
func (t *Task) Summary() *StatusSummary {
	lastUpdated := t.LastUpdatedTimestamp
	if lastUpdated == "" {
		lastUpdated = "N/A"
	}
	return &StatusSummary{
		TaskID:             t.TaskID,
		OverallStatus:      t.Status,
		ProgressPercentage: t.ProgressPercentage,
		Message:            t.CurrentStatusMessage,
		LastUpdated:        lastUpdated,
		MarkdownPublicURL:  t.MarkdownPublicURL,
		DocxPublicURL:      t.DocxPublicURL,
	}
}
