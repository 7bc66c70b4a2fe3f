package generate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *TaskStore {
	t.Helper()
	t.Setenv(TasksDirEnvVar, t.TempDir())
	return NewTaskStore()
}

func TestNewTaskInitialState(t *testing.T) {
	store := newTestStore(t)

	task, err := store.NewTask("abc-123", InitialRequest{
		ChatHistory: "we discussed the project",
		Request:     "write the report",
	}, ReportTypeLong)
	require.NoError(t, err)

	assert.Equal(t, "abc-123", task.TaskID)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 0, task.ProgressPercentage)
	assert.Equal(t, ReportTypeLong, task.ReportType)
	assert.NotEmpty(t, task.LastUpdatedTimestamp, "save stamps the timestamp")
	assert.Empty(t, task.ErrorLog)

	assert.True(t, store.Exists("abc-123"))
	assert.False(t, store.Exists("missing"))
}

func TestTaskStateFileLayout(t *testing.T) {
	store := newTestStore(t)

	_, err := store.NewTask("layout-1", InitialRequest{Request: "r"}, ReportTypeShort)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(store.Dir(), "task_layout-1.json"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	// Polling clients depend on these exact key names.
	for _, key := range []string{
		"taskId", "status", "progressPercentage", "currentStatusMessage",
		"initialRequest", "reportType", "creativeBrief", "projectName",
		"introduction", "conclusion", "outline", "finalDocument",
		"markdownPublicUrl", "docxPublicUrl", "errorLog", "lastUpdatedTimestamp",
	} {
		assert.Contains(t, raw, key)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	task, err := store.NewTask("rt-1", InitialRequest{Request: "r"}, ReportTypeLong)
	require.NoError(t, err)

	task.CreativeBrief = "brief"
	task.ProjectName = "Orion"
	task.Outline = Outline{
		Metadata: OutlineMetadata{RefinementCycles: 2},
		Chapters: []*Chapter{
			{ChapterID: "ch_01", Title: "Overview", KeyPoints: []string{"a", "b"}, Summary: "sum"},
		},
	}
	require.NoError(t, store.Save(task))

	loaded, err := store.Load("rt-1")
	require.NoError(t, err)

	assert.Equal(t, "brief", loaded.CreativeBrief)
	assert.Equal(t, "Orion", loaded.ProjectName)
	assert.Equal(t, 2, loaded.Outline.Metadata.RefinementCycles)
	require.Len(t, loaded.Outline.Chapters, 1)
	assert.Equal(t, "Overview", loaded.Outline.Chapters[0].Title)
}

func TestLoadMissingTask(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUpdateStatus(t *testing.T) {
	store := newTestStore(t)

	task, err := store.NewTask("st-1", InitialRequest{Request: "r"}, ReportTypeLong)
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(task, "outline_generation", "Generating outline.", 10))

	loaded, err := store.Load("st-1")
	require.NoError(t, err)
	assert.Equal(t, "outline_generation", loaded.Status)
	assert.Equal(t, "Generating outline.", loaded.CurrentStatusMessage)
	assert.Equal(t, 10, loaded.ProgressPercentage)
}

func TestLogErrorMarksTaskFailed(t *testing.T) {
	store := newTestStore(t)

	task, err := store.NewTask("err-1", InitialRequest{Request: "r"}, ReportTypeLong)
	require.NoError(t, err)
	task.ProgressPercentage = 42

	require.NoError(t, store.LogError(task, "content_generation", "model timeout"))

	loaded, err := store.Load("err-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, loaded.Status)
	assert.Equal(t, 42, loaded.ProgressPercentage, "progress is preserved on failure")
	require.Len(t, loaded.ErrorLog, 1)
	assert.Equal(t, "content_generation", loaded.ErrorLog[0].Stage)
	assert.Equal(t, "model timeout", loaded.ErrorLog[0].Message)
	assert.NotEmpty(t, loaded.ErrorLog[0].Timestamp)
}

func TestSummary(t *testing.T) {
	task := &Task{
		TaskID:               "sum-1",
		Status:               StatusCompleted,
		ProgressPercentage:   100,
		CurrentStatusMessage: "Document generated successfully.",
		LastUpdatedTimestamp: "2026-01-01T00:00:00Z",
		MarkdownPublicURL:    "http://minio.test/docs/task_sum-1.md",
		DocxPublicURL:        "http://minio.test/docs/task_sum-1.docx",
	}

	summary := task.Summary()

	assert.Equal(t, "sum-1", summary.TaskID)
	assert.Equal(t, StatusCompleted, summary.OverallStatus)
	assert.Equal(t, 100, summary.ProgressPercentage)
	assert.Equal(t, "http://minio.test/docs/task_sum-1.md", summary.MarkdownPublicURL)
	assert.Equal(t, "http://minio.test/docs/task_sum-1.docx", summary.DocxPublicURL)
}

func TestSummaryWithoutTimestamp(t *testing.T) {
	task := &Task{TaskID: "sum-2", Status: StatusPending}
	assert.Equal(t, "N/A", task.Summary().LastUpdated)
}

func TestLoadMissingTaskLeavesNoLockFile(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("ghost")
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(store.Dir(), "task_ghost.json.lock"))
	assert.True(t, os.IsNotExist(err), "status probe must not create a lock file")
}

func TestTerminalStatusRemovesLockFile(t *testing.T) {
	store := newTestStore(t)

	task, err := store.NewTask("done-1", InitialRequest{Request: "r"}, ReportTypeLong)
	require.NoError(t, err)

	lockPath := filepath.Join(store.Dir(), "task_done-1.json.lock")
	_, err = os.Stat(lockPath)
	require.NoError(t, err, "lock file exists while the task is live")

	require.NoError(t, store.UpdateStatus(task, StatusCompleted, "Done.", 100))
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err), "lock file removed once the task is terminal")

	task2, err := store.NewTask("fail-1", InitialRequest{Request: "r"}, ReportTypeLong)
	require.NoError(t, err)
	require.NoError(t, store.LogError(task2, "content_generation", "boom"))
	_, err = os.Stat(filepath.Join(store.Dir(), "task_fail-1.json.lock"))
	assert.True(t, os.IsNotExist(err))
}
