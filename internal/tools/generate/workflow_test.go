package generate

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleMarkdown(t *testing.T) {
	chapters := []*Chapter{
		{
			Title:     "Project Overview",
			Content:   "The project covers the construction of a community centre.",
			ImageURLs: []string{"http://minio.test/docs/site.png"},
		},
		{
			Title:   "Impact Analysis",
			Content: "Vibration during construction stays within limits.",
		},
	}

	doc := AssembleMarkdown("This report assesses the project.", chapters, "The impact is acceptable.")

	assert.True(t, strings.HasPrefix(doc, "## Introduction\n\nThis report assesses the project."))
	assert.Contains(t, doc, "## Project Overview")
	assert.Contains(t, doc, "![Project Overview](http://minio.test/docs/site.png)")
	assert.Contains(t, doc, "## Impact Analysis")
	assert.Contains(t, doc, "## Conclusions and Recommendations\n\nThe impact is acceptable.")

	// Sections must appear in order.
	intro := strings.Index(doc, "## Introduction")
	overview := strings.Index(doc, "## Project Overview")
	impact := strings.Index(doc, "## Impact Analysis")
	conclusion := strings.Index(doc, "## Conclusions and Recommendations")
	assert.True(t, intro < overview && overview < impact && impact < conclusion)
}

func TestAssembleMarkdownEmptyOutline(t *testing.T) {
	doc := AssembleMarkdown("intro", nil, "outro")
	assert.Contains(t, doc, "## Introduction\n\nintro")
	assert.Contains(t, doc, "## Conclusions and Recommendations\n\noutro")
}

func TestAssembleMarkdownUntitledChapterImage(t *testing.T) {
	chapters := []*Chapter{{Content: "body", ImageURLs: []string{"http://x.test/a.png"}}}
	doc := AssembleMarkdown("i", chapters, "c")
	assert.Contains(t, doc, "![chapter illustration](http://x.test/a.png)")
}

func TestOutlineForContext(t *testing.T) {
	chapters := []*Chapter{
		{
			ChapterID: "ch_01",
			Title:     "Overview",
			KeyPoints: []string{"scope", "goals"},
			Content:   "a very long generated body",
			Summary:   "short summary",
		},
	}

	clean := outlineForContext(chapters)

	assert.Len(t, clean, 1)
	assert.Equal(t, "Overview", clean[0]["title"])
	assert.Equal(t, []string{"scope", "goals"}, clean[0]["key_points"])
	assert.NotContains(t, clean[0], "content", "generated bodies stay out of prompt context")
	assert.NotContains(t, clean[0], "summary")
}

func TestMaxRefinementCycles(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(MaxRefinementCyclesEnvVar, "")
		assert.Equal(t, DefaultMaxRefinementCycles, maxRefinementCycles())
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv(MaxRefinementCyclesEnvVar, "5")
		assert.Equal(t, 5, maxRefinementCycles())
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(MaxRefinementCyclesEnvVar, "zero")
		assert.Equal(t, DefaultMaxRefinementCycles, maxRefinementCycles())
	})

	t.Run("non-positive falls back", func(t *testing.T) {
		t.Setenv(MaxRefinementCyclesEnvVar, "-1")
		assert.Equal(t, DefaultMaxRefinementCycles, maxRefinementCycles())
	})
}

func TestResumeStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		report string
		want   string
	}{
		{"mid brief", "brief_generation", ReportTypeLong, StatusPending},
		{"mid outline", "outline_generation", ReportTypeLong, StatusBriefPrepared},
		{"mid short report", "short_report_generation", ReportTypeShort, StatusBriefPrepared},
		{"mid refinement", "outline_refinement", ReportTypeLong, StatusOutlineGenerated},
		{"mid content", "content_generation", ReportTypeLong, StatusOutlineFinalized},
		{"mid assembly long", "assembling", ReportTypeLong, StatusChaptersGenerated},
		{"mid assembly short", "assembling", ReportTypeShort, StatusShortReportGenerated},
		{"checkpoint untouched", StatusOutlineFinalized, ReportTypeLong, StatusOutlineFinalized},
		{"terminal untouched", StatusCompleted, ReportTypeLong, StatusCompleted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task := &Task{Status: tc.status, ReportType: tc.report}
			assert.Equal(t, tc.want, resumeStatus(task))
		})
	}
}

func TestRunFailsTaskInUnknownState(t *testing.T) {
	t.Setenv(TasksDirEnvVar, t.TempDir())
	store := NewTaskStore()
	task, err := store.NewTask("task-unknown-state", InitialRequest{Request: "r"}, ReportTypeLong)
	require.NoError(t, err)

	task.Status = "bogus_stage"
	require.NoError(t, store.Save(task))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	g := &Generator{store: store, logger: logger}
	g.Run(context.Background(), "task-unknown-state")

	reloaded, err := store.Load("task-unknown-state")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, reloaded.Status)
	require.NotEmpty(t, reloaded.ErrorLog)
	assert.Equal(t, "run_loop", reloaded.ErrorLog[len(reloaded.ErrorLog)-1].Stage)
}
