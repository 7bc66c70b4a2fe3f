package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		filePath string
		expected string
	}{
		{"pdf", "/docs/report.pdf", "pdf"},
		{"pdf uppercase", "/docs/REPORT.PDF", "pdf"},
		{"docx", "/docs/contract.docx", "docx"},
		{"html", "/docs/page.html", "html"},
		{"htm", "/docs/page.htm", "html"},
		{"markdown", "/docs/notes.md", "text"},
		{"plain text", "/docs/notes.txt", "text"},
		{"unsupported", "/docs/archive.zip", ""},
		{"no extension", "/docs/README", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat(tt.filePath))
		})
	}
}

func TestParseRequest(t *testing.T) {
	tool := &ExtractorTool{}

	tests := []struct {
		name        string
		args        map[string]any
		expectError bool
		errContains string
	}{
		{
			name:        "missing file_path",
			args:        map[string]any{},
			expectError: true,
			errContains: "file_path",
		},
		{
			name:        "relative file_path",
			args:        map[string]any{"file_path": "docs/report.pdf"},
			expectError: true,
			errContains: "absolute",
		},
		{
			name:        "unsupported extension",
			args:        map[string]any{"file_path": "/docs/archive.zip"},
			expectError: true,
			errContains: "unsupported document type",
		},
		{
			name:        "relative output_dir",
			args:        map[string]any{"file_path": "/docs/report.pdf", "output_dir": "out"},
			expectError: true,
			errContains: "output_dir",
		},
		{
			name: "valid with defaults",
			args: map[string]any{"file_path": "/docs/report.pdf"},
		},
		{
			name: "format override",
			args: map[string]any{"file_path": "/docs/export.dat", "format": "html"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request, err := tool.ParseRequest(tt.args)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, request.Format)
			assert.True(t, request.OutputDir != "")
		})
	}
}

func TestParseRequestDefaults(t *testing.T) {
	tool := &ExtractorTool{}

	request, err := tool.ParseRequest(map[string]any{"file_path": "/docs/report.pdf"})
	require.NoError(t, err)

	assert.Equal(t, "pdf", request.Format)
	assert.Equal(t, "/docs", request.OutputDir)
	assert.Equal(t, "all", request.Pages)
	assert.False(t, request.ExtractImages)
}

func TestParsePageSelection(t *testing.T) {
	tests := []struct {
		name        string
		pages       string
		maxPage     int
		expected    []int
		expectError bool
	}{
		{"all keyword", "all", 3, []int{1, 2, 3}, false},
		{"empty string", "", 2, []int{1, 2}, false},
		{"single page", "2", 5, []int{2}, false},
		{"range", "2-4", 5, []int{2, 3, 4}, false},
		{"list", "1,3,5", 5, []int{1, 3, 5}, false},
		{"mixed with duplicates", "1-3,2,3", 5, []int{1, 2, 3}, false},
		{"unsorted input", "5,1,3", 5, []int{1, 3, 5}, false},
		{"page out of range", "7", 5, nil, true},
		{"range beyond max", "3-9", 5, nil, true},
		{"inverted range", "4-2", 5, nil, true},
		{"garbage", "abc", 5, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParsePageSelection(tt.pages, tt.maxPage)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSplitSections(t *testing.T) {
	markdown := "intro text\n\n# Title\n\nbody one\n\n## Sub A\n\nbody two\nmore\n\n## Sub B\n\nbody three\n"

	sections := SplitSections(markdown)
	require.Len(t, sections, 4)

	assert.Equal(t, "", sections[0].Title)
	assert.Equal(t, 0, sections[0].Level)
	assert.Equal(t, "intro text", sections[0].Content)

	assert.Equal(t, "Title", sections[1].Title)
	assert.Equal(t, 1, sections[1].Level)
	assert.Equal(t, "body one", sections[1].Content)

	assert.Equal(t, "Sub A", sections[2].Title)
	assert.Equal(t, 2, sections[2].Level)
	assert.Equal(t, "body two\nmore", sections[2].Content)

	assert.Equal(t, "Sub B", sections[3].Title)
}

func TestSplitSectionsEdgeCases(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, SplitSections(""))
	})

	t.Run("no headings", func(t *testing.T) {
		sections := SplitSections("just a paragraph\n")
		require.Len(t, sections, 1)
		assert.Equal(t, "", sections[0].Title)
		assert.Equal(t, "just a paragraph", sections[0].Content)
	})

	t.Run("hash without space is not a heading", func(t *testing.T) {
		sections := SplitSections("#hashtag content\n")
		require.Len(t, sections, 1)
		assert.Equal(t, "", sections[0].Title)
	})

	t.Run("heading with no body", func(t *testing.T) {
		sections := SplitSections("# Lonely\n")
		require.Len(t, sections, 1)
		assert.Equal(t, "Lonely", sections[0].Title)
		assert.Equal(t, "", sections[0].Content)
	})
}

func TestCleanExtractedText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trims whitespace", "  hello  ", "hello"},
		{"collapses spaces", "a  b   c", "a b c"},
		{"degree symbol", `25\260C`, "25°C"},
		{"copyright", `\251 2024`, "© 2024"},
		{"drops unknown octal", `text\123more`, "textmore"},
		{"space before punctuation", "end .", "end."},
		{"control chars become spaces", "a\x01b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanExtractedText(tt.input))
		})
	}
}

func TestTextOperands(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected []string
	}{
		{"simple Tj", "(Hello World) Tj", []string{"Hello World"}},
		{"multiple operands", "[(Hello) (World)] TJ", []string{"Hello", "World"}},
		{"escaped parens", `(a \(b\) c) Tj`, []string{"a (b) c"}},
		{"no text", "1 0 0 1 72 720 Tm", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textOperands(tt.line))
		})
	}
}

func TestDocxContentToText(t *testing.T) {
	xml := `<w:document><w:body>` +
		`<w:p><w:r><w:t>First paragraph</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second</w:t></w:r><w:tab/><w:r><w:t>part</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Fish &amp; Chips</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	text := docxContentToText(xml)

	assert.Contains(t, text, "First paragraph")
	assert.Contains(t, text, "Second part")
	assert.Contains(t, text, "Fish & Chips")
	assert.NotContains(t, text, "<w:")
}

func TestCollapseBlankLines(t *testing.T) {
	input := "a\n\n\n\nb\n\nc\n"
	assert.Equal(t, "a\n\nb\n\nc\n", collapseBlankLines(input))
}

func TestSplitSectionsCollectsImages(t *testing.T) {
	markdown := "# Report\n\nIntro.\n\n![Figure 1: flow](images/fig1.png)\n\n## Next\n\nNo pictures here.\n"

	sections := SplitSections(markdown)
	require.Len(t, sections, 2)
	assert.Equal(t, []string{"images/fig1.png"}, sections[0].Images)
	assert.Empty(t, sections[1].Images)
}

func TestFindCaptions(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "figure caption",
			text:     "As shown in Figure 3: network topology after the change. More text.",
			expected: []string{"Figure 3: network topology after the change"},
		},
		{
			name:     "table and chart",
			text:     "Table 1. quarterly results! Chart 2 shows the trend.",
			expected: []string{"Table 1. quarterly results", "Chart 2 shows the trend"},
		},
		{
			name: "no captions",
			text: "Plain prose without references.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, findCaptions(tt.text))
		})
	}
}

func TestPDFBaseName(t *testing.T) {
	assert.Equal(t, "report", pdfBaseName("/docs/report.pdf"))
	assert.Equal(t, "report", pdfBaseName("/docs/report.PDF"))
	assert.Equal(t, "Report.v2", pdfBaseName("Report.v2.Pdf"))
	assert.Equal(t, "notes.txt", pdfBaseName("/docs/notes.txt"))
}
