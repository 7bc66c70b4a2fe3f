package convert

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tool := &ConverterTool{}

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
			args:        map[string]any{"file_path": "report.md"},
			expectError: true,
			errContains: "absolute",
		},
		{
			name:        "output_path without docx extension",
			args:        map[string]any{"file_path": "/docs/report.md", "output_path": "/docs/out.pdf"},
			expectError: true,
			errContains: ".docx",
		},
		{
			name: "valid with defaults",
			args: map[string]any{"file_path": "/docs/report.md"},
		},
		{
			name: "valid with explicit output",
			args: map[string]any{"file_path": "/docs/old.doc", "output_path": "/out/new.docx", "upload": true},
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
			assert.NotEmpty(t, request.OutputPath)
		})
	}
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "/docs/report.docx", DefaultOutputPath("/docs/report.md"))
	assert.Equal(t, "/docs/minutes.docx", DefaultOutputPath("/docs/minutes.doc"))
	assert.Equal(t, "/docs/notes.docx", DefaultOutputPath("/docs/notes.markdown"))
}

func TestDefaultOutputPathAvoidsCollisions(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "report.md")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.docx"), []byte("x"), 0o644))

	assert.Equal(t, filepath.Join(dir, "report_1.docx"), DefaultOutputPath(source))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report_1.docx"), []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "report_2.docx"), DefaultOutputPath(source))
}

func TestFindRemoteImageURLs(t *testing.T) {
	markdown := `# Doc

![chart](https://example.com/chart.png)
Some text ![local](./images/fig.png) here.
![dup](https://example.com/chart.png)
![other](http://example.com/photo.jpg?size=large)
`

	urls := FindRemoteImageURLs(markdown)

	assert.Equal(t, []string{
		"http://example.com/photo.jpg?size=large",
		"https://example.com/chart.png",
	}, urls, "deduplicated, sorted, local refs excluded")
}

func TestFindRemoteImageURLsNone(t *testing.T) {
	assert.Empty(t, FindRemoteImageURLs("no images here"))
	assert.Empty(t, FindRemoteImageURLs("![only local](./a.png)"))
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://example.com/a.png", "png"},
		{"https://example.com/a.JPG", "jpg"},
		{"https://example.com/a.jpeg?token=abc", "jpeg"},
		{"https://example.com/image", "png"},
		{"https://example.com/file.tiff8", "png"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, ImageExtension(tt.url))
		})
	}
}

func TestRewriteImageRefs(t *testing.T) {
	markdown := "![a](https://x.test/a.png) and ![b](https://x.test/b.png)"
	replacements := map[string]string{
		"https://x.test/a.png": "/tmp/imgs/1.png",
	}

	result := RewriteImageRefs(markdown, replacements)

	assert.Contains(t, result, "![a](/tmp/imgs/1.png)")
	assert.Contains(t, result, "![b](https://x.test/b.png)", "unmapped URLs stay untouched")
}
