package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
)

// newHTMLConverter builds an HTML to markdown converter with chrome
// elements stripped out.
func newHTMLConverter() *converter.Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)

	// script, style, noscript and iframe are already removed by the base plugin
	tagsToRemove := []string{
		"embed", "object", "nav", "header", "footer", "aside",
		"form", "button", "select", "canvas", "svg", "video", "audio",
	}
	for _, tag := range tagsToRemove {
		conv.Register.TagType(tag, converter.TagTypeRemove, converter.PriorityStandard)
	}

	return conv
}

// extractHTML converts an HTML file to markdown, prepending the document
// title as a level-one heading when the body doesn't start with one.
func extractHTML(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read HTML file: %w", err)
	}
	htmlContent := string(data)

	markdown, err := newHTMLConverter().ConvertString(htmlContent)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	markdown = collapseBlankLines(markdown)

	title := htmlTitle(htmlContent)
	if title != "" && !strings.HasPrefix(strings.TrimSpace(markdown), "# ") {
		markdown = fmt.Sprintf("# %s\n\n%s", title, markdown)
	}

	return markdown, nil
}

// htmlTitle pulls the <title> text out of an HTML document
func htmlTitle(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// collapseBlankLines squeezes runs of blank lines down to a single blank line
func collapseBlankLines(markdown string) string {
	lines := strings.Split(markdown, "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blanks = 0
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}
