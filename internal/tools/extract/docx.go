package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxTabOrBreak   = regexp.MustCompile(`<w:(?:tab|br)[^>]*/?>`)
	docxTag          = regexp.MustCompile(`<[^>]+>`)
)

// extractDocx reads a DOCX file and flattens its document XML into plain
// text, one line per paragraph.
func extractDocx(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX file: %w", err)
	}
	defer r.Close()

	return docxContentToText(r.Editable().GetContent()), nil
}

// docxContentToText converts WordprocessingML into paragraph-per-line text
func docxContentToText(content string) string {
	content = docxParagraphEnd.ReplaceAllString(content, "\n")
	content = docxTabOrBreak.ReplaceAllString(content, " ")
	content = docxTag.ReplaceAllString(content, "")

	content = strings.ReplaceAll(content, "&amp;", "&")
	content = strings.ReplaceAll(content, "&lt;", "<")
	content = strings.ReplaceAll(content, "&gt;", ">")
	content = strings.ReplaceAll(content, "&quot;", `"`)
	content = strings.ReplaceAll(content, "&apos;", "'")

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n\n") + "\n"
}
