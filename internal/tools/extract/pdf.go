package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// extractPDF pulls text (and optionally images) out of a PDF page by page
// and renders the result as markdown.
func (t *ExtractorTool) extractPDF(ctx context.Context, logger *logrus.Logger, request *ExtractRequest, response *ExtractResponse) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationStrict

	pageCount, err := api.PageCountFile(request.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to get page count: %w", err)
	}
	response.TotalPages = pageCount

	selected, err := ParsePageSelection(request.Pages, pageCount)
	if err != nil {
		return "", fmt.Errorf("invalid page selection: %w", err)
	}
	response.PagesProcessed = len(selected)

	baseName := pdfBaseName(request.FilePath)

	var images []string
	if request.ExtractImages {
		images, err = t.extractPDFImages(request, baseName, selected, conf, logger)
		if err != nil {
			logger.WithError(err).Warn("Image extraction failed, continuing with text only")
		}
		response.Images = images
	}

	var md strings.Builder
	md.WriteString(fmt.Sprintf("# %s\n\n", baseName))

	for _, pageNum := range selected {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		md.WriteString(fmt.Sprintf("## Page %d\n\n", pageNum))

		raw, err := extractPageText(request.FilePath, baseName, pageNum, conf)
		if err != nil {
			logger.WithError(err).WithField("page", pageNum).Error("Failed to extract page text")
			md.WriteString(fmt.Sprintf("*Content extraction failed: %v*\n\n", err))
			continue
		}

		text := renderPageText(raw)
		md.WriteString(text)
		md.WriteString("\n\n")

		captions := findCaptions(text)
		for i, imagePath := range imagesForPage(images, pageNum) {
			alt := fmt.Sprintf("Image from page %d", pageNum)
			if i < len(captions) {
				alt = captions[i]
			}
			rel, _ := filepath.Rel(request.OutputDir, imagePath)
			md.WriteString(fmt.Sprintf("![%s](%s)\n\n", alt, rel))
		}
	}

	return md.String(), nil
}

// extractPDFImages writes embedded images for the selected pages into a
// sibling directory and returns their paths.
func (t *ExtractorTool) extractPDFImages(request *ExtractRequest, baseName string, pages []int, conf *model.Configuration, logger *logrus.Logger) ([]string, error) {
	imageDir := filepath.Join(request.OutputDir, baseName+"_images")
	if err := os.MkdirAll(imageDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	pageStrings := make([]string, len(pages))
	for i, p := range pages {
		pageStrings[i] = strconv.Itoa(p)
	}

	if err := api.ExtractImagesFile(request.FilePath, imageDir, pageStrings, conf); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, err
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".gif", ".bmp":
			images = append(images, filepath.Join(imageDir, entry.Name()))
		}
	}
	sort.Strings(images)

	logger.WithField("image_count", len(images)).Debug("Extracted PDF images")
	return images, nil
}

// pdfBaseName strips the .pdf extension regardless of case; the stripped name
// must match the content file names the page extractor produces.
func pdfBaseName(filePath string) string {
	base := filepath.Base(filePath)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// extractPDFText pulls the text of every page without writing output files
func extractPDFText(filePath string) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationStrict

	pageCount, err := api.PageCountFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get page count: %w", err)
	}

	baseName := pdfBaseName(filePath)

	var sb strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		raw, err := extractPageText(filePath, baseName, pageNum, conf)
		if err != nil {
			continue
		}
		sb.WriteString(renderPageText(raw))
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}

// extractPageText runs pdfcpu content extraction for a single page into a
// temp directory and returns the raw content stream.
func extractPageText(filePath, baseName string, pageNum int, conf *model.Configuration) (string, error) {
	tempDir, err := os.MkdirTemp("", "docsmith_pdf_*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if err := api.ExtractContentFile(filePath, tempDir, []string{strconv.Itoa(pageNum)}, conf); err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	contentFile := filepath.Join(tempDir, fmt.Sprintf("%s_Content_page_%d.txt", baseName, pageNum))
	data, err := os.ReadFile(contentFile)
	if err != nil {
		return "", fmt.Errorf("failed to read content file: %w", err)
	}
	return string(data), nil
}

// renderPageText turns a raw PDF content stream into readable text by
// collecting the string operands of text-show operators.
func renderPageText(content string) string {
	if strings.TrimSpace(content) == "" {
		return "*No text content found on this page*"
	}

	var texts []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.Contains(line, " Tj") && !strings.Contains(line, " TJ") &&
			!strings.Contains(line, "' ") && !strings.Contains(line, "\" ") {
			continue
		}
		texts = append(texts, textOperands(line)...)
	}

	if len(texts) == 0 {
		return "*No text content found on this page*"
	}

	return CleanExtractedText(strings.Join(texts, " "))
}

// textOperands extracts the parenthesised string operands from one content
// stream line, undoing the basic PDF escapes.
func textOperands(line string) []string {
	var texts []string
	inText := false
	start := -1

	for i, ch := range line {
		switch {
		case ch == '(' && (i == 0 || line[i-1] != '\\'):
			inText = true
			start = i + 1
		case ch == ')' && inText && (i == 0 || line[i-1] != '\\'):
			if start != -1 && start < i {
				text := line[start:i]
				text = strings.ReplaceAll(text, `\(`, "(")
				text = strings.ReplaceAll(text, `\)`, ")")
				text = strings.ReplaceAll(text, `\\`, `\`)
				if strings.TrimSpace(text) != "" {
					texts = append(texts, text)
				}
			}
			inText = false
			start = -1
		}
	}

	return texts
}

// octalReplacements maps octal escapes commonly seen in PDF text streams to
// their printable equivalents.
var octalReplacements = map[string]string{
	`\260`: "°",
	`\256`: "®",
	`\251`: "©",
	`\221`: "‘",
	`\231`: "’",
	`\223`: "“",
	`\224`: "”",
	`\226`: "–",
	`\227`: "—",
	`\240`: " ",
	`\037`: "",
	`\012`: "\n",
	`\015`: "\r",
	`\011`: "\t",
}

// CleanExtractedText normalises whitespace, decodes known octal escapes and
// drops control characters from extracted PDF text.
func CleanExtractedText(text string) string {
	text = strings.TrimSpace(text)

	for octal, replacement := range octalReplacements {
		text = strings.ReplaceAll(text, octal, replacement)
	}

	// Drop unrecognised three-digit octal escapes.
	var sb strings.Builder
	for i := 0; i < len(text); {
		if i+3 < len(text) && text[i] == '\\' &&
			isOctalDigit(text[i+1]) && isOctalDigit(text[i+2]) && isOctalDigit(text[i+3]) {
			i += 4
			continue
		}
		sb.WriteByte(text[i])
		i++
	}
	text = sb.String()

	// Replace control characters with spaces, drop other binary runes.
	var out strings.Builder
	for _, ch := range text {
		switch {
		case ch == '\n' || ch == '\r' || ch == '\t':
			out.WriteRune(ch)
		case ch < 32:
			out.WriteRune(' ')
		case ch <= 126 || (ch >= 0xA0 && ch <= 0xFF) || (ch >= 0x2000 && ch <= 0x206F):
			out.WriteRune(ch)
		case ch > 0xFF:
			out.WriteRune(ch)
		}
	}
	text = out.String()

	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	text = strings.ReplaceAll(text, " .", ".")
	text = strings.ReplaceAll(text, " ,", ",")

	return text
}

func isOctalDigit(b byte) bool {
	return b >= '0' && b <= '7'
}

// ParsePageSelection expands a page selection string ('1-5', '1,3,5', 'all')
// into a sorted, de-duplicated slice of 1-based page numbers.
func ParsePageSelection(pages string, maxPage int) ([]int, error) {
	if pages == "" || pages == "all" {
		result := make([]int, maxPage)
		for i := range maxPage {
			result[i] = i + 1
		}
		return result, nil
	}

	pageSet := make(map[int]bool)
	for _, part := range strings.Split(pages, ",") {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "-") {
			bounds := strings.Split(part, "-")
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid range format: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start page: %s", bounds[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end page: %s", bounds[1])
			}
			if start < 1 || end > maxPage || start > end {
				return nil, fmt.Errorf("invalid page range: %d-%d (document has %d pages)", start, end, maxPage)
			}
			for i := start; i <= end; i++ {
				pageSet[i] = true
			}
		} else {
			page, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid page number: %s", part)
			}
			if page < 1 || page > maxPage {
				return nil, fmt.Errorf("page number out of range: %d (document has %d pages)", page, maxPage)
			}
			pageSet[page] = true
		}
	}

	result := make([]int, 0, len(pageSet))
	for page := range pageSet {
		result = append(result, page)
	}
	sort.Ints(result)

	return result, nil
}

// captionPattern matches figure and table caption phrases in extracted text
var captionPattern = regexp.MustCompile(`(?i)\b((?:figure|fig\.|table|chart|图|表)\s*\d+[.:]?\s*[^.!?\n]{0,60})`)

// findCaptions returns caption phrases in document order, used as alt text
// for the images extracted from the same page.
func findCaptions(text string) []string {
	var captions []string
	for _, match := range captionPattern.FindAllStringSubmatch(text, -1) {
		caption := strings.TrimSpace(match[1])
		if caption != "" {
			captions = append(captions, caption)
		}
	}
	return captions
}

// imagesForPage filters extracted image paths down to those produced for a
// given page, relying on pdfcpu's _page_N_ naming.
func imagesForPage(allImages []string, pageNum int) []string {
	var pageImages []string
	marker := fmt.Sprintf("_page_%d_", pageNum)
	for _, imagePath := range allImages {
		if strings.Contains(filepath.Base(imagePath), marker) {
			pageImages = append(pageImages, imagePath)
		}
	}
	return pageImages
}
