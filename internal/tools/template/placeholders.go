package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Placeholder naming conventions:
//
//	key          from a {{key}} moustache marker
//	label_<text> from a line ending in "<text>:" awaiting a value
//	blank_N      from the Nth run of underscores ("____")
var (
	moustachePattern  = regexp.MustCompile(`\{\{\s*([\w.-]+)\s*\}\}`)
	labelLinePattern  = regexp.MustCompile(`^([^:：\n(（]+?)[:：]\s*$`)
	underscorePattern = regexp.MustCompile(`(?:_{4,}[\s\x{00a0}]*)+`)
)

// ExtractPlaceholders finds all fillable markers in template text and
// returns their sorted key names.
func ExtractPlaceholders(text string) []string {
	found := make(map[string]bool)
	blankCounter := 0

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for _, match := range moustachePattern.FindAllStringSubmatch(line, -1) {
			found[match[1]] = true
		}

		// Strip moustache markers before looking for the other patterns so
		// "{{name}}" doesn't also register as a blank or label.
		stripped := moustachePattern.ReplaceAllString(line, "")

		if match := labelLinePattern.FindStringSubmatch(stripped); match != nil {
			label := strings.TrimSpace(match[1])
			if label != "" {
				found["label_"+label] = true
			}
		}

		for range underscorePattern.FindAllString(stripped, -1) {
			found[fmt.Sprintf("blank_%d", blankCounter)] = true
			blankCounter++
		}
	}

	keys := make([]string, 0, len(found))
	for key := range found {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
