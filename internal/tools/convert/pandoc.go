package convert

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quillhaven/docsmith/internal/config"
	"github.com/quillhaven/docsmith/internal/httpclient"
	"github.com/sirupsen/logrus"
)

const (
	PandocPathEnvVar = "DOCSMITH_PANDOC_PATH"

	pandocTimeout        = 120 * time.Second
	imageDownloadTimeout = 20 * time.Second
)

// markdownImagePattern matches markdown image references and captures the URL
var markdownImagePattern = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)

// MarkdownToDocx converts a markdown file to DOCX with pandoc. Remote images
// are downloaded once each into a temp directory and the references rewritten
// to local paths, so the images end up embedded in the DOCX.
func MarkdownToDocx(ctx context.Context, logger *logrus.Logger, mdPath, outputPath string) error {
	pandoc, err := findPandoc(ctx)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(mdPath)
	if err != nil {
		return fmt.Errorf("failed to read markdown file: %w", err)
	}
	content := string(data)

	tempDir, err := os.MkdirTemp(filepath.Dir(mdPath), "docsmith_images_*")
	if err != nil {
		return fmt.Errorf("failed to create temp image directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	replacements := downloadRemoteImages(ctx, logger, FindRemoteImageURLs(content), tempDir)
	content = RewriteImageRefs(content, replacements)

	tempMd := filepath.Join(tempDir, "input.md")
	if err := os.WriteFile(tempMd, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write temp markdown: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, pandocTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, pandoc, "-f", "markdown", "-t", "docx", "-o", outputPath, tempMd)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pandoc conversion failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("pandoc reported success but %s was not created", outputPath)
	}

	return nil
}

// FindRemoteImageURLs returns the sorted set of unique http(s) image URLs
// referenced by the markdown.
func FindRemoteImageURLs(markdown string) []string {
	seen := make(map[string]bool)
	for _, match := range markdownImagePattern.FindAllStringSubmatch(markdown, -1) {
		url := match[1]
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			seen[url] = true
		}
	}

	urls := make([]string, 0, len(seen))
	for url := range seen {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// downloadRemoteImages fetches each URL into destDir and returns a URL to
// local path map. Failed downloads are skipped so pandoc falls back to the
// original URL.
func downloadRemoteImages(ctx context.Context, logger *logrus.Logger, urls []string, destDir string) map[string]string {
	client := httpclient.New(imageDownloadTimeout, logger)
	replacements := make(map[string]string)

	for _, url := range urls {
		localPath, err := downloadImage(ctx, client, url, destDir)
		if err != nil {
			logger.WithError(err).WithField("url", url).Warn("Failed to download image, leaving URL in place")
			continue
		}
		replacements[url] = localPath
	}

	if len(replacements) > 0 {
		logger.WithField("count", len(replacements)).Debug("Downloaded remote images")
	}
	return replacements
}

func downloadImage(ctx context.Context, client *http.Client, url, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	localPath := filepath.Join(destDir, uuid.NewString()+"."+ImageExtension(url))
	out, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(localPath)
		return "", err
	}

	return localPath, nil
}

// ImageExtension guesses a file extension from an image URL, defaulting to
// png for anything unrecognisable.
func ImageExtension(url string) string {
	path := url
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" || len(ext) > 4 {
		return "png"
	}
	return strings.ToLower(ext)
}

// RewriteImageRefs replaces image URLs in the markdown with their local paths
func RewriteImageRefs(markdown string, replacements map[string]string) string {
	for url, localPath := range replacements {
		markdown = strings.ReplaceAll(markdown, url, localPath)
	}
	return markdown
}

// findPandoc locates the pandoc binary, preferring the env override, then
// the cached discovery, then PATH.
func findPandoc(ctx context.Context) (string, error) {
	if path := os.Getenv(PandocPathEnvVar); path != "" {
		return path, nil
	}

	state := config.GetGlobalState()
	if path, ok := state.GetPandocPath(); ok && !state.IsStale() {
		return path, nil
	}

	if path, err := exec.LookPath("pandoc"); err == nil {
		if probeBinary(ctx, path) {
			sofficePath, _ := state.GetLibreOfficePath()
			state.SetConverterPaths(path, sofficePath)
			_ = state.Save()
			return path, nil
		}
	}

	return "", fmt.Errorf("pandoc not found. Install pandoc or set %s", PandocPathEnvVar)
}

// probeBinary checks that a binary responds to --version
func probeBinary(ctx context.Context, path string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return exec.CommandContext(probeCtx, path, "--version").Run() == nil
}
