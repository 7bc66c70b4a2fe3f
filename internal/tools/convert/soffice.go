package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/quillhaven/docsmith/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	SofficePathEnvVar = "DOCSMITH_SOFFICE_PATH"

	sofficeTimeout = 60 * time.Second
)

// sofficeCandidates are probed in order when LibreOffice has not been
// located yet.
var sofficeCandidates = []string{
	"/Applications/LibreOffice.app/Contents/MacOS/soffice",
	"libreoffice",
	"soffice",
}

// DocToDocx converts a legacy .doc file to DOCX using LibreOffice in
// headless mode. LibreOffice always writes next to --outdir using the
// source basename, so the result is moved to outputPath afterwards if they
// differ.
func DocToDocx(ctx context.Context, logger *logrus.Logger, docPath, outputPath string) error {
	soffice, err := findSoffice(ctx, logger)
	if err != nil {
		return err
	}

	outDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outDir, 0700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, sofficeTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, soffice, "--headless", "--convert-to", "docx", "--outdir", outDir, docPath)
	logger.WithField("cmd", strings.Join(cmd.Args, " ")).Debug("Running LibreOffice conversion")

	output, err := cmd.CombinedOutput()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("LibreOffice conversion timed out after %s", sofficeTimeout)
	}
	if err != nil {
		return fmt.Errorf("LibreOffice conversion failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	baseName := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	produced := filepath.Join(outDir, baseName+".docx")
	if _, err := os.Stat(produced); err != nil {
		return fmt.Errorf("conversion ran but output file %s was not created", produced)
	}

	if produced != outputPath {
		if err := os.Rename(produced, outputPath); err != nil {
			return fmt.Errorf("failed to move converted file into place: %w", err)
		}
	}

	return nil
}

// findSoffice locates the LibreOffice binary, preferring the env override,
// then the cached discovery, then the candidate list.
func findSoffice(ctx context.Context, logger *logrus.Logger) (string, error) {
	if path := os.Getenv(SofficePathEnvVar); path != "" {
		return path, nil
	}

	state := config.GetGlobalState()
	if path, ok := state.GetLibreOfficePath(); ok && !state.IsStale() {
		return path, nil
	}

	for _, candidate := range sofficeCandidates {
		path := candidate
		if !filepath.IsAbs(candidate) {
			resolved, err := exec.LookPath(candidate)
			if err != nil {
				continue
			}
			path = resolved
		}
		if probeBinary(ctx, path) {
			logger.WithField("path", path).Debug("Found LibreOffice")
			pandocPath, _ := state.GetPandocPath()
			state.SetConverterPaths(pandocPath, path)
			_ = state.Save()
			return path, nil
		}
	}

	return "", fmt.Errorf("LibreOffice not found. Install LibreOffice or set %s", SofficePathEnvVar)
}
