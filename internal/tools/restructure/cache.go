package restructure

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// cacheTTL bounds how long a cached analysis stays valid
	cacheTTL = 30 * 24 * time.Hour

	cacheDirEnvVar = "DOCSMITH_CACHE_DIR"
)

// analysisCache persists LLM analyses keyed by content hash so repeated
// runs over the same document don't burn tokens.
type analysisCache struct {
	dir    string
	logger *logrus.Logger
}

// cacheEntry is the on-disk representation of a cached analysis
type cacheEntry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	Analysis  *Analysis `json:"analysis"`
}

func newAnalysisCache(logger *logrus.Logger) *analysisCache {
	dir := os.Getenv(cacheDirEnvVar)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		dir = filepath.Join(home, ".docsmith", "cache", "restructure")
	}
	return &analysisCache{dir: dir, logger: logger}
}

// Key derives the cache key from document content and analysis instructions
func (c *analysisCache) Key(text, instructions string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(instructions))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns a cached analysis if present and not expired
func (c *analysisCache) Get(key string) (*Analysis, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithError(err).Debug("Discarding corrupt cache entry")
		_ = os.Remove(c.path(key))
		return nil, false
	}

	if time.Since(entry.CreatedAt) > cacheTTL {
		_ = os.Remove(c.path(key))
		return nil, false
	}

	return entry.Analysis, true
}

// Put stores an analysis. Cache failures are logged, never fatal.
func (c *analysisCache) Put(key string, analysis *Analysis) {
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		c.logger.WithError(err).Debug("Failed to create cache directory")
		return
	}

	entry := cacheEntry{
		Key:       key,
		CreatedAt: time.Now(),
		Analysis:  analysis,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		c.logger.WithError(err).Debug("Failed to marshal cache entry")
		return
	}

	if err := os.WriteFile(c.path(key), data, 0600); err != nil {
		c.logger.WithError(err).Debug("Failed to write cache entry")
	}
}

func (c *analysisCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
