package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileConfig is the optional ~/.docsmith/config.yaml. Every value maps to an
// environment variable; variables already set in the environment win.
type FileConfig struct {
	LLM struct {
		APIURL string `yaml:"api_url"`
		Model  string `yaml:"model"`
		APIKey string `yaml:"api_key"`
	} `yaml:"llm"`
	Storage struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		Secure    string `yaml:"secure"`
	} `yaml:"storage"`
	Search struct {
		TextEndpoint  string `yaml:"text_endpoint"`
		ImageEndpoint string `yaml:"image_endpoint"`
	} `yaml:"search"`
}

// ConfigFilePath returns the path of the optional YAML config file.
func ConfigFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".docsmith", "config.yaml"), nil
}

// ApplyFileConfig loads the YAML config, if present, and exports its values
// as environment variables for any that are not already set. Tool packages
// read configuration from the environment only, so this keeps a single
// lookup path.
func ApplyFileConfig(logger *logrus.Logger) error {
	path, err := ConfigFilePath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	applied := 0
	for envVar, value := range cfg.envValues() {
		if value == "" || os.Getenv(envVar) != "" {
			continue
		}
		if err := os.Setenv(envVar, value); err != nil {
			return fmt.Errorf("failed to apply config value %s: %w", envVar, err)
		}
		applied++
	}

	if logger != nil && applied > 0 {
		logger.WithFields(logrus.Fields{
			"path":   path,
			"values": applied,
		}).Debug("Applied config file values")
	}
	return nil
}

// envValues maps config fields to their environment variables.
func (c *FileConfig) envValues() map[string]string {
	return map[string]string{
		"DOCSMITH_LLM_API_URL":           c.LLM.APIURL,
		"DOCSMITH_LLM_MODEL":             c.LLM.Model,
		"DOCSMITH_LLM_API_KEY":           c.LLM.APIKey,
		"DOCSMITH_MINIO_ENDPOINT":        c.Storage.Endpoint,
		"DOCSMITH_MINIO_ACCESS_KEY":      c.Storage.AccessKey,
		"DOCSMITH_MINIO_SECRET_KEY":      c.Storage.SecretKey,
		"DOCSMITH_MINIO_BUCKET":          c.Storage.Bucket,
		"DOCSMITH_MINIO_SECURE":          c.Storage.Secure,
		"DOCSMITH_TEXT_SEARCH_ENDPOINT":  c.Search.TextEndpoint,
		"DOCSMITH_IMAGE_SEARCH_ENDPOINT": c.Search.ImageEndpoint,
	}
}
