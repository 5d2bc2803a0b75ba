package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

func LoadConfig(configPath string) (config Configuration, err error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return config, &ConfigError{Err: fmt.Errorf("unable to read config file %s: %w", configPath, err)}
	}

	if err := ValidateConfigDocument(configData); err != nil {
		return config, &ConfigError{Err: fmt.Errorf("%s: %w", configPath, err)}
	}

	var raw configRaw
	if err := yaml.Unmarshal(configData, &raw); err != nil {
		return config, &ConfigError{Err: fmt.Errorf("%s: %w", configPath, err)}
	}

	packages, err := decodePackages(&raw.Packages)
	if err != nil {
		return config, err
	}

	config = Configuration{
		CacheDir:    raw.CacheDir,
		TargetDir:   raw.TargetDir,
		ReleaseBase: raw.ReleaseBase,
		S3Endpoint:  raw.S3Endpoint,
		Packages:    packages,
	}
	if config.CacheDir == "" {
		config.CacheDir = DEFAULT_CACHE_DIR
	}
	if config.TargetDir == "" {
		config.TargetDir = DEFAULT_TARGET_DIR
	}
	if config.ReleaseBase == "" {
		config.ReleaseBase = DEFAULT_RELEASE_BASE
	}

	return config, nil
}

// ApplyOverrides replaces the directories with non-empty command line values and makes both
// absolute.
func (c *Configuration) ApplyOverrides(cacheDir string, targetDir string) error {
	if cacheDir != "" {
		c.CacheDir = cacheDir
	}
	if targetDir != "" {
		c.TargetDir = targetDir
	}

	var err error
	if c.CacheDir, err = filepath.Abs(c.CacheDir); err != nil {
		return &ConfigError{Err: fmt.Errorf("invalid cache dir: %w", err)}
	}
	if c.TargetDir, err = filepath.Abs(c.TargetDir); err != nil {
		return &ConfigError{Err: fmt.Errorf("invalid target dir: %w", err)}
	}
	return nil
}

// ValidateConfigDocument checks a YAML config document against CONFIG_SCHEMA.
func ValidateConfigDocument(configData []byte) error {
	jsonData, err := k8syaml.YAMLToJSON(configData)
	if err != nil {
		return fmt.Errorf("unable to convert config to JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(CONFIG_SCHEMA_ID, strings.NewReader(CONFIG_SCHEMA)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(CONFIG_SCHEMA_ID)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(jsonData))
	decoder.UseNumber()
	var document any
	if err := decoder.Decode(&document); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func decodePackages(node *yaml.Node) ([]PackageEntry, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &ConfigError{Err: fmt.Errorf("packages must be a mapping (line %d)", node.Line)}
	}

	var entries []PackageEntry
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		if seen[key] {
			return nil, &ConfigError{Key: key, Err: fmt.Errorf("package is defined more than once (line %d)", keyNode.Line)}
		}
		seen[key] = true

		var pc PackageConfig
		if err := valueNode.Decode(&pc); err != nil {
			return nil, &ConfigError{Key: key, Err: err}
		}
		entries = append(entries, PackageEntry{Key: key, PackageConfig: pc})
	}

	return entries, nil
}
