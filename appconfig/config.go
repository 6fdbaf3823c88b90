package appconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/platform"
)

// Config holds application configuration including the job ledger path,
// render defaults, detector model paths, and remote storage settings.
type Config struct {
	LedgerPath string `json:"ledgerPath"`

	// Output path for rendered images
	OutputPath string `json:"outputPath"`

	// Render defaults
	DefaultStrength  float64 `json:"defaultStrength"`
	DisableSmoothing bool    `json:"disableSmoothing"`
	BoxThreshold     int     `json:"boxThreshold"`
	Workers          int     `json:"workers"`
	JPEGQuality      int     `json:"jpegQuality"`
	ThumbnailSize    int     `json:"thumbnailSize"`

	// ONNX box detector settings
	Detector struct {
		ModelPath         string  `json:"modelPath"`
		SharedLibraryPath string  `json:"sharedLibraryPath"`
		Threshold         float64 `json:"threshold"`
		InputSize         int     `json:"inputSize"`
	} `json:"detector"`

	// S3-compatible storage for fetch and publish
	S3 struct {
		Endpoint     string `json:"endpoint"`
		Region       string `json:"region"`
		Bucket       string `json:"bucket"`
		AccessKey    string `json:"accessKey"`
		SecretKey    string `json:"secretKey"`
		UsePathStyle bool   `json:"usePathStyle"`
	} `json:"s3"`

	// Shell command template run by the hook task; %s expands to the
	// rendered output path
	HookCommand string `json:"hookCommand"`
}

var (
	cfgMu sync.RWMutex
	cfg   Config
)

// defaultOutputPath returns the default output path (./output).
func defaultOutputPath() string {
	return "output"
}

// DefaultLedgerPath returns the default job ledger path.
// Uses the platform-specific data directory.
func DefaultLedgerPath() string {
	return filepath.Join(platform.GetDataDir(), "ledger.db")
}

// DefaultConfigDir returns the default config directory path.
// Uses the platform-specific data directory.
func DefaultConfigDir() string {
	return platform.GetDataDir()
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() Config {
	return Config{
		LedgerPath:      DefaultLedgerPath(),
		OutputPath:      defaultOutputPath(),
		DefaultStrength: 1.0,
		BoxThreshold:    10,
		JPEGQuality:     95,
		ThumbnailSize:   512,
		Detector: struct {
			ModelPath         string  `json:"modelPath"`
			SharedLibraryPath string  `json:"sharedLibraryPath"`
			Threshold         float64 `json:"threshold"`
			InputSize         int     `json:"inputSize"`
		}{
			Threshold: 0.5,
			InputSize: 320,
		},
	}
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func deepMergeJSON(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && isJSONObject(existing) && isJSONObject(v) {
			var dstObj map[string]json.RawMessage
			var srcObj map[string]json.RawMessage
			if err := json.Unmarshal(existing, &dstObj); err != nil {
				dst[k] = v
				continue
			}
			if err := json.Unmarshal(v, &srcObj); err != nil {
				dst[k] = v
				continue
			}
			deepMergeJSON(dstObj, srcObj)
			merged, err := json.Marshal(dstObj)
			if err != nil {
				dst[k] = v
				continue
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// getConfigPath returns the full path to the config.json file.
func getConfigPath() (string, error) {
	configDir := DefaultConfigDir()
	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the config from disk and updates the in-memory config. It returns the config and path.
// If the config file doesn't exist, it creates one with default values.
// This function safely handles missing directories and creates them as needed.
func Load() (Config, string, error) {
	path, err := getConfigPath()
	if err != nil {
		return Config{}, "", err
	}

	// Ensure config directory exists
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return Config{}, "", fmt.Errorf("failed to create config directory %s: %v", configDir, err)
	}

	// Check if config file exists
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file doesn't exist - create it with defaults
			def := defaultConfig()

			// Ensure the ledger directory exists
			ledgerDir := filepath.Dir(def.LedgerPath)
			if err := os.MkdirAll(ledgerDir, 0755); err != nil {
				return Config{}, "", fmt.Errorf("failed to create ledger directory %s: %v", ledgerDir, err)
			}

			// Save the default config
			savedPath, saveErr := Save(def)
			if saveErr != nil {
				return Config{}, path, fmt.Errorf("failed to create default config file: %v", saveErr)
			}
			Set(def)
			return def, savedPath, nil
		}
		return Config{}, path, fmt.Errorf("failed to read config file at %s: %v", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, path, fmt.Errorf("failed to parse config JSON: %v", err)
	}

	// Merge defaults for any missing fields
	def := defaultConfig()
	needsSave := false

	if c.LedgerPath == "" {
		c.LedgerPath = def.LedgerPath
		needsSave = true
	}
	if c.OutputPath == "" {
		c.OutputPath = def.OutputPath
	}
	if c.DefaultStrength == 0 {
		c.DefaultStrength = def.DefaultStrength
	}
	if c.BoxThreshold == 0 {
		c.BoxThreshold = def.BoxThreshold
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = def.JPEGQuality
	}
	if c.ThumbnailSize == 0 {
		c.ThumbnailSize = def.ThumbnailSize
	}
	if c.Detector.Threshold == 0 {
		c.Detector.Threshold = def.Detector.Threshold
	}
	if c.Detector.InputSize == 0 {
		c.Detector.InputSize = def.Detector.InputSize
	}

	// Ensure the ledger directory exists
	ledgerDir := filepath.Dir(c.LedgerPath)
	if err := os.MkdirAll(ledgerDir, 0755); err != nil {
		return Config{}, path, fmt.Errorf("failed to create ledger directory %s: %v", ledgerDir, err)
	}

	// Save config if we had to fill in critical missing fields
	if needsSave {
		if _, saveErr := Save(c); saveErr != nil {
			// Log but don't fail - we can continue with the in-memory config
			fmt.Printf("Warning: failed to save updated config: %v\n", saveErr)
		}
	}

	Set(c)
	return c, path, nil
}

// Save writes the config to disk, creating the directory as needed. Returns the path.
func Save(c Config) (string, error) {
	path, err := getConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %v", err)
	}
	base := map[string]json.RawMessage{}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		var tmp map[string]json.RawMessage
		if err := json.Unmarshal(existing, &tmp); err == nil {
			base = tmp
		}
	}

	marshaled, err := json.Marshal(c)
	if err != nil {
		return path, fmt.Errorf("failed to marshal config: %v", err)
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(marshaled, &incoming); err != nil {
		return path, fmt.Errorf("failed to map config JSON: %v", err)
	}

	deepMergeJSON(base, incoming)

	mergedData, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return path, fmt.Errorf("failed to marshal merged config: %v", err)
	}
	if err := os.WriteFile(path, mergedData, 0644); err != nil {
		return path, fmt.Errorf("failed to write config file: %v", err)
	}
	Set(c)
	return path, nil
}
