package appconfig

import (
	"encoding/json"
	"testing"
)

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.DefaultStrength != 1.0 {
		t.Errorf("Default DefaultStrength = %f; want 1.0", cfg.DefaultStrength)
	}

	if cfg.DisableSmoothing {
		t.Error("Default DisableSmoothing should be false")
	}

	if cfg.BoxThreshold != 10 {
		t.Errorf("Default BoxThreshold = %d; want 10", cfg.BoxThreshold)
	}

	if cfg.JPEGQuality != 95 {
		t.Errorf("Default JPEGQuality = %d; want 95", cfg.JPEGQuality)
	}

	if cfg.ThumbnailSize != 512 {
		t.Errorf("Default ThumbnailSize = %d; want 512", cfg.ThumbnailSize)
	}

	if cfg.Detector.Threshold != 0.5 {
		t.Errorf("Default Detector.Threshold = %f; want 0.5", cfg.Detector.Threshold)
	}

	if cfg.Detector.InputSize != 320 {
		t.Errorf("Default Detector.InputSize = %d; want 320", cfg.Detector.InputSize)
	}

	if cfg.OutputPath != "output" {
		t.Errorf("Default OutputPath = %q; want %q", cfg.OutputPath, "output")
	}
}

// TestGetSet verifies Get/Set functions for in-memory config
func TestGetSet(t *testing.T) {
	// Save original and restore after test
	original := Get()
	defer Set(original)

	testConfig := Config{
		LedgerPath:      "/test/path/ledger.db",
		OutputPath:      "/test/output",
		DefaultStrength: 0.7,
		JPEGQuality:     80,
	}

	Set(testConfig)

	retrieved := Get()

	if retrieved.LedgerPath != testConfig.LedgerPath {
		t.Errorf("Get().LedgerPath = %q; want %q", retrieved.LedgerPath, testConfig.LedgerPath)
	}
	if retrieved.OutputPath != testConfig.OutputPath {
		t.Errorf("Get().OutputPath = %q; want %q", retrieved.OutputPath, testConfig.OutputPath)
	}
	if retrieved.DefaultStrength != testConfig.DefaultStrength {
		t.Errorf("Get().DefaultStrength = %f; want %f", retrieved.DefaultStrength, testConfig.DefaultStrength)
	}
	if retrieved.JPEGQuality != testConfig.JPEGQuality {
		t.Errorf("Get().JPEGQuality = %d; want %d", retrieved.JPEGQuality, testConfig.JPEGQuality)
	}
}

// TestIsJSONObject tests the JSON object detection helper
func TestIsJSONObject(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{`{}`, true},
		{`{"key": "value"}`, true},
		{`  {  }  `, true},
		{`[]`, false},
		{`"string"`, false},
		{`123`, false},
		{`null`, false},
		{``, false},
	}

	for _, tt := range tests {
		result := isJSONObject([]byte(tt.input))
		if result != tt.expected {
			t.Errorf("isJSONObject(%q) = %v; want %v", tt.input, result, tt.expected)
		}
	}
}

// TestDeepMergeJSON tests the JSON merge functionality
func TestDeepMergeJSON(t *testing.T) {
	tests := []struct {
		name     string
		dst      string
		src      string
		expected string
	}{
		{
			name:     "Simple merge",
			dst:      `{"a": "1"}`,
			src:      `{"b": "2"}`,
			expected: `{"a":"1","b":"2"}`,
		},
		{
			name:     "Override value",
			dst:      `{"a": "1"}`,
			src:      `{"a": "2"}`,
			expected: `{"a":"2"}`,
		},
		{
			name:     "Nested merge",
			dst:      `{"nested": {"a": "1"}}`,
			src:      `{"nested": {"b": "2"}}`,
			expected: `{"nested":{"a":"1","b":"2"}}`,
		},
		{
			name:     "Add new nested",
			dst:      `{"a": "1"}`,
			src:      `{"nested": {"b": "2"}}`,
			expected: `{"a":"1","nested":{"b":"2"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst map[string]json.RawMessage
			var src map[string]json.RawMessage

			json.Unmarshal([]byte(tt.dst), &dst)
			json.Unmarshal([]byte(tt.src), &src)

			deepMergeJSON(dst, src)

			result, _ := json.Marshal(dst)

			// Parse both for comparison (order-independent)
			var resultMap, expectedMap map[string]interface{}
			json.Unmarshal(result, &resultMap)
			json.Unmarshal([]byte(tt.expected), &expectedMap)

			if !mapsEqual(resultMap, expectedMap) {
				t.Errorf("deepMergeJSON result = %s; want %s", result, tt.expected)
			}
		})
	}
}

// mapsEqual compares two maps recursively
func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !valuesEqual(v, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok {
			return false
		}
		return mapsEqual(av, bv)
	default:
		return a == b
	}
}

// TestConfigJSONMarshal verifies Config can be marshaled to JSON
func TestConfigJSONMarshal(t *testing.T) {
	cfg := defaultConfig()
	cfg.LedgerPath = "/test/ledger.db"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal error = %v", err)
	}

	// Verify it's valid JSON
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Result is not valid JSON: %v", err)
	}

	// Check expected keys exist
	expectedKeys := []string{"ledgerPath", "outputPath", "defaultStrength", "boxThreshold", "jpegQuality", "thumbnailSize", "detector", "s3"}
	for _, key := range expectedKeys {
		if _, ok := parsed[key]; !ok {
			t.Errorf("Expected key %q not found in JSON output", key)
		}
	}
}

// TestConfigJSONUnmarshal verifies Config can be unmarshaled from JSON
func TestConfigJSONUnmarshal(t *testing.T) {
	jsonData := `{
		"ledgerPath": "/test/ledger.db",
		"outputPath": "/test/output",
		"defaultStrength": 0.7,
		"boxThreshold": 24,
		"detector": {
			"modelPath": "/model.onnx",
			"sharedLibraryPath": "/ort.so",
			"threshold": 0.4,
			"inputSize": 224
		},
		"s3": {
			"endpoint": "http://localhost:9000",
			"bucket": "renders",
			"usePathStyle": true
		}
	}`

	var cfg Config
	if err := json.Unmarshal([]byte(jsonData), &cfg); err != nil {
		t.Fatalf("json.Unmarshal error = %v", err)
	}

	if cfg.LedgerPath != "/test/ledger.db" {
		t.Errorf("LedgerPath = %q; want %q", cfg.LedgerPath, "/test/ledger.db")
	}
	if cfg.DefaultStrength != 0.7 {
		t.Errorf("DefaultStrength = %f; want 0.7", cfg.DefaultStrength)
	}
	if cfg.Detector.ModelPath != "/model.onnx" {
		t.Errorf("Detector.ModelPath = %q; want %q", cfg.Detector.ModelPath, "/model.onnx")
	}
	if cfg.Detector.Threshold != 0.4 {
		t.Errorf("Detector.Threshold = %f; want 0.4", cfg.Detector.Threshold)
	}
	if cfg.S3.Bucket != "renders" {
		t.Errorf("S3.Bucket = %q; want %q", cfg.S3.Bucket, "renders")
	}
	if !cfg.S3.UsePathStyle {
		t.Error("S3.UsePathStyle = false; want true")
	}
}

// TestConfigConcurrency tests concurrent access to Get/Set
func TestConfigConcurrency(t *testing.T) {
	// Save original and restore after test
	original := Get()
	defer Set(original)

	done := make(chan bool)

	// Writer goroutine
	go func() {
		for i := 0; i < 100; i++ {
			Set(Config{LedgerPath: "/path"})
		}
		done <- true
	}()

	// Reader goroutine
	go func() {
		for i := 0; i < 100; i++ {
			_ = Get()
		}
		done <- true
	}()

	// Wait for both to complete
	<-done
	<-done
}
