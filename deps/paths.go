package deps

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/d3ud3u-ntp2/spherize/platform"
)

// GetDepsDir returns the installation directory for a dependency
// subdirectory, e.g. GetDepsDir("onnxruntime") under the platform data
// directory.
func GetDepsDir(subdir string) string {
	return filepath.Join(platform.GetDataDir(), subdir)
}

// LibraryName returns the platform-specific ONNX Runtime library name.
func LibraryName() string {
	return "onnxruntime" + platform.SharedLibExtension()
}

// LibraryPath resolves the runtime library location: the configured
// path when set, then the ONNXRUNTIME_SHARED_LIBRARY_PATH environment
// variable, then the default install directory.
func LibraryPath(configured string) string {
	if configured != "" {
		return configured
	}
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	return filepath.Join(GetDepsDir("onnxruntime"), LibraryName())
}

// RuntimeDownloadURL returns the platform-specific download URL for
// ONNX Runtime.
func RuntimeDownloadURL(version, arch string) string {
	switch runtime.GOOS {
	case "windows":
		if arch == "arm64" {
			return "https://github.com/microsoft/onnxruntime/releases/download/v" + version + "/onnxruntime-win-arm64-" + version + ".zip"
		}
		return "https://github.com/microsoft/onnxruntime/releases/download/v" + version + "/onnxruntime-win-x64-" + version + ".zip"
	case "darwin":
		if arch == "arm64" {
			return "https://github.com/microsoft/onnxruntime/releases/download/v" + version + "/onnxruntime-osx-arm64-" + version + ".tgz"
		}
		return "https://github.com/microsoft/onnxruntime/releases/download/v" + version + "/onnxruntime-osx-x86_64-" + version + ".tgz"
	default: // linux
		if arch == "arm64" {
			return "https://github.com/microsoft/onnxruntime/releases/download/v" + version + "/onnxruntime-linux-aarch64-" + version + ".tgz"
		}
		return "https://github.com/microsoft/onnxruntime/releases/download/v" + version + "/onnxruntime-linux-x64-" + version + ".tgz"
	}
}

// runtimeArchiveIsZip reports whether the runtime ships as a ZIP on
// this platform. Only Windows does; macOS and Linux use tgz.
func runtimeArchiveIsZip() bool {
	return runtime.GOOS == "windows"
}
