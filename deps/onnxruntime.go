package deps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/d3ud3u-ntp2/spherize/downloads"
)

const onnxRuntimeVersion = "1.22.0"

func init() {
	Register(&Dependency{
		ID:            "onnxruntime",
		Name:          "ONNX Runtime",
		Description:   "Shared library backing the ONNX subject detector",
		TargetDir:     GetDepsDir("onnxruntime"),
		LatestVersion: onnxRuntimeVersion,
		DownloadURL:   RuntimeDownloadURL(onnxRuntimeVersion, runtime.GOARCH),
		Optional:      true,
		InstallURL:    "https://github.com/microsoft/onnxruntime/releases",
		Check:         checkONNXRuntime,
		DownloadFn:    downloadONNXRuntime,
	})
}

// checkONNXRuntime looks for the shared library at any of the
// locations LibraryPath searches.
func checkONNXRuntime(ctx context.Context) (bool, string, error) {
	path := LibraryPath("")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, "", nil
	} else if err != nil {
		return false, "", fmt.Errorf("error checking runtime library: %w", err)
	}
	return true, onnxRuntimeVersion, nil
}

// downloadONNXRuntime fetches the platform archive from the upstream
// releases and extracts the shared library into the target directory.
func downloadONNXRuntime(ctx context.Context, progress downloads.ProgressCallback) error {
	if progress == nil {
		progress = func(downloads.Progress) {}
	}
	dep, ok := Get("onnxruntime")
	if !ok {
		return fmt.Errorf("onnxruntime dependency not found in registry")
	}

	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		return fmt.Errorf("unsupported architecture %s; install ONNX Runtime manually from %s", arch, dep.InstallURL)
	}
	if err := os.MkdirAll(dep.TargetDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	ext := ".tgz"
	if runtimeArchiveIsZip() {
		ext = ".zip"
	}
	archive := filepath.Join(dep.TargetDir, "onnxruntime"+ext)
	url := RuntimeDownloadURL(onnxRuntimeVersion, arch)

	progress(downloads.Progress{Status: downloads.StatusDownloading, Message: "Downloading ONNX Runtime..."})
	tracker := downloads.NewSpeedTracker()
	err := downloads.Download(ctx, archive, url, func(downloaded, total int64) {
		p := downloads.Progress{
			Status:          downloads.StatusDownloading,
			Message:         fmt.Sprintf("Downloading ONNX Runtime: %s / %s", downloads.FormatBytes(downloaded), downloads.FormatBytes(total)),
			BytesDownloaded: downloaded,
			TotalBytes:      total,
			Speed:           tracker.Update(downloaded),
		}
		if total > 0 {
			p.Percent = float64(downloaded) / float64(total) * 100
		}
		progress(p)
	})
	if err != nil {
		return fmt.Errorf("failed to download ONNX Runtime: %w", err)
	}
	defer os.Remove(archive)

	progress(downloads.Progress{Status: downloads.StatusExtracting, Message: "Extracting ONNX Runtime library..."})

	libPath := filepath.Join(dep.TargetDir, LibraryName())
	match := runtimeLibraryMatcher(runtime.GOOS)
	if runtimeArchiveIsZip() {
		err = downloads.ExtractFileFromZip(archive, libPath, match)
	} else {
		err = downloads.ExtractFileFromTarGz(archive, libPath, match)
	}
	if err != nil {
		return fmt.Errorf("failed to extract runtime library: %w", err)
	}
	os.Chmod(libPath, 0755)

	// Linux builds dlopen the shared providers library from the same
	// directory as the main one.
	if runtime.GOOS == "linux" {
		providerPath := filepath.Join(dep.TargetDir, "libonnxruntime_providers_shared.so")
		err := downloads.ExtractFileFromTarGz(archive, providerPath, func(name string) bool {
			return strings.HasSuffix(name, "/lib/libonnxruntime_providers_shared.so")
		})
		if err == nil {
			os.Chmod(providerPath, 0755)
		}
	}

	progress(downloads.Progress{Status: downloads.StatusComplete, Message: "ONNX Runtime installed", Percent: 100})
	return nil
}

// runtimeLibraryMatcher spots the main library entry in the upstream
// archive layout for the given platform:
//
//	windows: lib/onnxruntime.dll
//	linux:   lib/libonnxruntime.so.<version>
//	macos:   lib/libonnxruntime.<version>.dylib
func runtimeLibraryMatcher(goos string) func(name string) bool {
	switch goos {
	case "windows":
		return func(name string) bool {
			return strings.HasSuffix(name, "/lib/onnxruntime.dll")
		}
	case "darwin":
		return func(name string) bool {
			return strings.Contains(name, "/lib/libonnxruntime.") &&
				strings.HasSuffix(name, ".dylib") &&
				!strings.Contains(name, "providers")
		}
	default:
		return func(name string) bool {
			return strings.Contains(name, "/lib/libonnxruntime.so.") &&
				!strings.Contains(name, "providers")
		}
	}
}
