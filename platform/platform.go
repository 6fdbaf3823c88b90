// Package platform provides cross-platform utilities for directory
// paths, shared library extensions, and OS-specific operations.
package platform

// AppName is the application name used for directory naming
const AppName = "spherize"

// AppDisplayName is the display name used on Windows and macOS
const AppDisplayName = "Spherize"

// GetDataDir returns the application data directory.
// Windows: %APPDATA%\Spherize
// Linux: ~/.local/share/spherize
// Falls back to ~/.spherize if XDG is not available.
func GetDataDir() string {
	return getDataDir()
}

// GetCacheDir returns the cache directory for downloaded kits.
// Windows: %APPDATA%\Spherize
// Linux: ~/.cache/spherize
func GetCacheDir() string {
	return getCacheDir()
}

// SharedLibExtension returns the shared library extension for the current platform.
// Windows: ".dll"
// Linux: ".so"
func SharedLibExtension() string {
	return sharedLibExtension()
}

// OpenFile opens a file or directory with the default application.
// Windows: uses "cmd /c start"
// Linux: uses "xdg-open"
func OpenFile(path string) error {
	return openFile(path)
}
