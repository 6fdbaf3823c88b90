package downloads

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// IsArchive reports whether path has a supported archive extension.
func IsArchive(path string) bool {
	switch {
	case strings.HasSuffix(path, ".zip"), strings.HasSuffix(path, ".7z"):
		return true
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return true
	}
	return false
}

// Extract unpacks a .zip, .7z, .tar.gz, or .tgz archive into destDir,
// dispatching on the file extension.
func Extract(archivePath, destDir string, cb ProgressCallback) error {
	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, destDir, cb)
	case strings.HasSuffix(archivePath, ".7z"):
		return extract7z(archivePath, destDir, cb)
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return extractTarGz(archivePath, destDir, cb)
	}
	return fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
}

func extractZip(archivePath, destDir string, cb ProgressCallback) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer reader.Close()

	for i, file := range reader.File {
		if cb != nil && i%10 == 0 {
			cb(Progress{
				Status:  StatusExtracting,
				Message: fmt.Sprintf("Extracting %d/%d files...", i+1, len(reader.File)),
			})
		}
		if file.FileInfo().IsDir() || !filepath.IsLocal(file.Name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
		}
		err = writeFile(filepath.Join(destDir, file.Name), rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
	}
	return nil
}

func extract7z(archivePath, destDir string, cb ProgressCallback) error {
	reader, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer reader.Close()

	for i, file := range reader.File {
		if cb != nil && i%10 == 0 {
			cb(Progress{
				Status:  StatusExtracting,
				Message: fmt.Sprintf("Extracting %d/%d files...", i+1, len(reader.File)),
			})
		}
		if file.FileInfo().IsDir() || !filepath.IsLocal(file.Name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
		}
		err = writeFile(filepath.Join(destDir, file.Name), rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractTarGz(archivePath, destDir string, cb ProgressCallback) error {
	if cb != nil {
		cb(Progress{Status: StatusExtracting, Message: "Extracting tar.gz archive..."})
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg || !filepath.IsLocal(header.Name) {
			continue
		}
		if err := writeFile(filepath.Join(destDir, header.Name), tr); err != nil {
			return fmt.Errorf("failed to extract %s: %w", header.Name, err)
		}
	}
	return nil
}

// ExtractFileFromZip extracts the first file in a ZIP archive whose
// name matches, writing it to destPath.
func ExtractFileFromZip(archivePath, destPath string, match func(name string) bool) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !match(file.Name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
		}
		err = writeFile(destPath, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
		return nil
	}
	return fmt.Errorf("no matching file found in archive")
}

// ExtractFileFromTarGz extracts the first regular file in a tar.gz
// archive whose name matches, writing it to destPath.
func ExtractFileFromTarGz(archivePath, destPath string, match func(name string) bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg || !match(header.Name) {
			continue
		}
		if err := writeFile(destPath, tr); err != nil {
			return fmt.Errorf("failed to extract %s: %w", header.Name, err)
		}
		return nil
	}
	return fmt.Errorf("no matching file found in archive")
}

func writeFile(destPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}
