package downloads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	retryAttempts = 3
	retryDelay    = 5 * time.Second
	copyBufSize   = 32 * 1024
)

// Download fetches url into destPath, resuming a partial file with an
// HTTP Range request when the server supports it. Failed attempts are
// retried up to three times with a short delay; context cancellation
// stops immediately.
func Download(ctx context.Context, destPath, url string, cb ByteProgressCallback) error {
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err := downloadOnce(ctx, destPath, url, cb)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if attempt < retryAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return fmt.Errorf("download failed after %d attempts: %w", retryAttempts, lastErr)
}

func downloadOnce(ctx context.Context, destPath, url string, cb ByteProgressCallback) error {
	var existing int64
	if stat, err := os.Stat(destPath); err == nil {
		existing = stat.Size()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	// No client timeout: large archives take as long as they take, and
	// the context still cancels.
	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the Range header; start over
		existing = 0
	case http.StatusPartialContent:
	default:
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	total := resp.ContentLength
	if total > 0 && existing > 0 {
		total += existing
	}

	var out *os.File
	if existing > 0 && resp.StatusCode == http.StatusPartialContent {
		out, err = os.OpenFile(destPath, os.O_APPEND|os.O_WRONLY, 0644)
	} else {
		out, err = os.Create(destPath)
	}
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer out.Close()

	downloaded := existing
	buf := make([]byte, copyBufSize)
	lastReport := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("failed to write to file: %w", werr)
			}
			downloaded += int64(n)
			if cb != nil && time.Since(lastReport) >= 100*time.Millisecond {
				cb(downloaded, total)
				lastReport = time.Now()
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
	}

	if cb != nil {
		cb(downloaded, total)
	}
	return nil
}

// FormatBytes formats bytes as a human-readable size.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed formats bytes per second as a human-readable speed.
func FormatSpeed(bytesPerSec int64) string {
	return FormatBytes(bytesPerSec) + "/s"
}
