// Package downloads fetches remote archives with resumable HTTP and
// unpacks the formats layer kits and runtime bundles ship in.
package downloads

import (
	"sync"
	"time"
)

// Status represents the current state of a download.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusExtracting  Status = "extracting"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Progress is one progress report for a download or extraction.
type Progress struct {
	Status          Status  `json:"status"`
	Message         string  `json:"message"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	TotalBytes      int64   `json:"total_bytes"`
	Percent         float64 `json:"percent"`
	Speed           int64   `json:"speed"` // bytes/sec
}

// ProgressCallback receives progress reports. Callbacks may be nil.
type ProgressCallback func(Progress)

// ByteProgressCallback receives raw byte counts during a transfer.
type ByteProgressCallback func(downloaded, total int64)

// SpeedTracker smooths transfer speed over a sliding window.
type SpeedTracker struct {
	mu          sync.Mutex
	lastBytes   int64
	lastTime    time.Time
	speedWindow []int64
}

// NewSpeedTracker creates a new SpeedTracker.
func NewSpeedTracker() *SpeedTracker {
	return &SpeedTracker{
		lastTime:    time.Now(),
		speedWindow: make([]int64, 0, 10),
	}
}

// Update feeds the tracker the cumulative byte count and returns the
// smoothed speed in bytes per second.
func (s *SpeedTracker) Update(totalBytes int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed < 0.1 {
		// Not enough time passed for an accurate measurement
		if len(s.speedWindow) > 0 {
			return s.averageSpeed()
		}
		return 0
	}

	delta := totalBytes - s.lastBytes
	s.lastBytes = totalBytes
	s.lastTime = now

	s.speedWindow = append(s.speedWindow, int64(float64(delta)/elapsed))
	if len(s.speedWindow) > 10 {
		s.speedWindow = s.speedWindow[1:]
	}
	return s.averageSpeed()
}

func (s *SpeedTracker) averageSpeed() int64 {
	if len(s.speedWindow) == 0 {
		return 0
	}
	var sum int64
	for _, v := range s.speedWindow {
		sum += v
	}
	return sum / int64(len(s.speedWindow))
}
