// Package kits loads layer kits: a directory or archive bundling a
// background, one or more source layers with their masks or key
// colors, and a kit.json manifest pinning operation defaults.
package kits

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/d3ud3u-ntp2/spherize/downloads"
	"github.com/d3ud3u-ntp2/spherize/imageio"
	"github.com/d3ud3u-ntp2/spherize/keyout"
	"github.com/d3ud3u-ntp2/spherize/pipeline"
	"github.com/d3ud3u-ntp2/spherize/platform"
	"github.com/d3ud3u-ntp2/spherize/raster"
	"github.com/d3ud3u-ntp2/spherize/roi"
)

// Open loads a kit from a directory, a local archive, or an http(s)
// URL. Archives unpack into the cache keyed by source, so reopening
// the same kit skips the extraction.
func Open(ctx context.Context, source string, cb downloads.ProgressCallback) (*Kit, error) {
	if st, err := os.Stat(source); err == nil && st.IsDir() {
		return Load(source)
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return openRemote(ctx, source, cb)
	}
	if downloads.IsArchive(source) {
		return openArchive(source, cb)
	}
	return nil, fmt.Errorf("not a kit directory, archive, or URL: %s", source)
}

func openArchive(path string, cb downloads.ProgressCallback) (*Kit, error) {
	sum, err := imageio.HashFile(path, 1<<20)
	if err != nil {
		return nil, err
	}
	dest := cachePath(sum)
	if _, err := findManifestDir(dest); err != nil {
		os.RemoveAll(dest)
		if err := downloads.Extract(path, dest, cb); err != nil {
			os.RemoveAll(dest)
			return nil, fmt.Errorf("failed to unpack kit: %w", err)
		}
	}
	return Load(dest)
}

func openRemote(ctx context.Context, url string, cb downloads.ProgressCallback) (*Kit, error) {
	suffix := archiveSuffix(url)
	if suffix == "" {
		return nil, fmt.Errorf("kit URL must name a supported archive: %s", url)
	}
	dest := cachePath(imageio.HashBytes([]byte(url)))
	if k, err := Load(dest); err == nil {
		return k, nil
	}

	archive := dest + suffix
	if err := imageio.EnsureDir(filepath.Dir(archive)); err != nil {
		return nil, err
	}
	err := downloads.Download(ctx, archive, url, func(downloaded, total int64) {
		if cb == nil {
			return
		}
		p := downloads.Progress{
			Status:          downloads.StatusDownloading,
			Message:         fmt.Sprintf("Downloading kit... %s", downloads.FormatBytes(downloaded)),
			BytesDownloaded: downloaded,
			TotalBytes:      total,
		}
		if total > 0 {
			p.Percent = float64(downloaded) / float64(total) * 100
		}
		cb(p)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download kit: %w", err)
	}
	if err := downloads.Extract(archive, dest, cb); err != nil {
		os.RemoveAll(dest)
		return nil, fmt.Errorf("failed to unpack kit: %w", err)
	}
	os.Remove(archive)
	return Load(dest)
}

func cachePath(sum string) string {
	return filepath.Join(platform.GetCacheDir(), "kits", sum[:16])
}

func archiveSuffix(name string) string {
	for _, s := range []string{".tar.gz", ".tgz", ".zip", ".7z"} {
		if strings.HasSuffix(name, s) {
			return s
		}
	}
	return ""
}

// Request is a fully loaded operation ready for the pipeline: decoded
// background and layers plus the options the manifest pinned.
type Request struct {
	Background *raster.Raster
	Layers     []pipeline.Layer
	Options    pipeline.Options
}

// Resolve decodes the kit's images and builds the pipeline request.
// Manifest settings override the passed defaults; anything the
// manifest leaves out keeps the default.
func (k *Kit) Resolve(defaults pipeline.Options) (*Request, error) {
	m := &k.Manifest
	bg, err := imageio.Load(filepath.Join(k.Dir, m.Background))
	if err != nil {
		return nil, fmt.Errorf("kit background: %w", err)
	}

	layers := make([]pipeline.Layer, 0, len(m.Layers))
	for i, spec := range m.Layers {
		img, err := imageio.Load(filepath.Join(k.Dir, spec.File))
		if err != nil {
			return nil, fmt.Errorf("kit layer %d: %w", i, err)
		}
		l := pipeline.Layer{Image: img, OffsetX: spec.OffsetX, OffsetY: spec.OffsetY}
		switch {
		case spec.Mask != "":
			mimg, err := imageio.Load(filepath.Join(k.Dir, spec.Mask))
			if err != nil {
				return nil, fmt.Errorf("kit layer %d mask: %w", i, err)
			}
			l.Mask = mimg.Intensity()
		case spec.Key != "":
			key, err := keyout.Parse(spec.Key)
			if err != nil {
				return nil, fmt.Errorf("kit layer %d: %w", i, err)
			}
			tol := spec.KeyTolerance
			if tol <= 0 {
				tol = keyout.DefaultTolerance
			}
			l.Mask = keyout.Build(img, key, tol, false)
		}
		layers = append(layers, l)
	}

	opts := defaults
	if m.Box != "" {
		// Inline coordinates pass through; anything else is a box file
		// inside the kit.
		if _, err := roi.ParseBoxText(m.Box); err == nil {
			opts.BoxSource = m.Box
		} else {
			opts.BoxSource = filepath.Join(k.Dir, m.Box)
		}
	}
	if m.Strength != nil {
		opts.Strength = *m.Strength
	}
	if m.Smooth != nil {
		opts.Smooth = *m.Smooth
	}
	return &Request{Background: bg, Layers: layers, Options: opts}, nil
}
