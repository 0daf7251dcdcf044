// Package download fetches product archives over HTTP, verifying
// checksums and skipping files already on disk. When the primary
// endpoint cannot serve a Sentinel-2 product, a public cloud mirror is
// tried as a fallback.
package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
)

// Downloader fetches product archives into a local directory tree.
type Downloader struct {
	httpClient *http.Client
	logger     *slog.Logger

	// token authenticates against the primary download endpoint.
	token string

	// externalBucket names a cloud mirror tried when the primary
	// endpoint fails for a Sentinel-2 product. Empty disables the
	// fallback.
	externalBucket string

	// showProgress renders a terminal progress bar per file.
	showProgress bool

	// openBucket opens the mirror bucket; tests substitute an
	// in-memory one.
	openBucket openBucketFunc
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) { d.logger = logger }
}

// WithToken sets the bearer token for the primary endpoint.
func WithToken(token string) Option {
	return func(d *Downloader) { d.token = token }
}

// WithExternalBucket enables the cloud mirror fallback.
func WithExternalBucket(bucket string) Option {
	return func(d *Downloader) { d.externalBucket = bucket }
}

// WithProgress enables per-file progress bars.
func WithProgress(show bool) Option {
	return func(d *Downloader) { d.showProgress = show }
}

// New creates a Downloader.
func New(timeout time.Duration, opts ...Option) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads one product archive into destDir and returns its
// path. A file that already exists with a matching checksum (or size,
// when the catalogue published no checksum) is not downloaded again.
func (d *Downloader) Fetch(ctx context.Context, fp catalog.Footprint, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destDir, err)
	}
	dest := filepath.Join(destDir, fp.Title+".zip")

	ok, err := d.verifyExisting(dest, fp)
	if err != nil {
		return "", err
	}
	if ok {
		d.logger.DebugContext(ctx, "product already downloaded",
			slog.String("title", fp.Title),
			slog.String("path", dest),
		)
		return dest, nil
	}

	// Products moved to the long-term archive are not served by the
	// primary endpoint; go straight to the mirror when one is
	// configured.
	if !fp.Online && d.externalBucket != "" && fp.Platform == catalog.Sentinel2 {
		d.logger.InfoContext(ctx, "product offline, fetching from cloud mirror",
			slog.String("title", fp.Title),
		)
		if err := d.fetchBucket(ctx, fp, destDir); err != nil {
			return "", err
		}
		return filepath.Join(destDir, fp.Title+".SAFE"), nil
	}

	if err := d.fetchHTTP(ctx, fp, dest); err != nil {
		if d.externalBucket == "" || fp.Platform != catalog.Sentinel2 {
			return "", err
		}
		d.logger.WarnContext(ctx, "primary download failed, trying cloud mirror",
			slog.String("title", fp.Title),
			slog.String("error", err.Error()),
		)
		if err := d.fetchBucket(ctx, fp, destDir); err != nil {
			return "", err
		}
		// Mirror layout is an unpacked SAFE directory, not a zip.
		return filepath.Join(destDir, fp.Title+".SAFE"), nil
	}

	if fp.MD5 != "" {
		sum, err := fileMD5(dest)
		if err != nil {
			return "", err
		}
		if sum != fp.MD5 {
			os.Remove(dest)
			return "", fmt.Errorf("checksum mismatch for %s: got %s want %s", fp.Title, sum, fp.MD5)
		}
	}
	return dest, nil
}

// verifyExisting reports whether dest already holds the product.
func (d *Downloader) verifyExisting(dest string, fp catalog.Footprint) (bool, error) {
	info, err := os.Stat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", dest, err)
	}

	if fp.MD5 != "" {
		sum, err := fileMD5(dest)
		if err != nil {
			return false, err
		}
		return sum == fp.MD5, nil
	}
	return fp.Size > 0 && info.Size() == fp.Size, nil
}

func (d *Downloader) fetchHTTP(ctx context.Context, fp catalog.Footprint, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fp.Href, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed with status %d", fp.Title, resp.StatusCode)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	var w io.Writer = out
	if d.showProgress {
		bar := progressbar.DefaultBytes(resp.ContentLength, fp.Title)
		w = io.MultiWriter(out, bar)
	}

	_, copyErr := io.Copy(w, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, closeErr)
	}

	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", tmp, err)
	}

	d.logger.InfoContext(ctx, "downloaded product",
		slog.String("title", fp.Title),
		slog.String("path", dest),
	)
	return nil
}

// TilePrefix derives the cloud mirror object prefix from a Sentinel-2
// product title. The MGRS tile is encoded at a fixed offset in the
// title, e.g. T33TWJ in
// S2A_MSIL2A_20200603T095031_N0214_R079_T33TWJ_20200603T114252.
// Level-2A archives live under the bucket's L2/ root; Level-1C at the
// top-level tiles/ root.
func TilePrefix(title string) (string, error) {
	const tileOffset = 38
	if len(title) < tileOffset+6 || title[tileOffset] != 'T' {
		return "", fmt.Errorf("title %q does not carry an MGRS tile", title)
	}
	tile := title[tileOffset+1 : tileOffset+6]
	prefix := fmt.Sprintf("tiles/%s/%s/%s/%s.SAFE/", tile[:2], tile[2:3], tile[3:5], title)
	if strings.Contains(title, "MSIL2A") {
		prefix = "L2/" + prefix
	}
	return prefix, nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return strings.ToLower(hex.EncodeToString(h.Sum(nil))), nil
}
