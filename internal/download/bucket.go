package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
)

type openBucketFunc func(ctx context.Context) (*blob.Bucket, error)

// fetchBucket mirrors an unpacked Sentinel-2 SAFE directory from the
// public cloud bucket into destDir. The mirror stores products object by
// object under a tile-derived prefix rather than as one archive.
func (d *Downloader) fetchBucket(ctx context.Context, fp catalog.Footprint, destDir string) error {
	prefix, err := TilePrefix(fp.Title)
	if err != nil {
		return err
	}

	open := d.openBucket
	if open == nil {
		open = func(ctx context.Context) (*blob.Bucket, error) {
			return blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", d.externalBucket))
		}
	}
	bucket, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open bucket %s: %w", d.externalBucket, err)
	}
	defer bucket.Close()

	root := filepath.Join(destDir, fp.Title+".SAFE")

	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	count := 0
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}

		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" {
			continue
		}
		if err := d.copyObject(ctx, bucket, obj.Key, filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			return err
		}
		count++
	}

	if count == 0 {
		return fmt.Errorf("no objects under %s in bucket %s", prefix, d.externalBucket)
	}

	d.logger.InfoContext(ctx, "mirrored product from bucket",
		slog.String("title", fp.Title),
		slog.String("bucket", d.externalBucket),
		slog.Int("object_count", count),
	)
	return nil
}

func (d *Downloader) copyObject(ctx context.Context, bucket *blob.Bucket, key, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}

	reader, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("failed to open object %s: %w", key, err)
	}
	defer reader.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	_, copyErr := io.Copy(out, reader)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("failed to write %s: %w", dest, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", dest, closeErr)
	}
	return nil
}
