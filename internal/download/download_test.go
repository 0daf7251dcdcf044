package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
)

func TestTilePrefix(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		want    string
		wantErr bool
	}{
		{
			name:  "level 2A product under the L2 root",
			title: "S2A_MSIL2A_20200603T095031_N0214_R079_T33TWJ_20200603T114252",
			want:  "L2/tiles/33/T/WJ/S2A_MSIL2A_20200603T095031_N0214_R079_T33TWJ_20200603T114252.SAFE/",
		},
		{
			name:  "level 1C product",
			title: "S2B_MSIL1C_20200605T100559_N0209_R022_T32TQM_20200605T112624",
			want:  "tiles/32/T/QM/S2B_MSIL1C_20200605T100559_N0209_R022_T32TQM_20200605T112624.SAFE/",
		},
		{
			name:    "radar title has no tile",
			title:   "S1A_IW_GRDH_1SDV_20200603T062000_20200603T062025_032839_03CDEF_1234",
			wantErr: true,
		},
		{
			name:    "truncated title",
			title:   "S2A_MSIL2A",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TilePrefix(tt.title)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("TilePrefix(%q) = %q, want error", tt.title, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("TilePrefix(%q) error = %v", tt.title, err)
			}
			if got != tt.want {
				t.Errorf("TilePrefix(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestFetchDownloadsAndVerifies(t *testing.T) {
	payload := []byte("pretend this is a SAFE archive")
	sum := md5.Sum(payload)

	var requests int
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		gotAuth = r.Header.Get("Authorization")
		w.Write(payload)
	}))
	defer server.Close()

	fp := catalog.Footprint{
		Title:    "S1A_TEST",
		Platform: catalog.Sentinel1,
		Href:     server.URL + "/product",
		Size:     int64(len(payload)),
		MD5:      hex.EncodeToString(sum[:]),
	}

	dir := t.TempDir()
	d := New(10*time.Second, WithToken("secret"))

	dest, err := d.Fetch(context.Background(), fp, dir)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", gotAuth)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read download: %v", err)
	}
	if string(data) != string(payload) {
		t.Error("downloaded content does not match")
	}
	if filepath.Base(dest) != "S1A_TEST.zip" {
		t.Errorf("dest = %s, want S1A_TEST.zip", filepath.Base(dest))
	}

	// A second fetch must hit the verified file on disk, not the server.
	if _, err := d.Fetch(context.Background(), fp, dir); err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if requests != 1 {
		t.Errorf("request count = %d, want 1 (existing file must be reused)", requests)
	}
}

func TestFetchChecksumMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupted"))
	}))
	defer server.Close()

	fp := catalog.Footprint{
		Title:    "S1A_BAD",
		Platform: catalog.Sentinel1,
		Href:     server.URL + "/product",
		MD5:      "00000000000000000000000000000000",
	}

	dir := t.TempDir()
	d := New(10 * time.Second)

	if _, err := d.Fetch(context.Background(), fp, dir); err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
	if _, err := os.Stat(filepath.Join(dir, "S1A_BAD.zip")); !os.IsNotExist(err) {
		t.Error("corrupt download must be removed")
	}
}

func TestFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	fp := catalog.Footprint{
		Title:    "S1A_MISSING",
		Platform: catalog.Sentinel1,
		Href:     server.URL + "/product",
	}

	d := New(10 * time.Second)
	if _, err := d.Fetch(context.Background(), fp, t.TempDir()); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}

func TestFetchSkipsBySizeWithoutChecksum(t *testing.T) {
	payload := []byte("already here")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "S1A_HERE.zip"), payload, 0o644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be hit for a size-matched file")
	}))
	defer server.Close()

	fp := catalog.Footprint{
		Title:    "S1A_HERE",
		Platform: catalog.Sentinel1,
		Href:     server.URL + "/product",
		Size:     int64(len(payload)),
	}

	d := New(10 * time.Second)
	if _, err := d.Fetch(context.Background(), fp, dir); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
}

func TestFetchOfflineProductUsesMirror(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("primary endpoint must not be hit for an offline product")
	}))
	defer server.Close()

	const title = "S2A_MSIL2A_20200603T095031_N0214_R079_T33TWJ_20200603T114252"
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	prefix := "L2/tiles/33/T/WJ/" + title + ".SAFE/"
	if err := bucket.WriteAll(ctx, prefix+"MTD_MSIL2A.xml", []byte("<xml/>"), nil); err != nil {
		t.Fatalf("failed to seed bucket: %v", err)
	}

	d := New(10*time.Second, WithExternalBucket("mirror"))
	d.openBucket = func(context.Context) (*blob.Bucket, error) { return bucket, nil }

	dir := t.TempDir()
	path, err := d.Fetch(ctx, catalog.Footprint{
		Title:    title,
		Platform: catalog.Sentinel2,
		Href:     server.URL + "/product",
		Online:   false,
	}, dir)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if want := filepath.Join(dir, title+".SAFE"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(filepath.Join(path, "MTD_MSIL2A.xml")); err != nil {
		t.Errorf("expected mirrored metadata file: %v", err)
	}
}

func TestFetchOfflineWithoutMirrorTriesPrimary(t *testing.T) {
	payload := []byte("zipped product bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	d := New(10 * time.Second)
	path, err := d.Fetch(context.Background(), catalog.Footprint{
		Title:    "S2A_OFFLINE",
		Platform: catalog.Sentinel2,
		Href:     server.URL + "/product",
		Online:   false,
	}, t.TempDir())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read download: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("downloaded %q, want %q", got, payload)
	}
}
