package assets

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwatanabe/amazon-order-scraper/internal/config"
)

type fakeDownloader struct {
	calls  int
	body   []byte
	status int
	err    error
	// failuresBeforeSuccess makes the first N calls fail.
	failuresBeforeSuccess int
}

func (f *fakeDownloader) Download(ctx context.Context, rawURL string) ([]byte, int, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	if f.calls <= f.failuresBeforeSuccess {
		return nil, http.StatusInternalServerError, nil
	}
	return f.body, f.status, nil
}

func testConfig() config.AssetsConfig {
	return config.AssetsConfig{MaxAttempts: 5, RetryDelay: time.Millisecond}
}

func TestEnsureSavedDownloadsOnce(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{body: []byte("jpeg-bytes"), status: http.StatusOK}
	f := NewFetcher(dl, dir, testConfig())

	f.EnsureSaved(context.Background(), "B00AAA1111", "https://img.example/I/one.jpg")
	f.EnsureSaved(context.Background(), "B00AAA1111", "https://img.example/I/one.jpg")

	assert.Equal(t, 1, dl.calls, "the second call must hit the disk cache")

	data, err := os.ReadFile(filepath.Join(dir, "B00AAA1111.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestEnsureSavedRetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{body: []byte("x"), status: http.StatusOK, failuresBeforeSuccess: 2}
	f := NewFetcher(dl, dir, testConfig())

	f.EnsureSaved(context.Background(), "B00BBB2222", "https://img.example/I/two.png")

	assert.Equal(t, 3, dl.calls)
	assert.FileExists(t, filepath.Join(dir, "B00BBB2222.png"))
}

func TestEnsureSavedGivesUpWithoutFile(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{err: errors.New("network down")}
	f := NewFetcher(dl, dir, testConfig())

	f.EnsureSaved(context.Background(), "B00CCC3333", "https://img.example/I/three.jpg")

	assert.Equal(t, 5, dl.calls)
	assert.NoFileExists(t, filepath.Join(dir, "B00CCC3333.jpg"))
}

func TestEnsureSavedSkipsBlankInputs(t *testing.T) {
	dl := &fakeDownloader{}
	f := NewFetcher(dl, t.TempDir(), testConfig())

	f.EnsureSaved(context.Background(), "", "https://img.example/I/x.jpg")
	f.EnsureSaved(context.Background(), "B00DDD4444", "")

	assert.Zero(t, dl.calls)
}

func TestImagePathExtension(t *testing.T) {
	f := NewFetcher(&fakeDownloader{}, "img", testConfig())

	assert.Equal(t, filepath.Join("img", "A.png"), f.ImagePath("A", "https://x/y.png?size=500"))
	assert.Equal(t, filepath.Join("img", "B.jpg"), f.ImagePath("B", "https://x/no-extension"))
}
