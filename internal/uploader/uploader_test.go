package uploader_test

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/core"
	"github.com/book-expert/voicechat-web/internal/objectstore"
	"github.com/book-expert/voicechat-web/internal/uploader"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockUpload = errors.New("mock upload error")

// recordingStore wraps the memory store and records deletions.
type recordingStore struct {
	*objectstore.MemoryObjectStore

	mu               sync.Mutex
	deleted          []string
	uploadShouldFail bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryObjectStore: objectstore.NewMemory(64<<20, 0)}
}

func (s *recordingStore) Upload(ctx context.Context, key string, data []byte) error {
	if s.uploadShouldFail {
		return errMockUpload
	}

	return s.MemoryObjectStore.Upload(ctx, key, data)
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, key)
	s.mu.Unlock()

	return s.MemoryObjectStore.Delete(ctx, key)
}

type selections struct {
	mu    sync.Mutex
	files []core.ImageFile
}

func (s *selections) record(file core.ImageFile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = append(s.files, file)
}

func (s *selections) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.files)
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "uploader-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func pngFile(t *testing.T, width, height int) core.ImageFile {
	t.Helper()

	img := imaging.New(width, height, color.NRGBA{R: 200, G: 120, B: 80, A: 255})

	var buf bytes.Buffer

	err := imaging.Encode(&buf, img, imaging.PNG)
	require.NoError(t, err)

	return core.ImageFile{Name: "face.png", ContentType: "image/png", Data: buf.Bytes()}
}

func setupUploader(t *testing.T) (*uploader.Uploader, *recordingStore, *selections) {
	t.Helper()

	store := newRecordingStore()
	selected := &selections{}

	return uploader.New(store, 192, selected.record, createTestLogger(t)), store, selected
}

func TestSelect_RejectsNonImage(t *testing.T) {
	t.Parallel()

	up, _, selected := setupUploader(t)

	for _, contentType := range []string{"text/plain", "application/pdf", "", "video/mp4"} {
		_, err := up.Select(context.Background(), core.ImageFile{
			Name: "notes.txt", ContentType: contentType, Data: []byte("hello"),
		})
		require.ErrorIs(t, err, uploader.ErrNotImage)
	}

	_, ok := up.Preview()
	assert.False(t, ok)
	assert.Zero(t, selected.count())
}

func TestSelect_AcceptsImageAndScalesPreview(t *testing.T) {
	t.Parallel()

	up, _, selected := setupUploader(t)
	file := pngFile(t, 300, 400)

	preview, err := up.Select(context.Background(), file)
	require.NoError(t, err)

	assert.NotEmpty(t, preview.Key)
	assert.Equal(t, "image/png", preview.ContentType)
	assert.Equal(t, 192, preview.Height)
	assert.Equal(t, 144, preview.Width)

	require.Equal(t, 1, selected.count())
	assert.Equal(t, file, selected.files[0])

	data, served, err := up.Open(context.Background(), preview.Key)
	require.NoError(t, err)
	assert.Equal(t, preview, served)

	decoded, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 192, decoded.Bounds().Dy())
}

func TestSelect_SmallImageKeepsSize(t *testing.T) {
	t.Parallel()

	up, _, _ := setupUploader(t)

	preview, err := up.Select(context.Background(), pngFile(t, 64, 48))
	require.NoError(t, err)

	assert.Equal(t, 64, preview.Width)
	assert.Equal(t, 48, preview.Height)
}

func TestSelect_UndecodableImageGetsPlaceholder(t *testing.T) {
	t.Parallel()

	up, _, selected := setupUploader(t)
	file := core.ImageFile{Name: "face.heic", ContentType: "image/heic", Data: []byte("heic-bytes")}

	preview, err := up.Select(context.Background(), file)
	require.NoError(t, err)
	assert.True(t, preview.Placeholder)
	assert.Equal(t, "image/png", preview.ContentType)

	data, _, err := up.Open(context.Background(), preview.Key)
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 192, decoded.Bounds().Dy())

	require.Equal(t, 1, selected.count())
	assert.Equal(t, file, selected.files[0])
}

// A freecache entry must stay under 1/1024 of the cache, so 256 KiB here.
func TestSelect_LargeUndecodableImageFitsDefaultCache(t *testing.T) {
	t.Parallel()

	store := objectstore.NewMemory(256<<20, 30*time.Minute)
	selected := &selections{}
	up := uploader.New(store, 192, selected.record, createTestLogger(t))

	file := core.ImageFile{
		Name:        "face.webp",
		ContentType: "image/webp",
		Data:        bytes.Repeat([]byte{0x5a, 0x17, 0xc3}, 100<<10),
	}

	preview, err := up.Select(context.Background(), file)
	require.NoError(t, err)
	assert.True(t, preview.Placeholder)

	current, ok := up.Preview()
	require.True(t, ok)
	assert.Equal(t, preview, current)
	require.Equal(t, 1, selected.count())

	data, _, err := up.Open(context.Background(), preview.Key)
	require.NoError(t, err)
	assert.Less(t, len(data), 256<<10)
}

func TestOpen_ExpiredPreviewIsNotFound(t *testing.T) {
	t.Parallel()

	store := objectstore.NewMemory(1<<20, time.Second)
	up := uploader.New(store, 192, nil, createTestLogger(t))

	preview, err := up.Select(context.Background(), pngFile(t, 10, 10))
	require.NoError(t, err)

	time.Sleep(2100 * time.Millisecond)

	_, _, err = up.Open(context.Background(), preview.Key)
	require.ErrorIs(t, err, uploader.ErrPreviewNotFound)
}

func TestOpen_EvictedPreviewIsNotFound(t *testing.T) {
	t.Parallel()

	up, store, _ := setupUploader(t)

	preview, err := up.Select(context.Background(), pngFile(t, 10, 10))
	require.NoError(t, err)

	require.NoError(t, store.MemoryObjectStore.Delete(context.Background(), preview.Key))

	_, _, err = up.Open(context.Background(), preview.Key)
	require.ErrorIs(t, err, uploader.ErrPreviewNotFound)
	require.ErrorIs(t, err, core.ErrObjectNotFound)
}

func TestSelect_ReplacingReleasesPreviousPreview(t *testing.T) {
	t.Parallel()

	up, store, selected := setupUploader(t)

	first, err := up.Select(context.Background(), pngFile(t, 10, 10))
	require.NoError(t, err)

	second, err := up.Select(context.Background(), pngFile(t, 20, 20))
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)
	assert.Equal(t, []string{first.Key}, store.deleted)
	assert.Equal(t, 2, selected.count())

	_, _, err = up.Open(context.Background(), first.Key)
	require.ErrorIs(t, err, uploader.ErrPreviewNotFound)

	_, err = store.Download(context.Background(), first.Key)
	require.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}

func TestSelect_Disabled(t *testing.T) {
	t.Parallel()

	up, _, selected := setupUploader(t)
	up.SetDisabled(true)

	_, err := up.Select(context.Background(), pngFile(t, 10, 10))
	require.ErrorIs(t, err, uploader.ErrDisabled)
	assert.Zero(t, selected.count())

	up.SetDisabled(false)

	_, err = up.Select(context.Background(), pngFile(t, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, selected.count())
}

func TestSelect_StoreFailureStillSelectsFace(t *testing.T) {
	t.Parallel()

	up, store, selected := setupUploader(t)

	first, err := up.Select(context.Background(), pngFile(t, 10, 10))
	require.NoError(t, err)

	store.uploadShouldFail = true

	_, err = up.Select(context.Background(), pngFile(t, 20, 20))
	require.ErrorIs(t, err, uploader.ErrPreviewNotStored)
	require.ErrorIs(t, err, errMockUpload)

	_, ok := up.Preview()
	assert.False(t, ok)
	assert.Equal(t, 2, selected.count())
	assert.Equal(t, []string{first.Key}, store.deleted)
}

func TestClose_ReleasesPreview(t *testing.T) {
	t.Parallel()

	up, store, _ := setupUploader(t)

	preview, err := up.Select(context.Background(), pngFile(t, 10, 10))
	require.NoError(t, err)

	up.Close(context.Background())

	_, ok := up.Preview()
	assert.False(t, ok)
	assert.Equal(t, []string{preview.Key}, store.deleted)
}
