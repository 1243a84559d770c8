// Package uploader implements the face image uploader: it accepts a single
// image, keeps a server-side preview of it and hands the raw file to the
// caller.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/core"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// NotImageMessage is shown to the user when a non-image file is selected.
const NotImageMessage = "画像ファイルを選択してください。"

const (
	imageTypePrefix = "image/"
	contentTypeJPEG = "image/jpeg"
	contentTypePNG  = "image/png"
	formatJPEG      = "jpeg"

	placeholderSize = 192
)

var placeholderColor = color.NRGBA{R: 229, G: 231, B: 235, A: 255}

// Static errors.
var (
	ErrNotImage        = errors.New("selected file is not an image")
	ErrDisabled        = errors.New("uploader is disabled")
	ErrNoFile          = errors.New("no file selected")
	ErrPreviewNotFound = errors.New("preview not found")
	// ErrPreviewNotStored means the file was accepted and handed on, but no
	// preview of it could be kept.
	ErrPreviewNotStored = errors.New("preview not stored")
)

// Preview describes the stored preview of the current selection.
// Placeholder is set when the image could not be decoded and a blank
// thumbnail stands in for it.
type Preview struct {
	Key         string
	ContentType string
	Width       int
	Height      int
	Placeholder bool
}

// SelectFunc receives every accepted file.
type SelectFunc func(file core.ImageFile)

// Uploader holds at most one preview at a time; replacing it releases the
// previous one from the store.
type Uploader struct {
	mu         sync.Mutex
	store      core.ObjectStore
	log        *logger.Logger
	onSelected SelectFunc
	maxHeight  int
	disabled   bool
	preview    *Preview
}

// New creates an uploader storing previews no taller than maxHeight pixels.
func New(store core.ObjectStore, maxHeight int, onSelected SelectFunc, log *logger.Logger) *Uploader {
	return &Uploader{
		store:      store,
		log:        log,
		onSelected: onSelected,
		maxHeight:  maxHeight,
	}
}

// SetDisabled switches interaction off or back on.
func (u *Uploader) SetDisabled(disabled bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.disabled = disabled
}

// Disabled reports whether selections are currently rejected.
func (u *Uploader) Disabled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.disabled
}

// Preview returns the current preview, if any.
func (u *Uploader) Preview() (Preview, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.preview == nil {
		return Preview{}, false
	}

	return *u.preview, true
}

// Select validates file, replaces the preview and invokes the selection
// callback once. Rejected files leave the uploader untouched. An accepted
// file whose preview cannot be stored still reaches the callback; the error
// then wraps ErrPreviewNotStored.
func (u *Uploader) Select(ctx context.Context, file core.ImageFile) (Preview, error) {
	if u.Disabled() {
		return Preview{}, ErrDisabled
	}

	if len(file.Data) == 0 {
		return Preview{}, ErrNoFile
	}

	if !strings.HasPrefix(file.ContentType, imageTypePrefix) {
		return Preview{}, fmt.Errorf("%w: %q", ErrNotImage, file.ContentType)
	}

	next, data := u.buildPreview(file)

	uploadErr := u.store.Upload(ctx, next.Key, data)

	var stored *Preview
	if uploadErr == nil {
		stored = &next
	} else {
		u.log.Warn("Failed to store preview of %s (%d bytes): %v", file.Name, len(data), uploadErr)
	}

	u.mu.Lock()
	previous := u.preview
	u.preview = stored
	u.mu.Unlock()

	if previous != nil {
		u.release(ctx, previous.Key)
	}

	if u.onSelected != nil {
		u.onSelected(file)
	}

	if uploadErr != nil {
		return Preview{}, fmt.Errorf("%w: %w", ErrPreviewNotStored, uploadErr)
	}

	return next, nil
}

// Open returns the bytes of the preview stored under key. Only the current
// preview is served; released or evicted ones are gone.
func (u *Uploader) Open(ctx context.Context, key string) ([]byte, Preview, error) {
	current, ok := u.Preview()
	if !ok || current.Key != key {
		return nil, Preview{}, ErrPreviewNotFound
	}

	data, err := u.store.Download(ctx, key)
	if errors.Is(err, core.ErrObjectNotFound) {
		return nil, Preview{}, fmt.Errorf("%w: %w", ErrPreviewNotFound, err)
	}

	if err != nil {
		return nil, Preview{}, fmt.Errorf("failed to load preview: %w", err)
	}

	return data, current, nil
}

// Close releases the current preview.
func (u *Uploader) Close(ctx context.Context) {
	u.mu.Lock()
	current := u.preview
	u.preview = nil
	u.mu.Unlock()

	if current != nil {
		u.release(ctx, current.Key)
	}
}

func (u *Uploader) release(ctx context.Context, key string) {
	err := u.store.Delete(ctx, key)
	if err != nil {
		u.log.Warn("Failed to release preview '%s': %v", key, err)
	}
}

// buildPreview scales the image down to maxHeight. An image the decoders
// cannot read gets a blank placeholder, so the stored preview stays small
// whatever was uploaded.
func (u *Uploader) buildPreview(file core.ImageFile) (Preview, []byte) {
	preview := Preview{
		Key:         uuid.NewString(),
		ContentType: contentTypePNG,
		Width:       0,
		Height:      0,
		Placeholder: false,
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		u.log.Warn("Could not decode %s (%s), using a placeholder: %v", file.Name, file.ContentType, err)

		return u.placeholder(preview)
	}

	img, err := imaging.Decode(bytes.NewReader(file.Data), imaging.AutoOrientation(true))
	if err != nil {
		u.log.Warn("Could not decode %s (%s), using a placeholder: %v", file.Name, file.ContentType, err)

		return u.placeholder(preview)
	}

	if u.maxHeight > 0 && img.Bounds().Dy() > u.maxHeight {
		img = imaging.Resize(img, 0, u.maxHeight, imaging.Lanczos)
	}

	outFormat := imaging.PNG
	if format == formatJPEG {
		outFormat, preview.ContentType = imaging.JPEG, contentTypeJPEG
	}

	var buf bytes.Buffer

	err = imaging.Encode(&buf, img, outFormat)
	if err != nil {
		u.log.Warn("Could not encode preview of %s (%dx%d): %v", file.Name, config.Width, config.Height, err)

		return u.placeholder(preview)
	}

	preview.Width = img.Bounds().Dx()
	preview.Height = img.Bounds().Dy()

	return preview, buf.Bytes()
}

// placeholder renders a flat square thumbnail. A flat PNG compresses to a
// few hundred bytes.
func (u *Uploader) placeholder(preview Preview) (Preview, []byte) {
	size := placeholderSize
	if u.maxHeight > 0 && u.maxHeight < size {
		size = u.maxHeight
	}

	var buf bytes.Buffer

	err := imaging.Encode(&buf, imaging.New(size, size, placeholderColor), imaging.PNG)
	if err != nil {
		u.log.Warn("Could not encode placeholder preview: %v", err)
	}

	preview.ContentType = contentTypePNG
	preview.Width = size
	preview.Height = size
	preview.Placeholder = true

	return preview, buf.Bytes()
}
