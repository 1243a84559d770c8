package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/book-expert/voicechat-web/internal/core"
)

const (
	contentTypeOctetStream = "application/octet-stream"
	defaultImageFilename   = "image"
	// Browsers name an anonymous Blob part "blob".
	blobFilename = "blob"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// formBuilder accumulates a multipart/form-data body. The first error sticks
// and is reported by finish.
type formBuilder struct {
	buf    bytes.Buffer
	writer *multipart.Writer
	err    error
}

func newFormBuilder() *formBuilder {
	form := &formBuilder{}
	form.writer = multipart.NewWriter(&form.buf)

	return form
}

func (f *formBuilder) file(field string, image core.ImageFile) {
	filename := image.Name
	if filename == "" {
		filename = defaultImageFilename
	}

	contentType := image.ContentType
	if contentType == "" {
		contentType = contentTypeOctetStream
	}

	f.part(field, filename, contentType, image.Data)
}

func (f *formBuilder) jsonBlob(field string, value any) {
	if f.err != nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		f.err = fmt.Errorf("failed to marshal %s part: %w", field, err)

		return
	}

	f.part(field, blobFilename, contentTypeJSON, data)
}

func (f *formBuilder) part(field, filename, contentType string, data []byte) {
	if f.err != nil {
		return
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	header.Set(headerContentType, contentType)

	partWriter, err := f.writer.CreatePart(header)
	if err != nil {
		f.err = fmt.Errorf("failed to create %s part: %w", field, err)

		return
	}

	_, err = partWriter.Write(data)
	if err != nil {
		f.err = fmt.Errorf("failed to write %s part: %w", field, err)
	}
}

func (f *formBuilder) field(name, value string) {
	if f.err != nil {
		return
	}

	err := f.writer.WriteField(name, value)
	if err != nil {
		f.err = fmt.Errorf("failed to write field %s: %w", name, err)
	}
}

func (f *formBuilder) optionalInt(name string, value *int) {
	if value != nil {
		f.field(name, strconv.Itoa(*value))
	}
}

func (f *formBuilder) optionalBool(name string, value *bool) {
	if value != nil {
		f.field(name, strconv.FormatBool(*value))
	}
}

func (f *formBuilder) optionalString(name string, value *string) {
	if value != nil {
		f.field(name, *value)
	}
}

// finish closes the multipart writer and returns the body with its content type.
func (f *formBuilder) finish() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}

	err := f.writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	return &f.buf, f.writer.FormDataContentType(), nil
}
