package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/book-expert/voicechat-web/internal/backend"
	"github.com/book-expert/voicechat-web/internal/chat"
	"github.com/book-expert/voicechat-web/internal/core"
	"github.com/book-expert/voicechat-web/internal/uploader"
	"github.com/gin-gonic/gin"
)

const (
	formFieldText      = "text"
	formFieldImage     = "image"
	formFieldPoseStyle = "pose_style"
	formFieldStillMode = "still_mode"
)

// Uploader notices.
const (
	tooLargeNotice    = "ファイルが大きすぎます。"
	busyNotice        = "返事を待っている間は画像を変更できません。"
	unreadableNotice  = "ファイルを読み込めませんでした。"
	noPreviewNotice   = "画像は選択されましたが、プレビューを表示できません。"
	storeFailedNotice = "画像を処理できませんでした。"
)

// headerHXTrigger carries the client-side event that surfaces a rejected
// upload. htmx does not swap error responses on its own.
const (
	headerHXTrigger = "HX-Trigger"
	noticeEvent     = "voicechat:notice"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) sadTalkerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.SadTalkerStatus(c.Request.Context()))
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, templateIndex, s.pageView(currentSession(c)))
}

func (s *Server) submitChat(c *gin.Context) {
	sess := currentSession(c)

	opts, err := faceOptions(c)
	if err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)

		return
	}

	sess.Panel.SetFaceOptions(opts)

	err = sess.Panel.Submit(c.PostForm(formFieldText))

	switch {
	case err == nil, errors.Is(err, chat.ErrEmptyInput):
	case errors.Is(err, chat.ErrClosed):
		_ = c.AbortWithError(http.StatusServiceUnavailable, err)

		return
	default:
		_ = c.AbortWithError(http.StatusInternalServerError, err)

		return
	}

	if !isHTMX(c) {
		c.Redirect(http.StatusSeeOther, "/")

		return
	}

	c.HTML(http.StatusOK, templateChatPanel, sess.Panel.Snapshot())
}

func (s *Server) selectFace(c *gin.Context) {
	sess := currentSession(c)

	if s.maxUpload > 0 && c.Request.ContentLength > s.maxUpload {
		s.renderUploader(c, http.StatusRequestEntityTooLarge, tooLargeNotice)

		return
	}

	if s.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	}

	header, err := c.FormFile(formFieldImage)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderUploader(c, http.StatusRequestEntityTooLarge, tooLargeNotice)

			return
		}

		_ = c.Error(fmt.Errorf("%w: %w", uploader.ErrNoFile, err))
		s.renderUploader(c, http.StatusBadRequest, unreadableNotice)

		return
	}

	file, err := readFormFile(header)
	if err != nil {
		_ = c.Error(err)
		s.renderUploader(c, http.StatusBadRequest, unreadableNotice)

		return
	}

	sess.Uploader.SetDisabled(sess.Panel.Snapshot().Loading)

	_, err = sess.Uploader.Select(c.Request.Context(), file)

	switch {
	case err == nil, errors.Is(err, uploader.ErrPreviewNotStored):
		notice := ""
		if err != nil {
			_ = c.Error(err)
			notice = noPreviewNotice
		}

		if !isHTMX(c) {
			c.Redirect(http.StatusSeeOther, "/")

			return
		}

		s.renderUploader(c, http.StatusOK, notice)
	case errors.Is(err, uploader.ErrNotImage):
		s.renderUploader(c, http.StatusUnsupportedMediaType, uploader.NotImageMessage)
	case errors.Is(err, uploader.ErrDisabled):
		s.renderUploader(c, http.StatusConflict, busyNotice)
	case errors.Is(err, uploader.ErrNoFile):
		s.renderUploader(c, http.StatusBadRequest, unreadableNotice)
	default:
		_ = c.Error(err)
		s.renderUploader(c, http.StatusInternalServerError, storeFailedNotice)
	}
}

// clearFace drops the selected face; later replies are voice only.
func (s *Server) clearFace(c *gin.Context) {
	sess := currentSession(c)

	sess.Uploader.Close(c.Request.Context())
	sess.Panel.ClearFace()

	if !isHTMX(c) {
		c.Redirect(http.StatusSeeOther, "/")

		return
	}

	s.renderUploader(c, http.StatusOK, "")
}

// renderUploader answers with the uploader fragment. A rejection also
// raises a notice event, which the page shows as an alert.
func (s *Server) renderUploader(c *gin.Context, status int, notice string) {
	if status >= http.StatusBadRequest && notice != "" {
		c.Header(headerHXTrigger, noticeTrigger(notice))
	}

	c.HTML(status, templateUploader, s.uploaderView(currentSession(c), notice))
}

// noticeTrigger encodes the HX-Trigger value for notice, ASCII-escaped.
// The notices are all BMP text, so Go's \u escapes are valid JSON.
func noticeTrigger(notice string) string {
	return `{"` + noticeEvent + `":` + strconv.QuoteToASCII(notice) + `}`
}

func (s *Server) preview(c *gin.Context) {
	sess := currentSession(c)

	data, preview, err := sess.Uploader.Open(c.Request.Context(), c.Param("key"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, uploader.ErrPreviewNotFound) {
			status = http.StatusNotFound
		}

		_ = c.AbortWithError(status, err)

		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, preview.ContentType, data)
}

// faceOptions reads the optional talking-face fields of the chat form.
func faceOptions(c *gin.Context) (backend.FaceOptions, error) {
	var opts backend.FaceOptions

	if raw := c.PostForm(formFieldPoseStyle); raw != "" {
		poseStyle, err := strconv.Atoi(raw)
		if err != nil {
			return backend.FaceOptions{}, fmt.Errorf("invalid %s %q: %w", formFieldPoseStyle, raw, err)
		}

		opts.PoseStyle = &poseStyle
	}

	if raw := c.PostForm(formFieldStillMode); raw != "" {
		stillMode, err := strconv.ParseBool(raw)
		if err != nil {
			return backend.FaceOptions{}, fmt.Errorf("invalid %s %q: %w", formFieldStillMode, raw, err)
		}

		opts.StillMode = &stillMode
	}

	return opts, nil
}

// readFormFile loads an uploaded part, keeping the content type the
// browser declared for it.
func readFormFile(header *multipart.FileHeader) (file core.ImageFile, err error) {
	src, err := header.Open()
	if err != nil {
		return core.ImageFile{}, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
	}

	defer func() {
		closeErr := src.Close()
		if closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	data, readErr := io.ReadAll(src)
	if readErr != nil {
		return core.ImageFile{}, fmt.Errorf("failed to read upload %s: %w", header.Filename, readErr)
	}

	return core.ImageFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
