package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/book-expert/voicechat-web/internal/chat"
	"github.com/book-expert/voicechat-web/internal/session"
	"github.com/book-expert/voicechat-web/internal/uploader"
)

// Template names.
const (
	templateIndex     = "index.html"
	templateChatPanel = "chat_panel"
	templateUploader  = "uploader"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return tmpl, nil
}

// uploaderView feeds the uploader fragment. OOB marks a copy pushed
// alongside the chat panel, swapped in by id.
type uploaderView struct {
	Preview     uploader.Preview
	HasPreview  bool
	Disabled    bool
	Notice      string
	MaxUploadMB int64
	OOB         bool
}

type pageView struct {
	Chat     chat.State
	Uploader uploaderView
}

func (s *Server) uploaderView(sess *session.Session, notice string) uploaderView {
	return s.uploaderViewFor(sess, sess.Panel.Snapshot().Loading, notice)
}

func (s *Server) uploaderViewFor(sess *session.Session, loading bool, notice string) uploaderView {
	preview, ok := sess.Uploader.Preview()

	return uploaderView{
		Preview:     preview,
		HasPreview:  ok,
		Disabled:    loading,
		Notice:      notice,
		MaxUploadMB: s.maxUpload >> 20,
		OOB:         false,
	}
}

// streamFragment renders the chat panel for state followed by an
// out-of-band uploader dimmed while the reply is loading.
func (s *Server) streamFragment(sess *session.Session, state chat.State) ([]byte, error) {
	panel, err := s.render(templateChatPanel, state)
	if err != nil {
		return nil, err
	}

	view := s.uploaderViewFor(sess, state.Loading, "")
	view.OOB = true

	upload, err := s.render(templateUploader, view)
	if err != nil {
		return nil, err
	}

	return append(panel, upload...), nil
}

func (s *Server) pageView(sess *session.Session) pageView {
	return pageView{
		Chat:     sess.Panel.Snapshot(),
		Uploader: s.uploaderView(sess, ""),
	}
}

func (s *Server) render(name string, data any) ([]byte, error) {
	var buffer bytes.Buffer

	err := s.templates.ExecuteTemplate(&buffer, name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}

	return buffer.Bytes(), nil
}
