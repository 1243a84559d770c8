// Package web serves the voice chat page: the chat panel and the face
// uploader of each browser session, rendered as HTML fragments.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/backend"
	"github.com/book-expert/voicechat-web/internal/session"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	sessionIDKey  = "sid"
	contextKey    = "voicechat.session"
	bufferSize    = 1024
	headerHXReq   = "HX-Request"
	defaultCookie = "voicechat"
)

// Static errors.
var (
	ErrNoCookieSecret  = errors.New("cookie secret is empty")
	ErrSessionNotFound = errors.New("session not found")
)

// StatusChecker reports whether the talking-face generator is available.
type StatusChecker interface {
	SadTalkerStatus(ctx context.Context) backend.SadTalkerStatus
}

// Options configure the HTTP surface.
type Options struct {
	CookieSecret   string
	SessionName    string
	SessionTTL     time.Duration
	MaxUploadBytes int64
}

// Server renders the page for each browser session and pushes chat panel
// updates over a websocket.
type Server struct {
	registry  *session.Registry
	status    StatusChecker
	templates *template.Template
	upgrader  websocket.Upgrader
	maxUpload int64
	log       *logger.Logger
	engine    *gin.Engine
}

// NewServer builds the router.
func NewServer(
	registry *session.Registry,
	status StatusChecker,
	opts Options,
	log *logger.Logger,
) (*Server, error) {
	if opts.CookieSecret == "" {
		return nil, ErrNoCookieSecret
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	server := &Server{
		registry:  registry,
		status:    status,
		templates: templates,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  bufferSize,
			WriteBufferSize: bufferSize,
		},
		maxUpload: opts.MaxUploadBytes,
		log:       log,
		engine:    nil,
	}
	server.engine = server.buildRouter(opts)

	return server, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) buildRouter(opts Options) *gin.Engine {
	router := gin.New()

	store := cookie.NewStore([]byte(opts.CookieSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.SessionTTL.Seconds()),
		HttpOnly: true,
	})

	name := opts.SessionName
	if name == "" {
		name = defaultCookie
	}

	router.SetHTMLTemplate(s.templates)
	router.Use(s.requestLogger())
	router.Use(gin.Recovery())

	router.GET("/healthz", s.health)
	router.GET("/status", s.sadTalkerStatus)

	browser := router.Group("/")
	browser.Use(sessions.Sessions(name, store))
	browser.GET("/", s.withSession(true), s.index)
	browser.POST("/chat", s.withSession(true), s.submitChat)
	browser.POST("/face", s.withSession(true), s.selectFace)
	browser.POST("/face/clear", s.withSession(true), s.clearFace)
	browser.GET("/preview/:key", s.withSession(false), s.preview)
	browser.GET("/ws", s.withSession(false), s.stream)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.log.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))

		for _, ginErr := range c.Errors {
			s.log.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, ginErr.Err)
		}
	}
}

// withSession resolves the caller's session from the cookie. With create
// set, an unknown or missing id gets a fresh session and a new cookie;
// otherwise the request is rejected.
func (s *Server) withSession(create bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookieSession := sessions.Default(c)
		id, _ := cookieSession.Get(sessionIDKey).(string)

		if !create {
			sess, ok := s.registry.Get(id)
			if !ok {
				_ = c.AbortWithError(http.StatusUnauthorized, ErrSessionNotFound)

				return
			}

			c.Set(contextKey, sess)
			c.Next()

			return
		}

		sess := s.registry.GetOrCreate(id)
		if sess.ID != id {
			cookieSession.Set(sessionIDKey, sess.ID)

			err := cookieSession.Save()
			if err != nil {
				_ = c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("failed to save session cookie: %w", err))

				return
			}
		}

		c.Set(contextKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	sess, _ := c.MustGet(contextKey).(*session.Session)

	return sess
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader(headerHXReq) == "true"
}
