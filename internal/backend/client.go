// Package backend is the client for the conversational backend: chat,
// talking-face generation and SadTalker availability.
//
// Every call is independent. Non-2xx responses are parsed for a {detail}
// body and returned as *RequestError, so callers only ever inspect errors
// and the response's own error field.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/core"
)

// API endpoints and paths.
const (
	apiChat                = "/chat"
	apiGenerateTalkingFace = "/generate_talking_face"
	apiChatWithTalkingFace = "/chat_with_talking_face"
	apiSadTalkerStatus     = "/sadtalker_status"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Multipart field names.
const (
	fieldImage           = "image"
	fieldAudioPath       = "audio_path"
	fieldRequest         = "request"
	fieldPoseStyle       = "pose_style"
	fieldBatchSize       = "batch_size"
	fieldFaceEnhancement = "face_enhancement"
	fieldStillMode       = "still_mode"
	fieldUseEnhancer     = "use_enhancer"
	fieldPreprocess      = "preprocess"
	fieldEnhancer        = "enhancer"
)

// Log formats.
const (
	logFmtChatFailed        = "Chat request error: %v"
	logFmtTalkingFaceFailed = "Generate talking face error: %v"
	logFmtChatFaceFailed    = "Chat with talking face error: %v"
	logFmtStatusFailed      = "Check SadTalker status error: %v"
)

// Client talks to one backend origin.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
}

// NewClient creates a client for the backend at baseURL
// (e.g. "http://localhost:8000"). A zero timeout leaves requests unbounded.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// BaseURL returns the backend origin requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL turns a backend-relative path such as "/audio/1.wav" into an
// absolute URL on the backend origin. Absolute URLs and "" pass through.
func (c *Client) ResolveURL(path string) string {
	if path == "" {
		return ""
	}

	parsed, err := url.Parse(path)
	if err == nil && parsed.IsAbs() {
		return path
	}

	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// SendChat sends the user's text to POST /chat.
func (c *Client) SendChat(ctx context.Context, text string) (*ChatResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextEmpty
	}

	body, err := json.Marshal(ChatRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp ChatResponse

	err = c.do(ctx, http.MethodPost, apiChat, contentTypeJSON, bytes.NewReader(body), &resp)
	if err != nil {
		c.log.Error(logFmtChatFailed, err)

		return nil, err
	}

	return &resp, nil
}

// GenerateTalkingFace asks the backend to animate image against the audio
// at audioPath (a path the backend itself can read).
func (c *Client) GenerateTalkingFace(
	ctx context.Context,
	image core.ImageFile,
	audioPath string,
	opts TalkingFaceOptions,
) (*TalkingFaceResponse, error) {
	if len(image.Data) == 0 {
		return nil, ErrImageEmpty
	}

	form := newFormBuilder()
	form.file(fieldImage, image)
	form.field(fieldAudioPath, audioPath)
	form.optionalInt(fieldPoseStyle, opts.PoseStyle)
	form.optionalInt(fieldBatchSize, opts.BatchSize)
	form.optionalBool(fieldFaceEnhancement, opts.FaceEnhancement)
	form.optionalBool(fieldStillMode, opts.StillMode)
	form.optionalBool(fieldUseEnhancer, opts.UseEnhancer)
	form.optionalString(fieldPreprocess, opts.Preprocess)
	form.optionalString(fieldEnhancer, opts.Enhancer)

	body, contentType, err := form.finish()
	if err != nil {
		return nil, err
	}

	var resp TalkingFaceResponse

	err = c.do(ctx, http.MethodPost, apiGenerateTalkingFace, contentType, body, &resp)
	if err != nil {
		c.log.Error(logFmtTalkingFaceFailed, err)

		return nil, err
	}

	return &resp, nil
}

// ChatWithTalkingFace sends the text and a face image in one call; the reply
// carries both the synthesized audio and the lip-synced video.
func (c *Client) ChatWithTalkingFace(
	ctx context.Context,
	text string,
	image core.ImageFile,
	opts FaceOptions,
) (*ChatWithTalkingFaceResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextEmpty
	}

	if len(image.Data) == 0 {
		return nil, ErrImageEmpty
	}

	form := newFormBuilder()
	form.file(fieldImage, image)
	form.jsonBlob(fieldRequest, ChatRequest{Text: text})
	form.optionalInt(fieldPoseStyle, opts.PoseStyle)
	form.optionalBool(fieldStillMode, opts.StillMode)

	body, contentType, err := form.finish()
	if err != nil {
		return nil, err
	}

	var resp ChatWithTalkingFaceResponse

	err = c.do(ctx, http.MethodPost, apiChatWithTalkingFace, contentType, body, &resp)
	if err != nil {
		c.log.Error(logFmtChatFaceFailed, err)

		return nil, err
	}

	return &resp, nil
}

// SadTalkerStatus reports whether talking-face generation is available.
// Any failure counts as unavailable.
func (c *Client) SadTalkerStatus(ctx context.Context) SadTalkerStatus {
	var status SadTalkerStatus

	err := c.do(ctx, http.MethodGet, apiSadTalkerStatus, "", http.NoBody, &status)
	if err != nil {
		c.log.Error(logFmtStatusFailed, err)

		return SadTalkerStatus{Available: false}
	}

	return status
}

func (c *Client) do(
	ctx context.Context,
	method, endpoint, contentType string,
	body io.Reader,
	target any,
) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set(headerContentType, contentType)
	}

	req.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Endpoint: endpoint, Status: 0, Detail: "", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.parseErrorResponse(endpoint, resp)
	}

	decodeErr := decodeJSON(resp.Body, target)
	if decodeErr != nil {
		return &RequestError{Endpoint: endpoint, Status: resp.StatusCode, Detail: "", Err: decodeErr}
	}

	return nil
}

// parseErrorResponse extracts the backend's {detail} from a non-2xx body.
// A body that is not such a document leaves Detail empty.
func (c *Client) parseErrorResponse(endpoint string, resp *http.Response) error {
	var errorResp errorResponse

	_ = decodeJSON(resp.Body, &errorResp)

	return &RequestError{
		Endpoint: endpoint,
		Status:   resp.StatusCode,
		Detail:   errorResp.Detail,
		Err:      nil,
	}
}
