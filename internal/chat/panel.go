// Package chat implements the chat panel: the state machine behind the
// message form, its loading flag, and the reply or error it displays.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/backend"
	"github.com/book-expert/voicechat-web/internal/core"
)

// Static errors.
var (
	ErrEmptyInput = errors.New("input text is empty")
	ErrClosed     = errors.New("chat panel is closed")
)

// Log formats.
const (
	logFmtSubmitting      = "Submitting chat request (generation %d, face: %t)"
	logFmtSuperseded      = "Cancelling chat request %d, superseded by %d"
	logFmtDiscardingStale = "Discarding chat response %d, current generation is %d"
	logFmtChatFailed      = "Chat request %d failed: %s"
	logFmtChatAppError    = "Chat request %d returned an error: %s"
	logFmtChatDone        = "Chat request %d completed"
)

// Backend is the part of the API client the panel uses.
type Backend interface {
	SendChat(ctx context.Context, text string) (*backend.ChatResponse, error)
	ChatWithTalkingFace(
		ctx context.Context,
		text string,
		image core.ImageFile,
		opts backend.FaceOptions,
	) (*backend.ChatWithTalkingFaceResponse, error)
	ResolveURL(path string) string
}

// Panel owns one chat form's state. At most one request is outstanding: a
// new submission cancels the previous one, and a completion whose generation
// is no longer current is dropped.
type Panel struct {
	mu          sync.Mutex
	client      Backend
	log         *logger.Logger
	ctx         context.Context
	stop        context.CancelFunc
	cancel      context.CancelFunc
	inflight    sync.WaitGroup
	state       State
	generation  uint64
	face        *core.ImageFile
	faceOpts    backend.FaceOptions
	subscribers map[chan State]struct{}
	closed      bool
}

type outcome struct {
	response string
	audioURL string
	videoURL string
	appError string
	err      error
}

// NewPanel creates an idle panel that sends its requests through client.
func NewPanel(client Backend, log *logger.Logger) *Panel {
	ctx, stop := context.WithCancel(context.Background())

	return &Panel{
		client:      client,
		log:         log,
		ctx:         ctx,
		stop:        stop,
		subscribers: make(map[chan State]struct{}),
	}
}

// Snapshot returns the current state.
func (p *Panel) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Subscribe returns a channel that always holds the latest state; older
// undelivered states are overwritten. The returned func unsubscribes.
func (p *Panel) Subscribe() (<-chan State, func()) {
	updates := make(chan State, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		close(updates)

		return updates, func() {}
	}

	p.subscribers[updates] = struct{}{}
	updates <- p.state

	var once sync.Once

	return updates, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()

			if _, ok := p.subscribers[updates]; ok {
				delete(p.subscribers, updates)
				close(updates)
			}
		})
	}
}

// SetFace selects the face image; later submissions ask for a talking face.
func (p *Panel) SetFace(image core.ImageFile) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.face = &image
	p.state.HasFace = true
	p.publishLocked()
}

// ClearFace goes back to voice-only replies.
func (p *Panel) ClearFace() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.face = nil
	p.state.HasFace = false
	p.publishLocked()
}

// SetFaceOptions sets the pose style / still mode sent with talking-face requests.
func (p *Panel) SetFaceOptions(opts backend.FaceOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.faceOpts = opts
}

// Submit starts a chat request for text. Whitespace-only input is rejected
// with ErrEmptyInput and changes nothing; otherwise the text is sent as-is.
func (p *Panel) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return ErrClosed
	}

	p.generation++
	generation := p.generation

	if p.cancel != nil {
		p.log.Info(logFmtSuperseded, generation-1, generation)
		p.cancel()
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.cancel = cancel

	var face *core.ImageFile
	if p.face != nil {
		copied := *p.face
		face = &copied
	}

	opts := p.faceOpts

	p.state = State{
		Input:      text,
		Loading:    true,
		Error:      "",
		ErrorKind:  ErrorKindNone,
		Response:   "",
		AudioURL:   "",
		VideoURL:   "",
		HasFace:    face != nil,
		Generation: generation,
	}
	p.publishLocked()
	p.inflight.Add(1)
	p.mu.Unlock()

	p.log.Info(logFmtSubmitting, generation, face != nil)

	go p.run(ctx, cancel, generation, text, face, opts)

	return nil
}

// Wait blocks until no request is in flight.
func (p *Panel) Wait() {
	p.inflight.Wait()
}

// Close cancels the in-flight request and closes every subscription.
// Submit returns ErrClosed afterwards.
func (p *Panel) Close() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	p.stop()

	for updates := range p.subscribers {
		delete(p.subscribers, updates)
		close(updates)
	}

	p.mu.Unlock()

	p.Wait()
}

func (p *Panel) run(
	ctx context.Context,
	cancel context.CancelFunc,
	generation uint64,
	text string,
	face *core.ImageFile,
	opts backend.FaceOptions,
) {
	defer p.inflight.Done()
	defer cancel()

	result := p.dispatch(ctx, text, face, opts)
	p.finish(generation, result)
}

func (p *Panel) dispatch(
	ctx context.Context,
	text string,
	face *core.ImageFile,
	opts backend.FaceOptions,
) outcome {
	if face == nil {
		resp, err := p.client.SendChat(ctx, text)
		if err != nil {
			return outcome{err: err}
		}

		return outcome{
			response: resp.LLMResponse,
			audioURL: resp.AudioURL,
			appError: resp.Error,
		}
	}

	resp, err := p.client.ChatWithTalkingFace(ctx, text, *face, opts)
	if err != nil {
		return outcome{err: err}
	}

	return outcome{
		response: resp.LLMResponse,
		audioURL: resp.AudioURL,
		videoURL: resp.VideoURL,
		appError: resp.Error,
	}
}

func (p *Panel) finish(generation uint64, result outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || generation != p.generation {
		p.log.Info(logFmtDiscardingStale, generation, p.generation)

		return
	}

	p.cancel = nil

	next := State{
		Input:      p.state.Input,
		Loading:    false,
		HasFace:    p.state.HasFace,
		Generation: generation,
	}

	switch {
	case result.err != nil:
		next.Error = backend.Message(result.err)
		next.ErrorKind = ErrorKindRequest
		p.log.Error(logFmtChatFailed, generation, next.Error)
	case result.appError != "":
		next.Error = result.appError
		next.ErrorKind = ErrorKindApplication
		p.log.Warn(logFmtChatAppError, generation, next.Error)
	default:
		next.Response = result.response
		next.AudioURL = p.client.ResolveURL(result.audioURL)
		next.VideoURL = p.client.ResolveURL(result.videoURL)
		p.log.Info(logFmtChatDone, generation)
	}

	p.state = next
	p.publishLocked()
}

// publishLocked hands the current state to every subscriber, replacing any
// state they have not read yet. Callers hold p.mu.
func (p *Panel) publishLocked() {
	for updates := range p.subscribers {
		select {
		case updates <- p.state:
			continue
		default:
		}

		select {
		case <-updates:
		default:
		}

		select {
		case updates <- p.state:
		default:
		}
	}
}
