// Package bridge exposes the chat backend on NATS so other services can
// talk to the AI without going through the browser UI.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/backend"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const defaultHandleTimeout = 60 * time.Second

// ErrChatSubjectEmpty indicates that no chat subject was configured.
var ErrChatSubjectEmpty = errors.New("chat subject cannot be empty")

// Backend is the part of the API client served over NATS.
type Backend interface {
	SendChat(ctx context.Context, text string) (*backend.ChatResponse, error)
	SadTalkerStatus(ctx context.Context) backend.SadTalkerStatus
	ResolveURL(path string) string
}

// ChatRequest is the payload accepted on the chat subject.
type ChatRequest struct {
	Header events.EventHeader `json:"header"`
	Text   string             `json:"text"`
}

// ChatReply answers a ChatRequest. A failed call is reported in Error.
type ChatReply struct {
	Header      events.EventHeader `json:"header"`
	LLMResponse string             `json:"llm_response"`
	AudioURL    string             `json:"audio_url"`
	Error       string             `json:"error,omitempty"`
}

// StatusReply answers any message on the status subject.
type StatusReply struct {
	Header    events.EventHeader `json:"header"`
	Available bool               `json:"available"`
}

// NatsBridge answers chat and status requests on NATS subjects.
type NatsBridge struct {
	natsConnection *nats.Conn
	chatSubject    string
	statusSubject  string
	client         Backend
	timeout        time.Duration
	log            *logger.Logger
}

// NewNatsBridge creates a bridge. statusSubject may be empty; a zero
// timeout falls back to one minute per request.
func NewNatsBridge(
	natsConnection *nats.Conn,
	chatSubject string,
	statusSubject string,
	client Backend,
	timeout time.Duration,
	log *logger.Logger,
) (*NatsBridge, error) {
	if chatSubject == "" {
		return nil, ErrChatSubjectEmpty
	}

	if timeout <= 0 {
		timeout = defaultHandleTimeout
	}

	return &NatsBridge{
		natsConnection: natsConnection,
		chatSubject:    chatSubject,
		statusSubject:  statusSubject,
		client:         client,
		timeout:        timeout,
		log:            log,
	}, nil
}

// Run subscribes and serves requests until ctx is done.
func (b *NatsBridge) Run(ctx context.Context) error {
	subs := make([]*nats.Subscription, 0, 2)

	chatSub, err := b.natsConnection.Subscribe(b.chatSubject, b.handleChat)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", b.chatSubject, err)
	}

	subs = append(subs, chatSub)

	if b.statusSubject != "" {
		statusSub, subErr := b.natsConnection.Subscribe(b.statusSubject, b.handleStatus)
		if subErr != nil {
			_ = chatSub.Unsubscribe()

			return fmt.Errorf("failed to subscribe to subject %s: %w", b.statusSubject, subErr)
		}

		subs = append(subs, statusSub)
	}

	b.log.Info("Chat bridge listening on %s", b.chatSubject)

	<-ctx.Done()

	var drainErr error

	for _, sub := range subs {
		err = sub.Drain()
		if err != nil {
			drainErr = errors.Join(drainErr, fmt.Errorf("failed to drain subscription %s: %w", sub.Subject, err))
		}
	}

	return drainErr
}

func (b *NatsBridge) handleChat(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var request ChatRequest

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		b.log.Error("Failed to unmarshal chat request: %v", err)
		b.respond(msg, ChatReply{Header: replyHeader(events.EventHeader{}), Error: "invalid request: " + err.Error()})

		return
	}

	reply := ChatReply{Header: replyHeader(request.Header)}

	resp, err := b.client.SendChat(ctx, request.Text)

	switch {
	case err != nil:
		reply.Error = backend.Message(err)
		b.log.Error("Chat request for workflow %s failed: %s", reply.Header.WorkflowID, reply.Error)
	case resp.Error != "":
		reply.Error = resp.Error
		b.log.Warn("Chat request for workflow %s returned an error: %s", reply.Header.WorkflowID, reply.Error)
	default:
		reply.LLMResponse = resp.LLMResponse
		reply.AudioURL = b.client.ResolveURL(resp.AudioURL)
	}

	b.respond(msg, reply)
}

func (b *NatsBridge) handleStatus(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var header events.EventHeader

	var request struct {
		Header events.EventHeader `json:"header"`
	}

	if len(msg.Data) > 0 && json.Unmarshal(msg.Data, &request) == nil {
		header = request.Header
	}

	status := b.client.SadTalkerStatus(ctx)

	b.respond(msg, StatusReply{Header: replyHeader(header), Available: status.Available})
}

func (b *NatsBridge) respond(msg *nats.Msg, reply any) {
	replyData, err := json.Marshal(reply)
	if err != nil {
		b.log.Error("Failed to marshal reply on %s: %v", msg.Subject, err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		b.log.Error("Failed to publish reply on %s: %v", msg.Subject, err)
	}
}

// replyHeader keeps the caller's workflow and identity and stamps a new
// event id.
func replyHeader(request events.EventHeader) events.EventHeader {
	workflowID := request.WorkflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
	}

	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: workflowID,
		EventID:    uuid.NewString(),
		UserID:     request.UserID,
		TenantID:   request.TenantID,
	}
}
