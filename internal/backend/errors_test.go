package backend_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/book-expert/voicechat-web/internal/backend"
	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	t.Parallel()

	errDial := errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{
			name: "detail wins",
			err:  &backend.RequestError{Endpoint: "/chat", Status: 500, Detail: "boom", Err: errDial},
			want: "boom",
		},
		{
			name: "transport message",
			err:  &backend.RequestError{Endpoint: "/chat", Status: 0, Detail: "", Err: errDial},
			want: errDial.Error(),
		},
		{
			name: "status without detail",
			err:  &backend.RequestError{Endpoint: "/chat", Status: 502, Detail: "", Err: nil},
			want: "API request failed",
		},
		{
			name: "empty request error",
			err:  &backend.RequestError{},
			want: "An unknown error occurred",
		},
		{
			name: "wrapped request error",
			err:  fmt.Errorf("submit: %w", &backend.RequestError{Endpoint: "/chat", Status: 400, Detail: "bad", Err: nil}),
			want: "bad",
		},
		{name: "plain error", err: backend.ErrTextEmpty, want: "text cannot be empty"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, backend.Message(testCase.err))
		})
	}
}

func TestRequestError_Unwrap(t *testing.T) {
	t.Parallel()

	errCause := errors.New("cause")
	err := &backend.RequestError{Endpoint: "/chat", Status: 0, Detail: "", Err: errCause}

	assert.ErrorIs(t, err, errCause)
	assert.Equal(t, "/chat: cause", err.Error())
}
