package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseFlags verifies that command-line flags are parsed correctly.
func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{
		"--text", "Hello, world!",
		"--image", "face.png",
		"--pose-style", "3",
		"--still-mode",
		"--backend", "http://example.test",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello, world!", flags.text)
	assert.Equal(t, "face.png", flags.image)
	assert.Equal(t, 3, flags.poseStyle)
	assert.True(t, flags.stillMode)
	assert.Equal(t, "http://example.test", flags.backend)
	assert.False(t, flags.status)

	defaults, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, noPoseStyle, defaults.poseStyle)
}

func TestParseFlags_UnknownFlag(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"--chunks", "file.json"})
	require.Error(t, err)
}

// TestArgumentValidation verifies required and conflicting arguments.
func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr error
	}{
		{name: "text only", flags: appFlags{text: "hi"}},
		{name: "text with image", flags: appFlags{text: "hi", image: "face.png"}},
		{name: "image with audio", flags: appFlags{image: "face.png", audio: "/tmp/a.wav"}},
		{name: "status", flags: appFlags{status: true}},
		{name: "nothing", flags: appFlags{}, wantErr: ErrNothingToDo},
		{name: "status with text", flags: appFlags{status: true, text: "hi"}, wantErr: ErrStatusExclusive},
		{name: "image alone", flags: appFlags{image: "face.png"}, wantErr: ErrImageNeedsRequest},
		{name: "text with audio", flags: appFlags{text: "hi", image: "face.png", audio: "a.wav"}, wantErr: ErrAudioWithText},
		{name: "audio without image", flags: appFlags{text: "hi", audio: "a.wav"}, wantErr: ErrAudioNeedsImage},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateArguments(testCase.flags)
			if testCase.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestFaceOptions(t *testing.T) {
	t.Parallel()

	opts := faceOptions(appFlags{poseStyle: noPoseStyle})
	assert.Nil(t, opts.PoseStyle)
	assert.Nil(t, opts.StillMode)

	opts = faceOptions(appFlags{poseStyle: 0, stillMode: true})
	require.NotNil(t, opts.PoseStyle)
	assert.Equal(t, 0, *opts.PoseStyle)
	require.NotNil(t, opts.StillMode)
	assert.True(t, *opts.StillMode)
}

func TestExecute(t *testing.T) {
	t.Parallel()

	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/chat":
			_ = json.NewEncoder(w).Encode(backend.ChatResponse{LLMResponse: "ふん", AudioURL: "/audio/1.wav"})
		case "/sadtalker_status":
			_ = json.NewEncoder(w).Encode(backend.SadTalkerStatus{Available: true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(backendServer.Close)

	clientLog, err := logger.New(t.TempDir(), "cli-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = clientLog.Close() })

	client := backend.NewClient(backendServer.URL, 5*time.Second, clientLog)

	var out bytes.Buffer

	err = execute(context.Background(), client, clientLog, appFlags{text: "hello"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Response: ふん\nAudio: "+backendServer.URL+"/audio/1.wav\n", out.String())

	out.Reset()

	err = execute(context.Background(), client, clientLog, appFlags{status: true}, &out)
	require.NoError(t, err)
	assert.Equal(t, msgAvailable+"\n", out.String())
}

func TestPrintReply_ApplicationError(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	err := printReply(&out, "", "", "", "LLM is down")
	require.ErrorIs(t, err, ErrBackendError)
	assert.Empty(t, out.String())
}
