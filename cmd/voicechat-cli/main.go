package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/backend"
	"github.com/book-expert/voicechat-web/internal/config"
	"github.com/book-expert/voicechat-web/internal/core"
)

// Flag descriptions.
const (
	flagTextDesc      = "Text to send to the AI"
	flagImageDesc     = "Face image to animate (png, jpg, gif)"
	flagAudioDesc     = "Backend-side audio path to animate the face image with, instead of chatting"
	flagStatusDesc    = "Check whether talking-face generation is available and exit"
	flagPoseStyleDesc = "Pose style for the talking face (-1 leaves it to the backend)"
	flagStillDesc     = "Keep the head still in the talking face"
	flagBackendDesc   = "Backend base URL (overrides project.toml)"
	flagVerboseDesc   = "Enable verbose logging"
)

// Flag names.
const (
	flagText      = "text"
	flagImage     = "image"
	flagAudio     = "audio"
	flagStatus    = "status"
	flagPoseStyle = "pose-style"
	flagStillMode = "still-mode"
	flagBackend   = "backend"
	flagVerbose   = "verbose"
)

// Error and log messages.
const (
	errFailedToLoadConfig  = "failed to load configuration: %w"
	errFailedToInitLogger  = "failed to initialize logger: %w"
	errFailedToReadImage   = "failed to read image %s: %w"
	logClientInitialized   = "Voicechat client initialized (backend: %s)"
	logSendingChat         = "Sending chat (face: %t)"
	logGeneratingFace      = "Generating talking face for %s"
	msgAvailable           = "Talking-face generation is available"
	msgUnavailable         = "Talking-face generation is not available"
	logFileNameDefault     = "voicechat-cli.log"
	logFileNameVerbose     = "voicechat-cli-verbose.log"
	noPoseStyle            = -1
	defaultCommandDeadline = 10 * time.Minute
)

// Validation errors.
var (
	ErrNothingToDo       = errors.New("one of --text, --image with --audio, or --status must be provided")
	ErrStatusExclusive   = errors.New("--status cannot be combined with other requests")
	ErrImageNeedsRequest = errors.New("--image needs either --text or --audio")
	ErrAudioNeedsImage   = errors.New("--audio needs --image")
	ErrAudioWithText     = errors.New("cannot specify both --text and --audio")
	ErrBackendError      = errors.New("backend returned an error")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text      string
	image     string
	audio     string
	backend   string
	poseStyle int
	stillMode bool
	status    bool
	verbose   bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = validateArguments(flags)
	if err != nil {
		return err
	}

	client, clientLog, err := setup(flags)
	if err != nil {
		return err
	}

	defer func() { _ = clientLog.Close() }()

	clientLog.Info(logClientInitialized, client.BaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandDeadline)
	defer cancel()

	return execute(ctx, client, clientLog, flags, out)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("voicechat-cli", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.image, flagImage, "", flagImageDesc)
	flagSet.StringVar(&flags.audio, flagAudio, "", flagAudioDesc)
	flagSet.StringVar(&flags.backend, flagBackend, "", flagBackendDesc)
	flagSet.IntVar(&flags.poseStyle, flagPoseStyle, noPoseStyle, flagPoseStyleDesc)
	flagSet.BoolVar(&flags.stillMode, flagStillMode, false, flagStillDesc)
	flagSet.BoolVar(&flags.status, flagStatus, false, flagStatusDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateArguments checks for missing and conflicting arguments.
func validateArguments(flags appFlags) error {
	if flags.status {
		if flags.text != "" || flags.image != "" || flags.audio != "" {
			return ErrStatusExclusive
		}

		return nil
	}

	switch {
	case flags.audio != "" && flags.image == "":
		return ErrAudioNeedsImage
	case flags.text == "" && flags.image == "":
		return ErrNothingToDo
	case flags.text != "" && flags.audio != "":
		return ErrAudioWithText
	case flags.image != "" && flags.text == "" && flags.audio == "":
		return ErrImageNeedsRequest
	}

	return nil
}

// setup loads config, applies flag overrides and initializes the logger.
func setup(flags appFlags) (*backend.Client, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), "voicechat-cli-bootstrap.log")
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToLoadConfig, err)
	}

	if flags.backend != "" {
		cfg.Backend.BaseURL = flags.backend
	}

	logFileName := logFileNameDefault
	if flags.verbose {
		logFileName = logFileNameVerbose
	}

	clientLog, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	return backend.NewClient(cfg.Backend.BaseURL, cfg.BackendTimeout(), clientLog), clientLog, nil
}

// execute dispatches to the request the flags describe and prints the result.
func execute(
	ctx context.Context,
	client *backend.Client,
	clientLog *logger.Logger,
	flags appFlags,
	out io.Writer,
) error {
	if flags.status {
		return printStatus(out, client.SadTalkerStatus(ctx))
	}

	if flags.image == "" {
		clientLog.Info(logSendingChat, false)

		resp, err := client.SendChat(ctx, flags.text)
		if err != nil {
			return fmt.Errorf("chat failed: %s", backend.Message(err))
		}

		return printReply(out, resp.LLMResponse, client.ResolveURL(resp.AudioURL), "", resp.Error)
	}

	image, err := readImage(flags.image)
	if err != nil {
		return err
	}

	if flags.audio != "" {
		clientLog.Info(logGeneratingFace, flags.audio)

		resp, faceErr := client.GenerateTalkingFace(ctx, image, flags.audio, talkingFaceOptions(flags))
		if faceErr != nil {
			return fmt.Errorf("talking face generation failed: %s", backend.Message(faceErr))
		}

		return printReply(out, "", "", client.ResolveURL(resp.VideoURL), resp.Error)
	}

	clientLog.Info(logSendingChat, true)

	resp, err := client.ChatWithTalkingFace(ctx, flags.text, image, faceOptions(flags))
	if err != nil {
		return fmt.Errorf("chat failed: %s", backend.Message(err))
	}

	return printReply(out, resp.LLMResponse, client.ResolveURL(resp.AudioURL), client.ResolveURL(resp.VideoURL), resp.Error)
}

func faceOptions(flags appFlags) backend.FaceOptions {
	var opts backend.FaceOptions

	if flags.poseStyle != noPoseStyle {
		poseStyle := flags.poseStyle
		opts.PoseStyle = &poseStyle
	}

	if flags.stillMode {
		stillMode := true
		opts.StillMode = &stillMode
	}

	return opts
}

func talkingFaceOptions(flags appFlags) backend.TalkingFaceOptions {
	face := faceOptions(flags)

	return backend.TalkingFaceOptions{
		PoseStyle:       face.PoseStyle,
		BatchSize:       nil,
		FaceEnhancement: nil,
		StillMode:       face.StillMode,
		UseEnhancer:     nil,
		Preprocess:      nil,
		Enhancer:        nil,
	}
}

func readImage(path string) (core.ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.ImageFile{}, fmt.Errorf(errFailedToReadImage, path, err)
	}

	return core.ImageFile{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

func printStatus(out io.Writer, status backend.SadTalkerStatus) error {
	message := msgUnavailable
	if status.Available {
		message = msgAvailable
	}

	_, err := fmt.Fprintln(out, message)

	return err
}

func printReply(out io.Writer, response, audioURL, videoURL, appError string) error {
	if appError != "" {
		return fmt.Errorf("%w: %s", ErrBackendError, appError)
	}

	lines := []struct {
		label string
		value string
	}{
		{"Response", response},
		{"Audio", audioURL},
		{"Video", videoURL},
	}

	for _, line := range lines {
		if line.value == "" {
			continue
		}

		_, err := fmt.Fprintf(out, "%s: %s\n", line.label, line.value)
		if err != nil {
			return err
		}
	}

	return nil
}
