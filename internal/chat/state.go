package chat

// ErrorKind tells where a displayed error came from.
type ErrorKind int

const (
	// ErrorKindNone means no error is displayed.
	ErrorKindNone ErrorKind = iota
	// ErrorKindApplication is an error field in an otherwise successful response.
	ErrorKindApplication
	// ErrorKindRequest is a transport failure or a non-2xx response.
	ErrorKindRequest
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindApplication:
		return "application"
	case ErrorKindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// State is a snapshot of what the chat panel renders. Error and the reply
// fields (Response, AudioURL, VideoURL) are never set together.
type State struct {
	Input     string
	Loading   bool
	Error     string
	ErrorKind ErrorKind
	Response  string
	// AudioURL and VideoURL are absolute URLs on the backend origin.
	AudioURL string
	VideoURL string
	// HasFace is set when the next submission will request a talking face.
	HasFace bool
	// Generation numbers submissions; it changes on every accepted Submit.
	Generation uint64
}

// HasReply reports whether there is a reply to render.
func (s State) HasReply() bool {
	return s.Response != "" || s.AudioURL != "" || s.VideoURL != ""
}
