package backend

import "encoding/json"

// ChatRequest is the JSON payload of POST /chat and of the "request" part of
// POST /chat_with_talking_face.
type ChatRequest struct {
	Text string `json:"text"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	LLMResponse string `json:"llm_response"`
	AudioURL    string `json:"audio_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TalkingFaceResponse is the body returned by POST /generate_talking_face.
type TalkingFaceResponse struct {
	Success  bool   `json:"success"`
	VideoURL string `json:"video_url,omitempty"`
	// Details is passed through untouched; its shape belongs to the backend.
	Details json.RawMessage `json:"details,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ChatWithTalkingFaceResponse is the body returned by POST /chat_with_talking_face.
type ChatWithTalkingFaceResponse struct {
	LLMResponse string `json:"llm_response"`
	AudioURL    string `json:"audio_url,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SadTalkerStatus is the body returned by GET /sadtalker_status.
type SadTalkerStatus struct {
	Available bool `json:"available"`
}

// TalkingFaceOptions are the optional generation parameters of
// POST /generate_talking_face. A nil field is left out of the request.
type TalkingFaceOptions struct {
	PoseStyle       *int
	BatchSize       *int
	FaceEnhancement *bool
	StillMode       *bool
	UseEnhancer     *bool
	Preprocess      *string
	Enhancer        *string
}

// FaceOptions are the optional parameters of POST /chat_with_talking_face.
type FaceOptions struct {
	PoseStyle *int
	StillMode *bool
}

// errorResponse is the structured error body of a non-2xx response.
type errorResponse struct {
	Detail string `json:"detail"`
}
