package transcribe

import "context"

// Backend is the interface for speech-to-text services.
type Backend interface {
	Transcribe(ctx context.Context, audio Audio) (*Response, error)
	Name() string  // "whisper"
	Model() string // model identifier for logs
}

// Audio is an in-memory audio attachment.
type Audio struct {
	Filename    string // e.g. "audio.mp3"
	ContentType string // e.g. "audio/mpeg"
	Data        []byte
}

// Response is the transcription result from a Backend.
// Text is nil when the service omitted the field.
type Response struct {
	Text     *string
	Language string
	Duration float64 // audio duration in seconds, 0 if unknown
}

// TextOrEmpty returns the transcribed text, or "" if none was returned.
func (r *Response) TextOrEmpty() string {
	if r == nil || r.Text == nil {
		return ""
	}
	return *r.Text
}
