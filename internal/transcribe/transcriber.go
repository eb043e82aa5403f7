// Package transcribe downloads live-timing audio and turns it into text,
// routing every API call through a shared scheduler so requests go out
// one at a time with a fixed pause in between.
package transcribe

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/f1-transcriber/internal/metrics"
	"github.com/snarg/f1-transcriber/internal/scheduler"
)

// APIKeyEnv is the environment variable consulted when no key is given.
const APIKeyEnv = "OPENAI_API_KEY"

const (
	defaultTimeout = 120 * time.Second

	audioFilename    = "audio.mp3"
	audioContentType = "audio/mpeg"
)

// ErrMissingAPIKey is returned by New when neither Options.APIKey nor
// OPENAI_API_KEY is set.
var ErrMissingAPIKey = errors.New("OpenAI API key not provided (" + APIKeyEnv + ")")

// Options configures a Transcriber. Only the API key is required, and it
// may come from the environment.
type Options struct {
	APIKey   string
	BaseURL  string        // prefix joined with the audio path; default DefaultBaseURL
	Endpoint string        // transcription endpoint; default DefaultWhisperURL
	Model    string        // default DefaultModel
	Cooldown time.Duration // pause after each API call; default scheduler.DefaultCooldown
	Timeout  time.Duration // per HTTP request; default 120s

	// Scheduler, when set, is shared with other users of the same key and
	// Cooldown is ignored.
	Scheduler  *scheduler.Scheduler
	HTTPClient *http.Client
	Backend    Backend // overrides the Whisper client
	Log        zerolog.Logger
}

// Transcriber fetches audio from the live-timing host and transcribes it.
type Transcriber struct {
	baseURL string
	fetcher *Fetcher
	backend Backend
	sched   *scheduler.Scheduler
	log     zerolog.Logger
}

// New builds a Transcriber. It fails immediately if no API key is available.
func New(opts Options) (*Transcriber, error) {
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(APIKeyEnv)
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	backend := opts.Backend
	if backend == nil {
		backend = NewWhisperClient(opts.Endpoint, opts.Model, key, opts.Timeout, client)
	}

	sched := opts.Scheduler
	if sched == nil {
		sched = scheduler.New(opts.Cooldown, opts.Log.With().Str("component", "scheduler").Logger())
	}

	return &Transcriber{
		baseURL: opts.BaseURL,
		fetcher: NewFetcher(client),
		backend: backend,
		sched:   sched,
		log:     opts.Log,
	}, nil
}

// Scheduler returns the scheduler the Transcriber submits to.
func (t *Transcriber) Scheduler() *scheduler.Scheduler { return t.sched }

// Model returns the backend model identifier.
func (t *Transcriber) Model() string { return t.backend.Model() }

// Transcribe downloads BaseURL+path and returns its transcript, or "" if
// the backend returned no text. The path is used as given.
//
// The work is queued behind earlier calls. Cancelling ctx stops the wait
// but not the queued work, which still runs in its turn.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	taskCtx := context.WithoutCancel(ctx)
	return scheduler.Do(ctx, t.sched, func() (string, error) {
		return t.run(taskCtx, path)
	})
}

func (t *Transcriber) run(ctx context.Context, path string) (string, error) {
	url := t.baseURL + path
	start := time.Now()

	data, err := t.fetcher.Fetch(ctx, url)
	if err != nil {
		t.fail(err, url)
		return "", err
	}

	resp, err := t.backend.Transcribe(ctx, Audio{
		Filename:    audioFilename,
		ContentType: audioContentType,
		Data:        data,
	})
	if err != nil {
		t.fail(err, url)
		return "", err
	}

	text := resp.TextOrEmpty()
	metrics.TranscriptionsTotal.WithLabelValues("ok").Inc()
	t.log.Debug().
		Str("url", url).
		Int("audio_bytes", len(data)).
		Int("chars", len(text)).
		Str("backend", t.backend.Name()).
		Dur("took", time.Since(start)).
		Msg("transcription complete")
	return text, nil
}

func (t *Transcriber) fail(err error, url string) {
	metrics.TranscriptionsTotal.WithLabelValues("error").Inc()
	t.log.Error().Err(err).Str("url", url).Msg("transcription error")
}
