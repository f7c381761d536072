// Package backend is the HTTP client for the smart-home assistant backend.
//
// The backend exposes three endpoints the room client talks to:
//
//   - POST /text-voice-command — JSON command dispatch with conversation
//     history; the assistant's reply may reference a synthesized audio file.
//   - POST /voice-command — multipart WAV upload used as the remote
//     transcription fallback when no native STT engine is available.
//   - POST /chat — plain text chat, used by the command-line test path.
//
// All responses share the backend's envelope: {success, data: {...}, error}.
// The client unwraps the envelope and surfaces failures as errors; it never
// retries, matching the caller's drop-and-keep-listening error policy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// defaultTimeout bounds every backend call. Dispatch happens synchronously on
// the listening worker, so a hung backend would otherwise stall the
// microphone indefinitely.
const defaultTimeout = 30 * time.Second

// Message is one conversation history entry exchanged with the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CommandResult is the assistant's reply to a dispatched command.
type CommandResult struct {
	// Response is the assistant's text reply.
	Response string

	// AudioFile is an optional URL of synthesized speech for the reply.
	AudioFile string
}

// VoiceResult is the outcome of a remote voice-command upload.
type VoiceResult struct {
	// Transcription is the backend's transcription of the uploaded audio.
	Transcription string

	// Response and AudioFile mirror CommandResult; the voice endpoint
	// answers in one round trip.
	Response  string
	AudioFile string
}

// envelope is the backend's common response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithTimeout sets the per-request timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// Client talks to the assistant backend. It is safe for concurrent use.
type Client struct {
	baseURL  string
	roomName string
	httpc    *http.Client
}

// New creates a Client for the backend at baseURL, identifying this client as
// roomName in every request. A trailing slash on baseURL is tolerated.
func New(baseURL, roomName string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		roomName: roomName,
		httpc:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendCommand dispatches a voice command to /text-voice-command with the
// given conversation history and returns the assistant's reply.
func (c *Client) SendCommand(ctx context.Context, message string, history []Message) (*CommandResult, error) {
	payload := map[string]any{
		"message":             message,
		"roomName":            c.roomName,
		"conversationHistory": history,
		"source":              "voice_command",
	}

	var data struct {
		Response  string `json:"response"`
		AudioFile string `json:"audioFile"`
	}
	if err := c.postJSON(ctx, "/text-voice-command", payload, &data); err != nil {
		return nil, err
	}
	if data.Response == "" {
		return nil, fmt.Errorf("backend: empty response for command")
	}
	return &CommandResult{Response: data.Response, AudioFile: data.AudioFile}, nil
}

// Chat sends a plain text message to /chat. It exists for the interactive
// test path and omits the voice-command source tag.
func (c *Client) Chat(ctx context.Context, message string, history []Message) (string, error) {
	payload := map[string]any{
		"message":             message,
		"roomName":            c.roomName,
		"conversationHistory": history,
	}

	var data struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/chat", payload, &data); err != nil {
		return "", err
	}
	return data.Response, nil
}

// TranscribeVoice uploads one utterance of PCM16 mono audio as a WAV file to
// /voice-command and returns the backend's transcription (and, as a side
// effect of the endpoint's design, its reply). Used as the remote fallback of
// the transcription gateway.
func (c *Client) TranscribeVoice(ctx context.Context, pcm []byte, sampleRate int, history []Message) (*VoiceResult, error) {
	wavData, err := encodeWAV(pcm, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("backend: encode wav: %w", err)
	}

	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("backend: marshal history: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("backend: build multipart: %w", err)
	}
	if _, err := fw.Write(wavData); err != nil {
		return nil, fmt.Errorf("backend: build multipart: %w", err)
	}
	if err := mw.WriteField("roomName", c.roomName); err != nil {
		return nil, fmt.Errorf("backend: build multipart: %w", err)
	}
	if err := mw.WriteField("conversationHistory", string(historyJSON)); err != nil {
		return nil, fmt.Errorf("backend: build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("backend: build multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/voice-command", &body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var data struct {
		Transcription string `json:"transcription"`
		Response      string `json:"response"`
		AudioFile     string `json:"audioFile"`
	}
	if err := c.do(req, &data); err != nil {
		return nil, err
	}
	return &VoiceResult{
		Transcription: data.Transcription,
		Response:      data.Response,
		AudioFile:     data.AudioFile,
	}, nil
}

// Ping probes the backend's /health endpoint. Any HTTP response counts as
// reachable; only transport-level failures are errors.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("backend: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request and decodes the backend envelope into out.
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("backend: read response: %w", err)
	}

	slog.Debug("backend: request complete",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: %s returned %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	if env.Error != "" {
		return fmt.Errorf("backend: %s: %s", req.URL.Path, env.Error)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("backend: %s: response missing data", req.URL.Path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("backend: decode data: %w", err)
	}
	return nil
}
