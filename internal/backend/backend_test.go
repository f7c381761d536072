package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ambientworks/roomvoice/internal/backend"
)

func TestClient_SendCommand(t *testing.T) {
	t.Parallel()

	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-voice-command" {
			t.Errorf("path=%q, want /text-voice-command", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type=%q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"response":  "The lights are on.",
				"audioFile": "/audio/abc.mp3",
			},
		})
	}))
	defer srv.Close()

	c := backend.New(srv.URL, "living room")
	res, err := c.SendCommand(context.Background(), "turn on the lights", []backend.Message{
		{Role: "user", Content: "turn on the lights"},
	})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if res.Response != "The lights are on." {
		t.Errorf("Response=%q", res.Response)
	}
	if res.AudioFile != "/audio/abc.mp3" {
		t.Errorf("AudioFile=%q", res.AudioFile)
	}

	if gotPayload["message"] != "turn on the lights" {
		t.Errorf("payload message=%v", gotPayload["message"])
	}
	if gotPayload["roomName"] != "living room" {
		t.Errorf("payload roomName=%v", gotPayload["roomName"])
	}
	if gotPayload["source"] != "voice_command" {
		t.Errorf("payload source=%v", gotPayload["source"])
	}
	if _, ok := gotPayload["conversationHistory"]; !ok {
		t.Error("payload missing conversationHistory")
	}
}

func TestClient_SendCommandErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "envelope error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "no such room"})
			},
		},
		{
			name: "missing data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"success": true})
			},
		},
		{
			name: "empty response text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"response": ""}})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := backend.New(srv.URL, "office")
			if _, err := c.SendCommand(context.Background(), "hello", nil); err == nil {
				t.Error("SendCommand: err=nil, want error")
			}
		})
	}
}

func TestClient_TranscribeVoice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voice-command" {
			t.Errorf("path=%q, want /voice-command", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("roomName") != "kitchen" {
			t.Errorf("roomName=%q", r.FormValue("roomName"))
		}

		var history []backend.Message
		if err := json.Unmarshal([]byte(r.FormValue("conversationHistory")), &history); err != nil {
			t.Errorf("conversationHistory not valid JSON: %v", err)
		}

		f, hdr, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "audio.wav" {
			t.Errorf("filename=%q, want audio.wav", hdr.Filename)
		}

		// WAV container: RIFF magic in the first four bytes.
		head := make([]byte, 4)
		f.Read(head)
		if string(head) != "RIFF" {
			t.Errorf("upload does not start with RIFF header: %q", head)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"transcription": "aida turn on the lights",
				"response":      "Done.",
				"audioFile":     "",
			},
		})
	}))
	defer srv.Close()

	pcm := make([]byte, 16000*2) // one second of silence at 16 kHz
	c := backend.New(srv.URL, "kitchen")
	res, err := c.TranscribeVoice(context.Background(), pcm, 16000, []backend.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("TranscribeVoice: %v", err)
	}
	if res.Transcription != "aida turn on the lights" {
		t.Errorf("Transcription=%q", res.Transcription)
	}
	if res.Response != "Done." {
		t.Errorf("Response=%q", res.Response)
	}
}

func TestClient_Chat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("path=%q, want /chat", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"response": "Hello!"},
		})
	}))
	defer srv.Close()

	c := backend.New(srv.URL+"/", "office")
	got, err := c.Chat(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Hello!" {
		t.Errorf("Chat=%q, want Hello!", got)
	}
}

func TestClient_Ping(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	c := backend.New(srv.URL, "office")
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping against live server: %v", err)
	}

	srv.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping against closed server: err=nil, want error")
	}
}
