package ollama

import (
	"context"
	"encoding/json"
	"image"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
)

func TestSanitizeModelJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"text": "AB"}`, `{"text": "AB"}`},
		{"fenced", "```json\n{\"text\": \"AB\"}\n```", `{"text": "AB"}`},
		{"trailing comma", `{"objects": [{"x": 1},],}`, `{"objects": [{"x": 1}]}`},
		{"comments", "{\n// the plate\n\"text\": \"AB\" /* read */\n}", "{\n\n\"text\": \"AB\" \n}"},
		{"surrounding prose", `Here it is: {"text": "AB"} Done.`, `{"text": "AB"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeModelJSON(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDetections(t *testing.T) {
	raw := "```json\n" + `{"objects": [
		{"label": "licence_plate", "confidence": 0.9, "box": {"x": 0.25, "y": 0.5, "w": 0.5, "h": 0.25}},
		{"label": "licence_plate", "confidence": 1.5, "box": {"x": 0.9, "y": -0.1, "w": 0.5, "h": 0.5}},
	]}` + "\n```"

	got, err := parseDetections(raw, 200, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d detections", len(got))
	}
	if got[0].Label != "licence_plate" || got[0].Confidence != 0.9 ||
		got[0].Coords != [4]float64{50, 50, 150, 75} {
		t.Errorf("got %+v", got[0])
	}
	want := [4]float64{180, 0, 200, 40}
	for i, v := range got[1].Coords {
		if math.Abs(v-want[i]) > 1e-9 {
			t.Errorf("coords = %v, want %v", got[1].Coords, want)
			break
		}
	}
	if got[1].Confidence != 1 {
		t.Errorf("confidence = %v, want 1", got[1].Confidence)
	}

	if _, err := parseDetections("no plates here", 10, 10); err == nil {
		t.Error("want an error for a reply without JSON")
	}
}

func TestParseText(t *testing.T) {
	got, err := parseText(`{"text": "  AB 123 ", "confidence": 0.8}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "AB 123" || got[0].Confidence != 0.8 {
		t.Errorf("got %+v", got)
	}

	got, err = parseText(`{"text": "", "confidence": 0.0}`)
	if err != nil || len(got) != 0 {
		t.Errorf("got %+v, %v", got, err)
	}
}

func TestNewClient(t *testing.T) {
	for _, u := range []string{"localhost:11434", "/api/chat", "://x"} {
		if _, err := NewClient(u, "m"); err == nil {
			t.Errorf("NewClient(%q) succeeded, want an error", u)
		}
	}
	if _, err := NewClient("http://localhost:11434/api/chat", "m"); err != nil {
		t.Error(err)
	}
}

func TestClientChat(t *testing.T) {
	var requests []api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req api.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requests = append(requests, req)

		content := `{"text": "XY 42", "confidence": 0.9}`
		if req.Messages[0].Content == DetectPrompt {
			content = `{"objects": [{"label": "licence_plate", "confidence": 0.8,` +
				` "box": {"x": 0.1, "y": 0.2, "w": 0.5, "h": 0.5}}]}`
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.ChatResponse{
			Model:   req.Model,
			Message: api.Message{Role: "assistant", Content: content},
			Done:    true,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "vision")
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))

	detections, err := c.Detect(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if len(detections) != 1 {
		t.Fatalf("got %+v", detections)
	}
	want := [4]float64{4, 4, 24, 14}
	for i, v := range detections[0].Coords {
		if math.Abs(v-want[i]) > 1e-9 {
			t.Errorf("coords = %v, want %v", detections[0].Coords, want)
			break
		}
	}

	texts, err := c.ReadText(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if len(texts) != 1 || texts[0].Text != "XY 42" {
		t.Errorf("got %+v", texts)
	}

	if len(requests) != 2 {
		t.Fatalf("got %d requests", len(requests))
	}
	for _, req := range requests {
		if req.Model != "vision" || req.Stream == nil || *req.Stream ||
			len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
			t.Errorf("unexpected request %+v", req)
		}
	}
}
