package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
	"modelscout/internal/utils/platformerrors"
)

func ollamaEntry(baseURL string) config.ProviderEntry {
	return config.ProviderEntry{Name: "ollama", Vendor: "ollama", BaseURL: baseURL}
}

func ollamaVersion(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"version": "0.5.0"})
}

func TestOllamaDiscoverModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/version" {
			ollamaVersion(w)
			return
		}
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"models": []map[string]any{
			{
				"name":  "llama3.2:3b",
				"model": "llama3.2:3b",
				"details": map[string]any{
					"family":         "llama",
					"families":       []string{"llama"},
					"parameter_size": "3.2B",
				},
			},
			{
				"name":  "llava:13b",
				"model": "llava:13b",
				"details": map[string]any{
					"family":   "llama",
					"families": []string{"llama", "clip"},
				},
			},
			{
				"name":  "nomic-embed-text",
				"model": "nomic-embed-text",
				"details": map[string]any{
					"family": "nomic-bert",
				},
			},
		}})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(ollamaEntry(server.URL), Options{})
	if err := adapter.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer adapter.Cleanup()

	page, err := adapter.DiscoverModels(context.Background(), PageRequest{})
	if err != nil {
		t.Fatalf("DiscoverModels failed: %v", err)
	}
	if len(page.Records) != 3 || page.NextCursor != "" {
		t.Fatalf("page = %d records, cursor %q", len(page.Records), page.NextCursor)
	}

	byID := map[string]catalog.ModelRecord{}
	for _, r := range page.Records {
		byID[r.ID] = r
	}
	if byID["llama3.2:3b"].Task != "chat" {
		t.Fatalf("llama task = %q", byID["llama3.2:3b"].Task)
	}
	if byID["nomic-embed-text"].Task != "embedding" {
		t.Fatalf("embed task = %q", byID["nomic-embed-text"].Task)
	}
	if !byID["llava:13b"].HasCapability(catalog.CapabilityVision) {
		t.Fatalf("clip family should infer vision, got %v", byID["llava:13b"].Capabilities)
	}
}

func TestOllamaModelDetailsContextLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/version" {
			ollamaVersion(w)
			return
		}
		if r.URL.Path != "/api/show" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "llama3.2:3b" {
			t.Errorf("model = %q", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"details": map[string]any{"family": "llama", "parameter_size": "3.2B"},
			"model_info": map[string]any{
				"general.architecture": "llama",
				"llama.context_length": 131072,
			},
		})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(ollamaEntry(server.URL), Options{})
	if err := adapter.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer adapter.Cleanup()

	record, err := adapter.GetModelDetails(context.Background(), "llama3.2:3b")
	if err != nil {
		t.Fatalf("GetModelDetails failed: %v", err)
	}
	if record.ContextLength != 131072 {
		t.Fatalf("context length = %d, want 131072", record.ContextLength)
	}
}

func TestOllamaModelDetailsNotInstalled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/version" {
			ollamaVersion(w)
			return
		}
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(ollamaEntry(server.URL), Options{})
	if err := adapter.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer adapter.Cleanup()

	_, err := adapter.GetModelDetails(context.Background(), "no-such-model")
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("error type = %v, want NOT_FOUND", platformerrors.TypeOf(err))
	}
}

func TestOllamaTestModelChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/version" {
			ollamaVersion(w)
			return
		}
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if stream, ok := body["stream"].(bool); !ok || stream {
			t.Errorf("stream = %v, want false", body["stream"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"done": true})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(ollamaEntry(server.URL), Options{})
	if err := adapter.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer adapter.Cleanup()

	if err := adapter.TestModel(context.Background(), "llama3.2:3b", TestKindChat); err != nil {
		t.Fatalf("TestModel failed: %v", err)
	}
}

func TestOllamaStoppedDaemonFailsInitialize(t *testing.T) {
	// Nothing listens on this port.
	adapter := NewOllamaAdapter(ollamaEntry("http://127.0.0.1:1"), Options{})
	err := adapter.Initialize(context.Background())
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeConfiguration) {
		t.Fatalf("error type = %v, want CONFIGURATION", platformerrors.TypeOf(err))
	}
}

func TestOllamaUnreachableMidRunIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ollamaVersion(w)
	}))

	adapter := NewOllamaAdapter(ollamaEntry(server.URL), Options{})
	if err := adapter.Initialize(context.Background()); err != nil {
		server.Close()
		t.Fatalf("Initialize failed: %v", err)
	}
	defer adapter.Cleanup()

	// The daemon goes away after a successful start.
	server.Close()

	_, err := adapter.DiscoverModels(context.Background(), PageRequest{})
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeTransient) {
		t.Fatalf("error type = %v, want TRANSIENT", platformerrors.TypeOf(err))
	}
	if stats := adapter.Stats(); stats.Failures != 1 {
		t.Fatalf("failures = %d, want 1", stats.Failures)
	}
}
