package chat

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"a4achat/internal/config"
	"a4achat/internal/gateway"
	"a4achat/internal/session"
	"a4achat/internal/telemetry"

	tea "github.com/charmbracelet/bubbletea"
)

// TestModelOption mutates a freshly constructed test model.
type TestModelOption func(*Model)

// WithHistory seeds the transcript.
func WithHistory(msgs ...Message) TestModelOption {
	return func(m *Model) { m.history = msgs }
}

// WithViewMode sets the active view.
func WithViewMode(mode ViewMode) TestModelOption {
	return func(m *Model) { m.viewMode = mode }
}

// WithActiveTurn arms an in-flight turn the way handleSubmit does:
// user message plus empty placeholder, loading flag, shared meter.
func WithActiveTurn(prompt string) TestModelOption {
	return func(m *Model) {
		m.history = append(m.history,
			Message{Role: "user", Content: prompt, Time: time.Now()},
			Message{Role: "assistant", Time: time.Now()},
		)
		m.isLoading = true
		m.phase = PhaseLoading
		m.turnPrompt = prompt
		m.meter = telemetry.NewMeter(m.activeModel)
	}
}

// testSession builds a session manager over a fresh temp state file.
func testSession(t *testing.T, gatewayURL string) *session.Manager {
	t.Helper()

	permanent, err := session.OpenPermanentStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("open permanent store: %v", err)
	}
	client := gateway.NewClient(gatewayURL, 2*time.Second)
	return session.NewManager(session.NewSessionStore(), permanent, client)
}

// telemetrySnapshot fabricates a finished-turn snapshot.
func telemetrySnapshot(model string, tokens int, elapsedSeconds float64) telemetry.Snapshot {
	return telemetry.Snapshot{
		Model:           model,
		Tokens:          tokens,
		ElapsedSeconds:  elapsedSeconds,
		TokensPerSecond: float64(tokens) / elapsedSeconds,
	}
}

// NewTestModel builds a chat model against the given gateway URL with
// no background machinery running. Init is never called, so nothing
// touches the network unless a test executes a returned command.
func NewTestModel(t *testing.T, gatewayURL string, opts ...TestModelOption) Model {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Gateway.BaseURL = gatewayURL

	client := gateway.NewClient(gatewayURL, 2*time.Second)

	m, err := New(Options{
		Config:     cfg,
		ConfigPath: filepath.Join(dir, "config.yaml"),
		Client:     client,
		Session:    testSession(t, gatewayURL),
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("construct model: %v", err)
	}

	// Simulate the first window size message so View renders fully.
	m.width, m.height = 100, 40
	m.layout()

	for _, opt := range opts {
		opt(&m)
	}

	// The Once and contexts are shared across model copies, so tearing
	// down through this copy also covers the copy the test evolved.
	t.Cleanup(func() { m.Shutdown() })
	return m
}

// deadGateway is an address nothing listens on. Tests that never
// execute network commands use it to prove they stay offline.
const deadGateway = "http://127.0.0.1:1"

// chatFrame renders one streamed content fragment as an SSE line.
func chatFrame(token string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, token)
}

// newStreamServer serves the chat completion route with the given SSE
// frames and enough of the status surface for pollers and grants.
func newStreamServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "%s\n\n", frame)
			flusher.Flush()
		}
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"object":"list","data":[
			{"id":"ai4all/llama3","category":"chat","owned_by":"ai4all","description":"General conversation"},
			{"id":"ai4all/coder","category":"code","owned_by":"ai4all","description":"Code assistant"}]}`)
	})
	mux.HandleFunc("/v1/tokens/balance", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"balance":900,"earned_total":1000,"spent_total":100}`)
	})
	mux.HandleFunc("/v1/node/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"node_id":"node-1","mode":"full","peers":3,"uptime_secs":600}`)
	})
	mux.HandleFunc("/v1/gpu", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"backend":"cuda","available":true,"devices":[]}`)
	})
	mux.HandleFunc("/v1/system/stats", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"cpu_pct":12.0,"ram_pct":40.0,"ram_used_gb":13,"ram_total_gb":32,"gpu":[]}`)
	})
	mux.HandleFunc("/v1/tokens/starter", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"granted":true,"amount":100,"message":"Welcome aboard!"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// applyUpdate runs one message through Update and re-types the result.
func applyUpdate(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	typed, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want chat.Model", next)
	}
	return typed, cmd
}

// drive simulates the bubbletea runtime synchronously: it executes
// queued commands, feeds their messages back through Update and stops
// as soon as the condition holds. Commands are only executed when the
// queue reaches them, so a command blocked on a quiet channel is only
// a problem if the condition actually depends on it.
func drive(t *testing.T, m Model, cmd tea.Cmd, done func(Model) bool) Model {
	t.Helper()

	queue := []tea.Cmd{cmd}
	for steps := 0; steps < 500; steps++ {
		if done(m) {
			return m
		}
		if len(queue) == 0 {
			t.Fatalf("command queue drained before the condition held (phase %v)", m.phase)
		}

		var next tea.Cmd
		next, queue = queue[0], queue[1:]
		if next == nil {
			continue
		}
		msg := next()
		if msg == nil {
			continue
		}
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, []tea.Cmd(batch)...)
			continue
		}

		var cmd tea.Cmd
		m, cmd = applyUpdate(t, m, msg)
		if cmd != nil {
			queue = append(queue, cmd)
		}
	}
	t.Fatal("condition never held after 500 steps")
	return m
}

// submitPrompt types the prompt and presses Enter.
func submitPrompt(t *testing.T, m Model, prompt string) (Model, tea.Cmd) {
	t.Helper()
	m.textarea.SetValue(prompt)
	return applyUpdate(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}
