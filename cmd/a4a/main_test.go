package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"a4achat/internal/gateway"
	"a4achat/internal/history"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// fakeGateway serves the endpoints the one-shot commands touch.
// grantCalls counts starter claims so tests can assert idempotence.
type fakeGateway struct {
	server     *httptest.Server
	grantCalls atomic.Int32
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	fg := &fakeGateway{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "version": "1.3.0"})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"object": "list", "data": []map[string]any{
			{"id": "ai4all/llama3", "object": "model", "owned_by": "ai4all", "category": "chat", "description": "General conversation model"},
			{"id": "ai4all/coder", "object": "model", "owned_by": "ai4all", "category": "code", "description": "Code assistant"},
		}})
	})
	mux.HandleFunc("/v1/tokens/balance", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"balance": 1250, "earned_total": 1500, "spent_total": 250})
	})
	mux.HandleFunc("/v1/node/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"node_id": "node-7", "mode": "full", "peers": 14, "uptime_secs": 90061, "version": "0.9.2"})
	})
	mux.HandleFunc("/v1/gpu", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"backend": "cuda", "available": true, "devices": []map[string]any{
			{"index": 0, "vendor": "NVIDIA", "name": "RTX 4090", "vram_gb": 24, "vram_free_gb": 18},
		}})
	})
	mux.HandleFunc("/v1/system/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"cpu_pct": 37.0, "ram_pct": 62.0, "ram_used_gb": 20, "ram_total_gb": 32, "gpu": []any{}})
	})
	mux.HandleFunc("/v1/tokens/starter", func(w http.ResponseWriter, r *http.Request) {
		fg.grantCalls.Add(1)
		writeJSON(w, map[string]any{"granted": true, "amount": 100, "message": "Welcome! 100 starter tokens added."})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, tok := range []string{"Hello", " world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})

	fg.server = httptest.NewServer(mux)
	t.Cleanup(fg.server.Close)
	return fg
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// setupCLI points the flag globals at a temp state dir and the given
// gateway, the way Execute would after flag parsing. Returns the dir.
func setupCLI(t *testing.T, gatewayURL string) string {
	t.Helper()

	dir := t.TempDir()
	configFlag = filepath.Join(dir, "config.yaml")
	gatewayFlag = gatewayURL
	logger = zap.NewNop()
	t.Cleanup(func() {
		configFlag = ""
		gatewayFlag = ""
	})
	return dir
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}

func TestBootstrap_FlagOverrides(t *testing.T) {
	dir := setupCLI(t, "http://flag.example:9000")

	a, err := bootstrap()
	if err != nil {
		t.Fatalf("bootstrap returned error: %v", err)
	}

	if got := a.client.BaseURL(); got != "http://flag.example:9000" {
		t.Errorf("gateway flag not applied, client base URL = %q", got)
	}
	if a.stateDir != dir {
		t.Errorf("state dir = %q, want config dir %q", a.stateDir, dir)
	}
	if a.session.SessionID() == "" {
		t.Error("expected a session id after bootstrap")
	}
}

func TestShowStatus_AllHealthy(t *testing.T) {
	fg := newFakeGateway(t)
	setupCLI(t, fg.server.URL)

	output := captureOutput(t, func() {
		if err := showStatus(testCommand(), nil); err != nil {
			t.Errorf("showStatus returned error: %v", err)
		}
	})

	for _, want := range []string{
		"✓ Gateway ok (v1.3.0)",
		"✓ Node node-7 (full mode, 14 peers, up 1d1h)",
		"✓ Balance: 1250 tokens (earned 1500, spent 250)",
		"✓ GPU backend: cuda",
		"[0] NVIDIA RTX 4090, 24 GB VRAM (18 GB free)",
		"✓ Host: CPU 37%, RAM 62% (20/32 GB)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q\ngot:\n%s", want, output)
		}
	}
}

func TestShowStatus_GatewayDown(t *testing.T) {
	setupCLI(t, "http://127.0.0.1:1")

	output := captureOutput(t, func() {
		if err := showStatus(testCommand(), nil); err != nil {
			t.Errorf("showStatus should not fail when the gateway is down, got: %v", err)
		}
	})

	for _, want := range []string{
		"✗ Gateway unreachable",
		"✗ Node status unavailable",
		"✗ Balance unavailable",
		"✗ GPU inventory unavailable",
		"✗ Host stats unavailable",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q\ngot:\n%s", want, output)
		}
	}
}

func TestFetchStatus_PartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "version": "1.0.0"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"backend offline"}`, http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := gateway.NewClient(server.URL, 0)
	rep := fetchStatus(context.Background(), client)

	if rep.healthErr != nil {
		t.Errorf("health should succeed, got: %v", rep.healthErr)
	}
	if rep.gpuErr == nil {
		t.Error("gpu fetch should fail when the endpoint errors")
	}
	if rep.balErr == nil {
		t.Error("balance fetch should fail when the endpoint errors")
	}
}

func TestRunBalance(t *testing.T) {
	fg := newFakeGateway(t)
	setupCLI(t, fg.server.URL)

	output := captureOutput(t, func() {
		if err := showBalance(testCommand(), nil); err != nil {
			t.Errorf("showBalance returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Balance: 1250 tokens") {
		t.Errorf("balance output wrong:\n%s", output)
	}
}

func TestRunModels_PrintsCatalogue(t *testing.T) {
	fg := newFakeGateway(t)
	setupCLI(t, fg.server.URL)

	output := captureOutput(t, func() {
		if err := runModels(testCommand(), nil); err != nil {
			t.Errorf("runModels returned error: %v", err)
		}
	})

	if !strings.Contains(output, "* ai4all/llama3") {
		t.Errorf("default model should carry the * marker:\n%s", output)
	}
	if !strings.Contains(output, "ai4all/coder") {
		t.Errorf("catalogue output missing second model:\n%s", output)
	}
}

func TestRunGrant_ClaimsOnceThenLocal(t *testing.T) {
	fg := newFakeGateway(t)
	setupCLI(t, fg.server.URL)

	first := captureOutput(t, func() {
		if err := runGrant(testCommand(), nil); err != nil {
			t.Fatalf("first grant returned error: %v", err)
		}
	})
	if !strings.Contains(first, "Welcome! 100 starter tokens added.") {
		t.Errorf("first grant should print the gateway notice:\n%s", first)
	}

	second := captureOutput(t, func() {
		if err := runGrant(testCommand(), nil); err != nil {
			t.Fatalf("second grant returned error: %v", err)
		}
	})
	if !strings.Contains(second, "already claimed") {
		t.Errorf("second grant should answer locally:\n%s", second)
	}

	if calls := fg.grantCalls.Load(); calls != 1 {
		t.Errorf("gateway saw %d starter claims, want exactly 1", calls)
	}
}

func TestRunAsk_StreamsAndSavesHistory(t *testing.T) {
	fg := newFakeGateway(t)
	dir := setupCLI(t, fg.server.URL)
	askModel = "ai4all/llama3"
	askTemperature = -1
	askNoSave = false
	t.Cleanup(func() {
		askModel = ""
		askTemperature = 0
	})

	output := captureOutput(t, func() {
		if err := runAsk(testCommand(), []string{"why", "is", "the", "sky", "blue"}); err != nil {
			t.Errorf("runAsk returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Hello world") {
		t.Errorf("reply text missing from output:\n%s", output)
	}
	if !strings.Contains(output, "2 tokens") {
		t.Errorf("telemetry line missing from output:\n%s", output)
	}

	store, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	defer store.Close()

	turns, err := store.Recent(5)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 archived turn, got %d", len(turns))
	}
	if turns[0].Prompt != "why is the sky blue" {
		t.Errorf("archived prompt = %q", turns[0].Prompt)
	}
	if turns[0].Reply != "Hello world" {
		t.Errorf("archived reply = %q", turns[0].Reply)
	}
	if turns[0].Tokens != 2 {
		t.Errorf("archived token count = %d, want 2", turns[0].Tokens)
	}
}

func TestRunAsk_NoSaveSkipsHistory(t *testing.T) {
	fg := newFakeGateway(t)
	dir := setupCLI(t, fg.server.URL)
	askModel = ""
	askTemperature = -1
	askNoSave = true
	t.Cleanup(func() {
		askNoSave = false
		askTemperature = 0
	})

	captureOutput(t, func() {
		if err := runAsk(testCommand(), []string{"hi"}); err != nil {
			t.Errorf("runAsk returned error: %v", err)
		}
	})

	if _, err := os.Stat(filepath.Join(dir, "history.db")); !os.IsNotExist(err) {
		t.Error("no-save run should not create the history store")
	}
}

func TestRunHistory(t *testing.T) {
	fg := newFakeGateway(t)
	dir := setupCLI(t, fg.server.URL)
	historyLimit = 10
	t.Cleanup(func() { historyLimit = 0 })

	empty := captureOutput(t, func() {
		if err := runHistory(testCommand(), nil); err != nil {
			t.Errorf("runHistory returned error: %v", err)
		}
	})
	if !strings.Contains(empty, "No chat history yet.") {
		t.Errorf("empty archive should say so:\n%s", empty)
	}

	store, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	err = store.SaveTurn(history.Turn{
		SessionID: "s-1", Model: "ai4all/llama3",
		Prompt: "what is a community gateway", Reply: "a shared inference front",
		Tokens: 9, TokensPerSecond: 31.5, ElapsedSeconds: 0.3,
	})
	if err != nil {
		t.Fatalf("save turn: %v", err)
	}
	_ = store.Close()

	listed := captureOutput(t, func() {
		if err := runHistory(testCommand(), nil); err != nil {
			t.Errorf("runHistory returned error: %v", err)
		}
	})
	if !strings.Contains(listed, "what is a community gateway") {
		t.Errorf("archive listing missing prompt:\n%s", listed)
	}
	if !strings.Contains(listed, "ai4all/llama3") {
		t.Errorf("archive listing missing model:\n%s", listed)
	}
}

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		secs int64
		want string
	}{
		{42, "42s"},
		{300, "5m"},
		{7200, "2h0m"},
		{7380, "2h3m"},
		{90061, "1d1h"},
	}
	for _, tc := range cases {
		if got := formatUptime(tc.secs); got != tc.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tc.secs, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("short strings should pass through, got %q", got)
	}
	if got := truncate("line one\nline two", 40); got != "line one line two" {
		t.Errorf("newlines should flatten, got %q", got)
	}
	long := strings.Repeat("ab", 40)
	got := truncate(long, 10)
	if len([]rune(got)) != 10 {
		t.Errorf("truncated length = %d runes, want 10", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated string should end with ellipsis, got %q", got)
	}
}
