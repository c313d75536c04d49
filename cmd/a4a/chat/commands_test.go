package chat

import (
	"strings"
	"testing"
	"time"

	"a4achat/internal/gateway"

	tea "github.com/charmbracelet/bubbletea"
)

func TestSlashHelp(t *testing.T) {
	m := NewTestModel(t, deadGateway)

	m, cmd := submitPrompt(t, m, "/help")

	if cmd != nil {
		t.Error("/help is local, no command expected")
	}
	if len(m.history) != 1 {
		t.Fatalf("history length = %d, want the help notice", len(m.history))
	}
	help := m.history[0]
	if !help.Local {
		t.Error("help text must stay out of the model conversation")
	}
	for _, want := range []string{"/models", "/grant", "/status", "Alt+S"} {
		if !strings.Contains(help.Content, want) {
			t.Errorf("help text missing %q", want)
		}
	}
}

func TestSlashClear(t *testing.T) {
	m := NewTestModel(t, deadGateway, WithHistory(
		Message{Role: "user", Content: "old"},
		Message{Role: "assistant", Content: "conversation"},
	))

	m, _ = submitPrompt(t, m, "/clear")

	if len(m.history) != 0 {
		t.Errorf("history length = %d after /clear, want 0", len(m.history))
	}
}

func TestSlashModel_SwitchesDirectly(t *testing.T) {
	m := NewTestModel(t, deadGateway)

	m, _ = submitPrompt(t, m, "/model ai4all/coder")

	if m.activeModel != "ai4all/coder" {
		t.Errorf("activeModel = %q, want ai4all/coder", m.activeModel)
	}
	if len(m.history) != 1 || !strings.Contains(m.history[0].Content, "ai4all/coder") {
		t.Error("model switch should be confirmed in the transcript")
	}
}

func TestSlashModel_BareShowsCurrent(t *testing.T) {
	m := NewTestModel(t, deadGateway)

	m, _ = submitPrompt(t, m, "/model")

	if len(m.history) != 1 || !strings.Contains(m.history[0].Content, m.activeModel) {
		t.Error("/model without args should print the active model")
	}
}

func TestSlashModels_OpensPickerWithCatalogue(t *testing.T) {
	server := newStreamServer(t)
	m := NewTestModel(t, server.URL)

	m, cmd := submitPrompt(t, m, "/models")

	if m.viewMode != ModelPickerView {
		t.Fatal("/models should switch to the picker view")
	}
	if cmd == nil {
		t.Fatal("/models should re-fetch the catalogue")
	}

	msg := cmd()
	loaded, ok := msg.(modelsLoadedMsg)
	if !ok {
		t.Fatalf("catalogue fetch returned %T", msg)
	}
	if loaded.err != nil {
		t.Fatalf("catalogue fetch failed: %v", loaded.err)
	}

	m, _ = applyUpdate(t, m, loaded)
	if len(m.modelList.Items()) != 2 {
		t.Errorf("picker has %d items, want 2", len(m.modelList.Items()))
	}
}

func TestModelPicker_EnterSelects(t *testing.T) {
	server := newStreamServer(t)
	m := NewTestModel(t, server.URL, WithViewMode(ModelPickerView))

	m, _ = applyUpdate(t, m, modelsLoadedMsg{models: []gateway.Model{
		{ID: "ai4all/llama3", Category: "chat"},
		{ID: "ai4all/coder", Category: "code"},
	}})

	m, _ = applyUpdate(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.viewMode != ChatView {
		t.Error("selection should return to the chat view")
	}
	if m.activeModel != "ai4all/llama3" {
		t.Errorf("activeModel = %q, want the selected entry", m.activeModel)
	}
}

func TestModelPicker_EscReturnsWithoutSwitching(t *testing.T) {
	m := NewTestModel(t, deadGateway, WithViewMode(ModelPickerView))
	before := m.activeModel

	m, _ = applyUpdate(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	if m.viewMode != ChatView {
		t.Error("Esc should leave the picker")
	}
	if m.activeModel != before {
		t.Error("Esc must not change the model")
	}
}

func TestSlashStatus_ReportsPolledValues(t *testing.T) {
	util := 63
	m := NewTestModel(t, deadGateway)
	m.balance = &gateway.TokenBalance{Balance: 512, EarnedTotal: 600, SpentTotal: 88}
	m.node = &gateway.NodeStatus{NodeID: "n1", Mode: "full", Peers: 7}
	m.gpu = &gateway.GPUStatus{Backend: "cuda", Available: true, Devices: []gateway.GPUDevice{
		{Index: 0, Vendor: "NVIDIA", Name: "RTX 4090", VRAMGB: 24, VRAMFreeGB: 20, UtilizationPct: &util},
	}}

	m, _ = submitPrompt(t, m, "/status")

	if len(m.history) != 1 {
		t.Fatalf("history length = %d, want the status report", len(m.history))
	}
	report := m.history[0].Content
	for _, want := range []string{"**512**", "7 peers", "RTX 4090", "63%", m.session.SessionID()} {
		if !strings.Contains(report, want) {
			t.Errorf("status report missing %q:\n%s", want, report)
		}
	}
}

func TestSlashStatus_UnavailableResources(t *testing.T) {
	m := NewTestModel(t, deadGateway)

	m, _ = submitPrompt(t, m, "/status")

	report := m.history[0].Content
	for _, want := range []string{"Tokens: unavailable", "Node: unavailable", "System: unavailable"} {
		if !strings.Contains(report, want) {
			t.Errorf("status report missing %q:\n%s", want, report)
		}
	}
}

func TestSlashGrant_ManualClaim(t *testing.T) {
	server := newStreamServer(t)
	m := NewTestModel(t, server.URL)

	m, cmd := submitPrompt(t, m, "/grant")
	if cmd == nil {
		t.Fatal("/grant should issue the claim")
	}

	msg := cmd()
	result, ok := msg.(grantResultMsg)
	if !ok {
		t.Fatalf("claim returned %T", msg)
	}
	if !result.manual {
		t.Error("a typed /grant must be marked manual")
	}

	m, _ = applyUpdate(t, m, result)
	if len(m.history) != 1 || !strings.Contains(m.history[0].Content, "Welcome aboard!") {
		t.Errorf("grant verdict missing, history = %+v", m.history)
	}
}

func TestSlashQuit(t *testing.T) {
	m := NewTestModel(t, deadGateway)

	_, cmd := submitPrompt(t, m, "/quit")
	if cmd == nil {
		t.Fatal("/quit should return the quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("/quit should emit tea.QuitMsg")
	}
}

func TestUnknownCommand(t *testing.T) {
	m := NewTestModel(t, deadGateway)

	m, _ = submitPrompt(t, m, "/frobnicate now")

	if len(m.history) != 1 || !strings.Contains(m.history[0].Content, "/frobnicate") {
		t.Error("unknown commands should be reported with their name")
	}
	if !strings.Contains(m.history[0].Content, "/help") {
		t.Error("unknown command notice should point at /help")
	}
}

func TestConversation_FiltersNoise(t *testing.T) {
	now := time.Now()
	m := NewTestModel(t, deadGateway, WithHistory(
		Message{Role: "user", Content: "first question", Time: now},
		Message{Role: "assistant", Content: "first answer", Time: now},
		Message{Role: "assistant", Content: "**Request failed:** timeout", Time: now, Failed: true},
		Message{Role: "assistant", Content: "Active model: `x`", Time: now, Local: true},
		Message{Role: "user", Content: "second question", Time: now},
		Message{Role: "assistant", Time: now}, // streaming placeholder
	))

	msgs := m.conversation()

	want := []gateway.ChatMessage{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second question"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("conversation length = %d, want %d: %+v", len(msgs), len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("conversation[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}
}
