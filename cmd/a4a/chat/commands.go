// Package chat command handling: /commands and turn submission.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"a4achat/internal/gateway"
	"a4achat/internal/telemetry"

	tea "github.com/charmbracelet/bubbletea"
)

// handleSubmit processes the textarea content: slash commands run
// locally, anything else becomes a chat turn. A no-op when the input is
// empty; the Update loop already guarantees no turn is in flight.
func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}

	// Check for special commands
	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	// Add user message and loading placeholder to history
	m.history = append(m.history,
		Message{Role: "user", Content: input, Time: time.Now()},
		Message{Role: "assistant", Time: time.Now()},
	)

	// Append to input history
	if len(m.inputHistory) == 0 || m.inputHistory[len(m.inputHistory)-1] != input {
		m.inputHistory = append(m.inputHistory, input)
	}
	m.historyIndex = len(m.inputHistory)

	m.textarea.Reset()
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()

	// Arm the turn: one shared meter for the token consumer and the
	// ticker, a cancellable context scoped under shutdown.
	m.isLoading = true
	m.phase = PhaseSending
	m.turnPrompt = input
	m.meter = telemetry.NewMeter(m.activeModel)
	m.liveStats = m.meter.Snapshot()

	ctx, cancel := context.WithCancel(m.shutdownCtx)
	m.turnCancel = cancel

	req := gateway.ChatRequest{
		Model:       m.activeModel,
		Messages:    m.conversation(),
		Temperature: m.cfg.Chat.Temperature,
		MaxTokens:   m.cfg.Chat.MaxTokens,
	}

	return m, tea.Batch(
		m.spinner.Tick,
		meterTick(),
		startStream(ctx, m.client, req),
	)
}

// conversation collects the messages that form the model's context:
// finished exchanges plus the just-submitted prompt. Failure notices,
// client notices and the empty placeholder stay out.
func (m Model) conversation() []gateway.ChatMessage {
	msgs := make([]gateway.ChatMessage, 0, len(m.history))
	for _, h := range m.history {
		if h.Local || h.Failed || h.Content == "" {
			continue
		}
		msgs = append(msgs, gateway.ChatMessage{Role: h.Role, Content: h.Content})
	}
	return msgs
}

// handleCommand processes all /command inputs from the user.
func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := parts[0]
	m.textarea.Reset()

	switch cmd {
	case "/quit", "/exit", "/q":
		m.performShutdown()
		return m, tea.Quit

	case "/clear":
		m.history = []Message{}
		m.renderCache.Clear()
		m.viewport.SetContent("")
		return m, nil

	case "/models":
		// Re-fetch so the picker reflects the gateway's current catalogue
		m.viewMode = ModelPickerView
		return m, m.loadModels()

	case "/model":
		if len(parts) < 2 {
			m.appendAssistant(fmt.Sprintf("Active model: `%s`\n\nUse `/model <id>` to switch or `/models` to browse.", m.activeModel), false)
			return m, nil
		}
		m.activeModel = parts[1]
		m.appendAssistant(fmt.Sprintf("Active model: `%s`", m.activeModel), false)
		return m, nil

	case "/status":
		m.appendAssistant(m.buildStatusReport(), false)
		return m, nil

	case "/grant":
		return m, m.claimStarter(true)

	case "/help":
		help := `## Available Commands

| Command | Description |
|---------|-------------|
| /help | Show this help message |
| /models | Browse and pick a model |
| /model <id> | Switch model directly |
| /status | Show gateway, node and hardware status |
| /grant | Claim the starter token bonus |
| /clear | Clear the transcript |
| /quit | Exit |

### Keyboard Shortcuts

| Key | Action |
|-----|--------|
| Enter | Send message |
| Alt+Enter | Insert newline |
| Up/Down | Input history |
| Alt+S | Toggle status panel |
| Alt+M | Toggle mouse capture (text selection) |
| Esc | Cancel running turn / exit |
| Ctrl+C | Exit |
`
		m.appendAssistant(help, false)
		return m, nil

	default:
		m.appendAssistant(fmt.Sprintf("Unknown command `%s`. Try `/help`.", cmd), false)
		return m, nil
	}
}

// buildStatusReport renders the latest polled values as markdown for
// the /status command.
func (m Model) buildStatusReport() string {
	var sb strings.Builder
	sb.WriteString("## Gateway Status\n\n")
	sb.WriteString(fmt.Sprintf("- Gateway: `%s`\n", m.client.BaseURL()))
	sb.WriteString(fmt.Sprintf("- Session: `%s`\n", m.session.SessionID()))
	sb.WriteString(fmt.Sprintf("- Model: `%s`\n", m.activeModel))

	if m.balance != nil {
		sb.WriteString(fmt.Sprintf("- Tokens: **%d** (earned %d, spent %d)\n",
			m.balance.Balance, m.balance.EarnedTotal, m.balance.SpentTotal))
	} else {
		sb.WriteString("- Tokens: unavailable\n")
	}

	switch {
	case m.node == nil:
		sb.WriteString("- Node: unavailable\n")
	case !m.node.Online():
		sb.WriteString(fmt.Sprintf("- Node: offline (%s)\n", m.node.Error))
	default:
		sb.WriteString(fmt.Sprintf("- Node: online, %d peers, mode %s\n", m.node.Peers, m.node.Mode))
	}

	if m.sysStats != nil {
		sb.WriteString(fmt.Sprintf("- System: CPU %.0f%%, RAM %d/%d GB\n",
			m.sysStats.CPUPct, m.sysStats.RAMUsedGB, m.sysStats.RAMTotalGB))
	} else {
		sb.WriteString("- System: unavailable\n")
	}

	if m.gpu != nil && m.gpu.Available && len(m.gpu.Devices) > 0 {
		sb.WriteString(fmt.Sprintf("\n### GPUs (%s)\n\n", m.gpu.Backend))
		sb.WriteString("| # | Name | VRAM free | Util |\n|---|------|-----------|------|\n")
		for _, d := range m.gpu.Devices {
			util := "n/a"
			if d.UtilizationPct != nil {
				util = fmt.Sprintf("%d%%", *d.UtilizationPct)
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %d/%d GB | %s |\n",
				d.Index, d.Name, d.VRAMFreeGB, d.VRAMGB, util))
		}
	} else {
		sb.WriteString("- GPU: none detected\n")
	}

	return sb.String()
}
