package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"a4achat/cmd/a4a/ui"
	"a4achat/internal/config"
	"a4achat/internal/gateway"
	"a4achat/internal/logging"
	"a4achat/internal/poll"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Global keybindings (Ctrl+C, Esc)
		switch msg.Type {
		case tea.KeyCtrlC:
			m.performShutdown()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.viewMode == ModelPickerView {
				m.viewMode = ChatView
				return m, nil
			}
			if m.isLoading {
				// Abort the in-flight turn; the failure path turns the
				// placeholder into a cancellation notice.
				if m.turnCancel != nil {
					m.turnCancel()
				}
				return m, nil
			}
			m.performShutdown()
			return m, tea.Quit
		}

		// Model picker handling
		if m.viewMode == ModelPickerView {
			if msg.Type == tea.KeyEnter && m.modelList.FilterState() != list.Filtering {
				if it, ok := m.modelList.SelectedItem().(modelItem); ok {
					m.activeModel = it.id
					m.viewMode = ChatView
					m.appendAssistant(fmt.Sprintf("Active model: `%s`", it.id), false)
					return m, nil
				}
			}
			var cmd tea.Cmd
			m.modelList, cmd = m.modelList.Update(msg)
			return m, cmd
		}

		// Chat view handling
		switch msg.Type {
		case tea.KeyEnter:
			// Alt+Enter inserts a newline via the textarea
			if msg.Alt {
				break
			}
			if !m.isLoading {
				return m.handleSubmit()
			}
			return m, nil

		case tea.KeyUp:
			// History previous (if at top line)
			if m.textarea.Line() == 0 {
				if m.historyIndex > 0 {
					m.historyIndex--
					m.textarea.SetValue(m.inputHistory[m.historyIndex])
					m.textarea.CursorEnd()
				}
				return m, nil
			}

		case tea.KeyDown:
			// History next (if at bottom line)
			if m.textarea.Line() == m.textarea.LineCount()-1 {
				if m.historyIndex < len(m.inputHistory) {
					m.historyIndex++
					if m.historyIndex == len(m.inputHistory) {
						m.textarea.SetValue("")
					} else {
						m.textarea.SetValue(m.inputHistory[m.historyIndex])
						m.textarea.CursorEnd()
					}
				}
				return m, nil
			}
		}

		// Alt key bindings
		if msg.Alt && len(msg.Runes) > 0 {
			switch msg.Runes[0] {
			case 's':
				// Toggle the expanded status panel (Alt+S). The system
				// stats poller speeds up while the panel is open.
				m.showDetail = !m.showDetail
				m.applySystemCadence()
				m.layout()
				return m, nil

			case 'm':
				// Toggle mouse capture for terminal text selection (Alt+M)
				m.mouseEnabled = !m.mouseEnabled
				if m.mouseEnabled {
					return m, tea.EnableMouseCellMotion
				}
				return m, tea.DisableMouse
			}
		}

		// Handle regular key input
		if !m.isLoading {
			m.textarea, tiCmd = m.textarea.Update(msg)
		}

	case windowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

		// Rebuild the renderer for the new wrap width and re-render the
		// transcript. Cached renders key on width, so stale entries are
		// simply never hit again; Clear keeps the map from growing.
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(m.viewport.Width-2),
		)
		m.renderCache.Clear()
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case tea.WindowSizeMsg:
		// Convert to our alias and re-process
		return m.Update(windowSizeMsg(msg))

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case streamStartedMsg:
		m.tokenCh, m.errCh = msg.tokens, msg.errs
		m.phase = PhaseLoading
		return m, m.waitForToken()

	case tokenMsg:
		return m.handleToken(string(msg))

	case streamDoneMsg:
		return m.finalizeTurn()

	case streamFailedMsg:
		return m.failTurn(msg.err)

	case meterTickMsg:
		// Recompute elapsed/throughput from the shared counter. The
		// cadence stops itself once the turn is over.
		if m.isLoading && m.meter != nil {
			m.liveStats = m.meter.Snapshot()
			return m, meterTick()
		}

	case pollUpdateMsg:
		m.applyPollUpdate(poll.Update(msg))
		return m, m.waitForPoll()

	case pollClosedMsg:
		return m, nil

	case refreshBalanceMsg:
		return m, m.fetchBalance()

	case balanceRefreshedMsg:
		m.applyBalance(msg.balance, msg.err)

	case grantResultMsg:
		return m.handleGrantResult(msg)

	case modelsLoadedMsg:
		if msg.err != nil {
			logging.UIDebug("model catalogue fetch failed: %v", msg.err)
			return m, nil
		}
		m.models = msg.models
		items := make([]list.Item, 0, len(msg.models))
		for _, md := range msg.models {
			items = append(items, modelItem{id: md.ID, category: md.Category, desc: md.Description})
		}
		m.modelList.SetItems(items)
		return m, nil

	case configReloadedMsg:
		m.applyConfig((*config.Config)(msg))
		return m, m.waitForConfig()
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

// handleToken folds one streamed fragment into the placeholder message.
// The meter is the single counter both this consumer and the ticker
// read; phase flips from thinking to generating at the threshold.
func (m Model) handleToken(tok string) (tea.Model, tea.Cmd) {
	if !m.isLoading || len(m.history) == 0 {
		// Stale token after cancel/finalize; drop it and stop pumping.
		return m, nil
	}

	m.meter.Add(1)
	if m.meter.Tokens() < thinkingTokenThreshold {
		m.phase = PhaseThinking
	} else {
		m.phase = PhaseGenerating
	}

	last := len(m.history) - 1
	m.history[last].Content += tok
	m.liveStats = m.meter.Snapshot()

	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()

	return m, m.waitForToken()
}

// finalizeTurn attaches the final telemetry snapshot to the completed
// reply, persists the exchange and schedules a balance refresh.
func (m Model) finalizeTurn() (tea.Model, tea.Cmd) {
	if !m.isLoading {
		return m, nil
	}

	snap := m.meter.Snapshot()
	last := len(m.history) - 1
	m.history[last].Stats = &snap
	reply := m.history[last].Content

	m.endTurn()
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()

	logging.UI("turn finalized: %d tokens in %.1fs (%.1f tok/s)", snap.Tokens, snap.ElapsedSeconds, snap.TokensPerSecond)

	return m, tea.Batch(
		m.saveTurn(m.turnPrompt, reply, snap),
		scheduleBalanceRefresh(),
	)
}

// failTurn replaces the placeholder with a user-readable failure notice.
// No snapshot is attached to a failed turn.
func (m Model) failTurn(err error) (tea.Model, tea.Cmd) {
	if !m.isLoading {
		return m, nil
	}

	last := len(m.history) - 1
	m.history[last].Content = failureMessage(err)
	m.history[last].Failed = true

	m.endTurn()
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()

	logging.UIDebug("turn failed: %v", err)

	return m, scheduleBalanceRefresh()
}

// endTurn releases the in-flight state shared by both outcomes.
func (m *Model) endTurn() {
	if m.turnCancel != nil {
		m.turnCancel()
	}
	m.tokenCh, m.errCh, m.turnCancel = nil, nil, nil
	m.isLoading = false
	m.phase = PhaseIdle
}

// failureMessage renders an error as transcript text. RequestError
// carries the gateway's own detail; everything else falls back to the
// error string.
func failureMessage(err error) string {
	var reqErr *gateway.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("**Request failed:** %s", reqErr.Detail)
	}
	var streamErr *gateway.StreamError
	if errors.As(err, &streamErr) {
		return fmt.Sprintf("**Gateway error:** %s", streamErr.Message)
	}
	if errors.Is(err, context.Canceled) {
		return "_Request cancelled._"
	}
	return fmt.Sprintf("**Request failed:** %v", err)
}

// handleGrantResult surfaces starter grant verdicts. Automatic claims
// only speak up when tokens were actually granted; /grant always answers.
func (m Model) handleGrantResult(msg grantResultMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err != nil:
		if msg.manual {
			m.appendAssistant(fmt.Sprintf("Starter grant request failed: %v\n\nThe claim stays open; try again later.", msg.err), true)
		}
		return m, nil

	case msg.grant == nil:
		// Claim already concluded in an earlier run, nothing was sent.
		if msg.manual {
			m.appendAssistant("Starter tokens were already claimed on this machine.", false)
		}
		return m, nil

	case msg.grant.Granted:
		if !m.grantNoticeShown {
			m.grantNoticeShown = true
			notice := msg.grant.Message
			if notice == "" {
				notice = fmt.Sprintf("Starter grant: %d tokens.", msg.grant.Amount)
			}
			m.appendAssistant(notice, false)
		}
		return m, scheduleBalanceRefresh()

	default:
		if msg.manual {
			reason := msg.grant.Reason
			if reason == "" {
				reason = "refused"
			}
			m.appendAssistant(fmt.Sprintf("Starter grant not issued (%s).", reason), false)
		}
		return m, nil
	}
}

// appendAssistant adds a client-originated notice to the transcript and
// scrolls to it. Notices never become model conversation context.
func (m *Model) appendAssistant(content string, failed bool) {
	m.history = append(m.history, Message{
		Role:    "assistant",
		Content: content,
		Time:    time.Now(),
		Failed:  failed,
		Local:   true,
	})
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// applyPollUpdate stores the latest sample for one resource. A failed
// fetch marks the resource unavailable without touching the others.
func (m *Model) applyPollUpdate(u poll.Update) {
	if u.Err != nil {
		logging.PollDebug("%s unavailable: %v", u.Resource, u.Err)
	}
	switch u.Resource {
	case resourceBalance:
		bal, _ := u.Value.(*gateway.TokenBalance)
		m.applyBalance(bal, u.Err)
	case resourceNode:
		m.node, _ = u.Value.(*gateway.NodeStatus)
	case resourceGPU:
		m.gpu, _ = u.Value.(*gateway.GPUStatus)
	case resourceSystem:
		m.sysStats, _ = u.Value.(*gateway.SystemStats)
	}
}

func (m *Model) applyBalance(bal *gateway.TokenBalance, err error) {
	if err != nil {
		m.balance = nil
		return
	}
	m.balance = bal
}

// applyConfig folds a reloaded config file into the running UI: poll
// cadences move at each poller's next scheduling decision, and the
// default model changes only if the user has not picked another one.
func (m *Model) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	previous := m.cfg
	m.cfg = cfg

	m.pollers.SetInterval(resourceBalance, cfg.Poll.BalanceEvery())
	m.pollers.SetInterval(resourceNode, cfg.Poll.NodeEvery())
	m.pollers.SetInterval(resourceGPU, cfg.Poll.GPUEvery())
	m.applySystemCadence()

	if previous != nil && m.activeModel == previous.Chat.Model {
		m.activeModel = cfg.Chat.Model
	}

	logging.UI("configuration reloaded")
}

// applySystemCadence picks the system stats cadence for the current
// panel state: fast while the detail panel is open, idle otherwise.
func (m *Model) applySystemCadence() {
	if m.showDetail {
		m.pollers.SetInterval(resourceSystem, m.cfg.Poll.SystemDetailEvery())
	} else {
		m.pollers.SetInterval(resourceSystem, m.cfg.Poll.SystemEvery())
	}
}

// layout recomputes component sizes from the terminal dimensions and
// the detail panel state.
func (m *Model) layout() {
	chatWidth := ui.ChatContentWidth(m.width)
	chatHeight := ui.ChatViewportHeight(m.height)
	if m.showDetail {
		chatHeight -= detailPanelHeight
		if chatHeight < 1 {
			chatHeight = 1
		}
	}

	if !m.ready {
		m.viewport = viewport.New(chatWidth, chatHeight)
		m.ready = true
	} else {
		m.viewport.Width = chatWidth
		m.viewport.Height = chatHeight
	}

	m.textarea.SetWidth(chatWidth - 4)
	m.modelList.SetSize(m.width, m.height-ui.HeaderHeight)
}
