// Package chat provides the interactive TUI chat client for the ai4all
// gateway. The package is split across multiple files:
//   - model_types.go: Model, enums, tea message types
//   - model.go: construction, Init, pumps, shutdown (this file)
//   - model_update.go: the Update loop and turn state machine
//   - commands.go: /command handling and turn submission
//   - view.go: rendering functions
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"a4achat/cmd/a4a/ui"
	"a4achat/internal/config"
	"a4achat/internal/gateway"
	"a4achat/internal/history"
	"a4achat/internal/logging"
	"a4achat/internal/poll"
	"a4achat/internal/telemetry"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
)

// New assembles the chat model around the initialized backend services.
// Pollers and the config watcher are created here but only start ticking
// once Init runs inside the bubbletea program.
func New(opts Options) (Model, error) {
	ta := textarea.New()
	ta.Placeholder = "Ask the community models anything... (Enter to send, Alt+Enter for newline)"
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := ui.DefaultStyles()
	sp.Style = styles.Spinner

	picker := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	picker.Title = "Community Models"
	picker.SetShowStatusBar(false)

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		textarea:       ta,
		spinner:        sp,
		modelList:      picker,
		styles:         styles,
		renderCache:    ui.NewRenderCache(),
		viewMode:       ChatView,
		history:        []Message{},
		phase:          PhaseIdle,
		version:        opts.Version,
		cfg:            opts.Config,
		cfgPath:        opts.ConfigPath,
		client:         opts.Client,
		session:        opts.Session,
		store:          opts.History,
		activeModel:    opts.Config.Chat.Model,
		inputHistory:   []string{},
		mouseEnabled:   true,
		shutdownOnce:   &sync.Once{},
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	pollers, err := newPollers(opts.Client, opts.Config.Poll)
	if err != nil {
		cancel()
		return Model{}, fmt.Errorf("register pollers: %w", err)
	}
	m.pollers = pollers

	// The watcher is optional: without it the TUI simply has no live
	// config reload.
	watcher, err := config.NewWatcher(opts.ConfigPath)
	if err != nil {
		logging.UIDebug("config watcher unavailable: %v", err)
	} else {
		m.watcher = watcher
	}

	return m, nil
}

// newPollers registers the four status resources with their configured
// cadences. Fetch closures return the typed values the update handler
// asserts back out of poll.Update.
func newPollers(client *gateway.Client, cadence config.PollConfig) (*poll.Set, error) {
	set := poll.NewSet()

	registrations := []struct {
		name  string
		every time.Duration
		fetch poll.Fetch
	}{
		{resourceBalance, cadence.BalanceEvery(), func(ctx context.Context) (any, error) {
			return client.Balance(ctx)
		}},
		{resourceNode, cadence.NodeEvery(), func(ctx context.Context) (any, error) {
			return client.NodeStatus(ctx)
		}},
		{resourceGPU, cadence.GPUEvery(), func(ctx context.Context) (any, error) {
			return client.GPUStatus(ctx)
		}},
		{resourceSystem, cadence.SystemEvery(), func(ctx context.Context) (any, error) {
			return client.SystemStats(ctx)
		}},
	}

	for _, r := range registrations {
		if err := set.Add(r.name, r.every, r.fetch); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Init starts the background machinery: pollers, config watcher, the
// model catalogue fetch and the automatic starter grant claim.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textarea.Blink,
		m.spinner.Tick,
		tea.EnableMouseCellMotion,
		m.startBackground(),
		m.waitForPoll(),
		m.loadModels(),
		m.claimStarter(false),
	}
	if m.watcher != nil {
		cmds = append(cmds, m.waitForConfig())
	}
	return tea.Batch(cmds...)
}

// startBackground launches the pollers and the config watcher on the
// shutdown context so Shutdown tears both down.
func (m Model) startBackground() tea.Cmd {
	return func() tea.Msg {
		if err := m.pollers.Start(m.shutdownCtx); err != nil {
			logging.PollWarn("poller start: %v", err)
		}
		if m.watcher != nil {
			if err := m.watcher.Start(m.shutdownCtx); err != nil {
				logging.UIDebug("config watcher start: %v", err)
			}
		}
		return nil
	}
}

// Shutdown gracefully stops all background goroutines and releases
// resources. Safe to call multiple times. MUST be called before tea.Quit
// to prevent goroutine leaks.
func (m *Model) Shutdown() {
	m.shutdownOnce.Do(func() {
		// Cancel all background operations via root context
		if m.shutdownCancel != nil {
			m.shutdownCancel()
		}

		// Abort a turn still in flight
		if m.turnCancel != nil {
			m.turnCancel()
		}

		// Stop waits for the per-resource goroutines and closes updates
		if m.pollers != nil {
			m.pollers.Stop()
		}

		if m.watcher != nil {
			m.watcher.Stop()
		}

		if m.store != nil {
			m.store.Close()
		}
	})
}

// performShutdown is a value-receiver wrapper for Shutdown() that can be
// called from Update(). Safe because Shutdown synchronizes on a shared
// sync.Once pointer.
func (m Model) performShutdown() {
	modelPtr := &m
	modelPtr.Shutdown()
}

// waitForToken pumps the next stream event into the update loop. The
// gateway closes the token channel before the error channel, so after
// the tokens drain a single receive on errs distinguishes a clean finish
// from a failure without blocking.
func (m Model) waitForToken() tea.Cmd {
	tokens, errs := m.tokenCh, m.errCh
	return func() tea.Msg {
		tok, ok := <-tokens
		if ok {
			return tokenMsg(tok)
		}
		if err := <-errs; err != nil {
			return streamFailedMsg{err: err}
		}
		return streamDoneMsg{}
	}
}

// waitForPoll pumps the next poller sample into the update loop.
func (m Model) waitForPoll() tea.Cmd {
	updates := m.pollers.Updates()
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return pollClosedMsg{}
		}
		return pollUpdateMsg(u)
	}
}

// waitForConfig pumps re-parsed config files into the update loop.
func (m Model) waitForConfig() tea.Cmd {
	updates := m.watcher.Updates()
	return func() tea.Msg {
		cfg, ok := <-updates
		if !ok {
			return nil
		}
		return configReloadedMsg(cfg)
	}
}

// meterTick drives the throughput readout while a turn is active. The
// handler re-issues it only while loading, so the cadence dies with the
// turn and restarts on the next submit.
func meterTick() tea.Cmd {
	return tea.Tick(meterTickEvery, func(t time.Time) tea.Msg {
		return meterTickMsg(t)
	})
}

// startStream opens the streaming request for a turn.
func startStream(ctx context.Context, client *gateway.Client, req gateway.ChatRequest) tea.Cmd {
	return func() tea.Msg {
		tokens, errs := client.ChatStream(ctx, req)
		return streamStartedMsg{tokens: tokens, errs: errs}
	}
}

// loadModels fetches the model catalogue once at startup.
func (m Model) loadModels() tea.Cmd {
	client, ctx := m.client, m.shutdownCtx
	return func() tea.Msg {
		models, err := client.ListModels(ctx)
		return modelsLoadedMsg{models: models, err: err}
	}
}

// claimStarter runs the claim-once grant handshake. With manual=false
// (startup) only a successful grant surfaces in the transcript; with
// manual=true (/grant) every verdict does.
func (m Model) claimStarter(manual bool) tea.Cmd {
	mgr, ctx := m.session, m.shutdownCtx
	return func() tea.Msg {
		grant, err := mgr.ClaimStarterOnce(ctx)
		return grantResultMsg{grant: grant, err: err, manual: manual}
	}
}

// scheduleBalanceRefresh re-reads the balance shortly after an event
// that changes it (finished turn, starter grant).
func scheduleBalanceRefresh() tea.Cmd {
	return tea.Tick(balanceRefreshDelay, func(time.Time) tea.Msg {
		return refreshBalanceMsg{}
	})
}

// fetchBalance reads the balance directly, outside the poller cadence.
func (m Model) fetchBalance() tea.Cmd {
	client, ctx := m.client, m.shutdownCtx
	return func() tea.Msg {
		bal, err := client.Balance(ctx)
		return balanceRefreshedMsg{balance: bal, err: err}
	}
}

// saveTurn persists a finalized exchange. Persistence failures are
// logged, never surfaced; the chat must not depend on the local store.
func (m Model) saveTurn(prompt, reply string, snap telemetry.Snapshot) tea.Cmd {
	store := m.store
	if store == nil {
		return nil
	}
	sessionID := m.session.SessionID()
	return func() tea.Msg {
		turn := history.Turn{
			SessionID:       sessionID,
			Model:           snap.Model,
			Prompt:          prompt,
			Reply:           reply,
			Tokens:          snap.Tokens,
			TokensPerSecond: snap.TokensPerSecond,
			ElapsedSeconds:  snap.ElapsedSeconds,
		}
		if err := store.SaveTurn(turn); err != nil {
			logging.HistoryError("save turn: %v", err)
		}
		return nil
	}
}
