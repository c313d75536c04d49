package chat

import (
	"context"
	"sync"
	"time"

	"a4achat/cmd/a4a/ui"
	"a4achat/internal/config"
	"a4achat/internal/gateway"
	"a4achat/internal/history"
	"a4achat/internal/poll"
	"a4achat/internal/session"
	"a4achat/internal/telemetry"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	// meterTickEvery is the cadence of throughput recomputation while a
	// turn is streaming.
	meterTickEvery = 200 * time.Millisecond

	// thinkingTokenThreshold is the token count below which a streaming
	// turn still counts as "thinking" rather than "generating".
	thinkingTokenThreshold = 3

	// balanceRefreshDelay is how long after a turn or grant concludes the
	// balance readout is refreshed. The gateway debits asynchronously.
	balanceRefreshDelay = 1500 * time.Millisecond

	// detailPanelHeight is the rendered height of the expanded status
	// panel, border included.
	detailPanelHeight = 8
)

// Poller resource names. The pollUpdateMsg handler switches on these.
const (
	resourceBalance = "balance"
	resourceNode    = "node"
	resourceGPU     = "gpu"
	resourceSystem  = "system"
)

// ViewMode determines which component is focused/active
type ViewMode int

const (
	ChatView ViewMode = iota
	ModelPickerView
)

// TurnPhase tracks where the in-flight turn is in its lifecycle.
// Idle means no turn is active; a turn moves through Sending, Loading,
// Thinking (fewer than thinkingTokenThreshold tokens received) and
// Generating before finalizing back to Idle.
type TurnPhase int

const (
	PhaseIdle TurnPhase = iota
	PhaseSending
	PhaseLoading
	PhaseThinking
	PhaseGenerating
)

// String returns the display name for each phase
func (p TurnPhase) String() string {
	names := []string{"Idle", "Sending", "Loading", "Thinking", "Generating"}
	if int(p) < len(names) {
		return names[p]
	}
	return "Unknown"
}

// modelItem is a list item for the model picker
type modelItem struct {
	id, category, desc string
}

func (i modelItem) Title() string       { return i.id }
func (i modelItem) Description() string { return "[" + i.category + "] " + i.desc }
func (i modelItem) FilterValue() string { return i.id + " " + i.category + " " + i.desc }

// Message represents a single message in the chat history
type Message struct {
	Role    string // "user" or "assistant"
	Content string
	Time    time.Time
	Stats   *telemetry.Snapshot // set when an assistant turn finalized
	Failed  bool                // true when Content is a failure notice
	Local   bool                // client-originated notice, kept out of the model conversation
}

// Options carries the initialized backend services into New.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Client     *gateway.Client
	Session    *session.Manager
	History    *history.Store // nil disables persistence
	Version    string
}

// Model is the main model for the interactive chat interface
type Model struct {
	// UI Components
	textarea    textarea.Model
	viewport    viewport.Model
	spinner     spinner.Model
	modelList   list.Model
	styles      ui.Styles
	renderer    *glamour.TermRenderer
	renderCache *ui.RenderCache

	viewMode ViewMode

	// State
	history    []Message
	isLoading  bool
	phase      TurnPhase
	width      int
	height     int
	ready      bool
	showDetail bool
	version    string

	// Backend
	cfg         *config.Config
	cfgPath     string
	client      *gateway.Client
	session     *session.Manager
	store       *history.Store
	pollers     *poll.Set
	watcher     *config.Watcher
	activeModel string

	// Model catalogue
	models []gateway.Model

	// Active turn. tokenCh/errCh are the stream channels for the turn in
	// flight; turnCancel aborts it. turnPrompt is kept for persistence.
	tokenCh    <-chan string
	errCh      <-chan error
	turnCancel context.CancelFunc
	turnPrompt string
	meter      *telemetry.Meter
	liveStats  telemetry.Snapshot

	// Latest polled resource values. nil means unavailable.
	balance  *gateway.TokenBalance
	node     *gateway.NodeStatus
	gpu      *gateway.GPUStatus
	sysStats *gateway.SystemStats

	// One-time grant notice already shown this run
	grantNoticeShown bool

	// Input History
	inputHistory []string
	historyIndex int

	// Mouse capture toggle (Alt+M to toggle for text selection)
	mouseEnabled bool

	// Shutdown coordination
	shutdownOnce   *sync.Once         // pointer so Model copies share the same Once
	shutdownCtx    context.Context    // root context for all background operations
	shutdownCancel context.CancelFunc // cancels shutdownCtx on quit
}

// Messages for tea updates
type (
	// streamStartedMsg carries the channels of the turn just opened.
	streamStartedMsg struct {
		tokens <-chan string
		errs   <-chan error
	}

	// tokenMsg is one streamed content fragment.
	tokenMsg string

	// streamDoneMsg signals the token stream finished cleanly.
	streamDoneMsg struct{}

	// streamFailedMsg signals the turn failed; err becomes the placeholder text.
	streamFailedMsg struct{ err error }

	// meterTickMsg recomputes throughput while a turn is active.
	meterTickMsg time.Time

	// pollUpdateMsg is one poller sample from the updates pump.
	pollUpdateMsg poll.Update

	// pollClosedMsg signals the poller set shut down.
	pollClosedMsg struct{}

	// balanceRefreshedMsg is a directly fetched balance, outside the pollers.
	balanceRefreshedMsg struct {
		balance *gateway.TokenBalance
		err     error
	}

	// refreshBalanceMsg triggers a direct balance fetch.
	refreshBalanceMsg struct{}

	// grantResultMsg is the outcome of a starter grant claim.
	// manual marks claims typed as /grant, which always report a verdict.
	grantResultMsg struct {
		grant  *gateway.StarterGrant
		err    error
		manual bool
	}

	// modelsLoadedMsg carries the gateway's model catalogue.
	modelsLoadedMsg struct {
		models []gateway.Model
		err    error
	}

	// configReloadedMsg carries a config re-parsed by the file watcher.
	configReloadedMsg *config.Config

	windowSizeMsg tea.WindowSizeMsg
)
