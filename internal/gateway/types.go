package gateway

// ChatMessage is one turn in a conversation transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body for POST /v1/chat/completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatCompletion is the buffered (non-streaming) completion response.
type ChatCompletion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

type CompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatChunk is one streamed completion frame. Error is set instead of
// Choices when the gateway loses its backend mid-reply.
type chatChunk struct {
	Choices []chunkChoice `json:"choices"`
	Error   *chunkError   `json:"error"`
}

type chunkChoice struct {
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Content string `json:"content"`
}

type chunkError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Model is one entry in the gateway catalogue.
type Model struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	OwnedBy     string `json:"owned_by"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Created     int64  `json:"created"`
}

type modelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// TokenBalance is the wallet summary the gateway proxies from the node
// daemon. When the daemon is unreachable the gateway substitutes a zero
// balance rather than failing the request.
type TokenBalance struct {
	Balance     int64 `json:"balance"`
	EarnedTotal int64 `json:"earned_total"`
	SpentTotal  int64 `json:"spent_total"`
}

// NodeStatus mirrors the node daemon status report. The gateway passes
// the daemon response through verbatim and substitutes {"error": ...}
// when the daemon is down, so every field is optional.
type NodeStatus struct {
	NodeID     string `json:"node_id,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Peers      int    `json:"peers,omitempty"`
	UptimeSecs int64  `json:"uptime_secs,omitempty"`
	Version    string `json:"version,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Online reports whether the node daemon answered the status probe.
func (s *NodeStatus) Online() bool { return s.Error == "" }

// GPUStatus is the detected GPU inventory of the gateway host.
type GPUStatus struct {
	Backend   string      `json:"backend"`
	Available bool        `json:"available"`
	Devices   []GPUDevice `json:"devices"`
}

// GPUDevice describes one detected accelerator. UtilizationPct and
// ComputeCapability are pointers because not every vendor probe can
// report them.
type GPUDevice struct {
	Index             int     `json:"index"`
	Vendor            string  `json:"vendor"`
	Name              string  `json:"name"`
	VRAMGB            int     `json:"vram_gb"`
	VRAMFreeGB        int     `json:"vram_free_gb"`
	UtilizationPct    *int    `json:"utilization_pct"`
	ComputeCapability *string `json:"compute_capability"`
}

// SystemStats is a point-in-time host utilisation sample.
type SystemStats struct {
	CPUPct     float64   `json:"cpu_pct"`
	RAMPct     float64   `json:"ram_pct"`
	RAMUsedGB  int       `json:"ram_used_gb"`
	RAMTotalGB int       `json:"ram_total_gb"`
	GPU        []GPUStat `json:"gpu"`
}

// GPUStat is the per-device slice of a system stats sample.
type GPUStat struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Vendor    string `json:"vendor"`
	UtilPct   int    `json:"util_pct"`
	VRAMUsed  int    `json:"vram_used"`
	VRAMTotal int    `json:"vram_total"`
	TempC     *int   `json:"temp_c"`
}

// StarterGrant is the gateway's answer to a starter token claim.
// Message is set on success, Reason on refusal.
type StarterGrant struct {
	Granted bool   `json:"granted"`
	Amount  int    `json:"amount"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type starterGrantRequest struct {
	SessionID string `json:"session_id"`
}

// Health is the gateway liveness report.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
