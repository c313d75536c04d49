package main

import (
	"a4achat/internal/gateway"
	"a4achat/internal/history"
	"a4achat/internal/logging"
	"a4achat/internal/telemetry"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askModel       string
	askTemperature float64
	askNoSave      bool
)

// askCmd streams a single completion to stdout
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the community models a single question",
	Long: `Streams one chat completion to stdout, token by token, using the
same frame decoder as the interactive chat. The closing telemetry line
(tokens, tokens/sec, elapsed, model) goes to stderr so piped output
stays clean.

Example:
  a4a ask "why is the sky blue" -m ai4all/llama3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	model := askModel
	if model == "" {
		model = a.cfg.Chat.Model
	}
	temperature := askTemperature
	if temperature < 0 {
		temperature = a.cfg.Chat.Temperature
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Ctrl+C aborts the stream; cancelling the context closes the
	// response body and the decoder drains out.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Debug("Sending question",
		zap.String("model", model),
		zap.String("gateway", a.client.BaseURL()))

	meter := telemetry.NewMeter(model)
	tokens, errs := a.client.ChatStream(ctx, gateway.ChatRequest{
		Model:       model,
		Messages:    []gateway.ChatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   a.cfg.Chat.MaxTokens,
	})

	var reply strings.Builder
	for tok := range tokens {
		meter.Add(1)
		reply.WriteString(tok)
		fmt.Print(tok)
	}
	fmt.Println()

	if err := <-errs; err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}

	snap := meter.Snapshot()
	fmt.Fprintf(os.Stderr, "%d tokens | %.1f tok/s | %.1fs | %s\n",
		snap.Tokens, snap.TokensPerSecond, snap.ElapsedSeconds, snap.Model)

	if !askNoSave {
		saveAskTurn(a, prompt, reply.String(), snap)
	}
	return nil
}

// saveAskTurn archives the exchange like the interactive chat does.
// Best effort: a broken local store must not fail a delivered reply.
func saveAskTurn(a *app, prompt, reply string, snap telemetry.Snapshot) {
	store, err := history.Open(a.historyDBPath())
	if err != nil {
		logging.HistoryError("open store: %v", err)
		return
	}
	defer store.Close()

	err = store.SaveTurn(history.Turn{
		SessionID:       a.session.SessionID(),
		Model:           snap.Model,
		Prompt:          prompt,
		Reply:           reply,
		Tokens:          snap.Tokens,
		TokensPerSecond: snap.TokensPerSecond,
		ElapsedSeconds:  snap.ElapsedSeconds,
	})
	if err != nil {
		logging.HistoryError("save turn: %v", err)
	}
}
