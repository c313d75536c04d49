// Package chat view rendering for the TUI.
package chat

import (
	"fmt"
	"strings"
	"time"

	"a4achat/cmd/a4a/ui"
	"a4achat/internal/telemetry"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	// Model picker mode
	if m.viewMode == ModelPickerView {
		hint := m.styles.Muted.Render("  Enter: select | Esc: back")
		return lipgloss.JoinVertical(lipgloss.Left,
			m.styles.Content.Render(m.modelList.View()),
			hint,
		)
	}

	header := m.renderHeader()
	chatView := m.styles.Content.Render(m.viewport.View())

	sections := []string{header, chatView}
	if m.showDetail {
		sections = append(sections, m.renderDetailPanel())
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	sections = append(sections, inputStyle.Render(m.textarea.View()), m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHistory() string {
	var sb strings.Builder

	for i, msg := range m.history {
		switch msg.Role {
		case "user":
			userStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Primary).
				MarginTop(1)
			sb.WriteString(userStyle.Render("You") + "\n")
			sb.WriteString(m.styles.UserInput.Render(msg.Content))
			sb.WriteString("\n\n")

		default: // "assistant"
			assistantStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Accent).
				MarginTop(1)
			sb.WriteString(assistantStyle.Render("ai4all") + "\n")

			// The streaming turn renders as plain text with a cursor;
			// markdown waits until the reply is complete.
			if m.isLoading && i == len(m.history)-1 {
				if msg.Content == "" {
					sb.WriteString(m.styles.Muted.Render(m.phase.String() + "..."))
				} else {
					sb.WriteString(m.styles.Body.Render(msg.Content + "▌"))
				}
				sb.WriteString("\n")
				continue
			}

			// Finalized messages are immutable, so their rendered form is
			// cached per content and wrap width.
			rendered := m.renderCache.GetOrCompute(
				ui.ComputeKey(msg.Content, m.viewport.Width),
				func() string { return m.safeRenderMarkdown(msg.Content) },
			)
			sb.WriteString(rendered)

			if msg.Stats != nil {
				sb.WriteString(m.styles.Muted.Render(statsLine(*msg.Stats)) + "\n")
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// statsLine formats the final per-turn telemetry readout.
func statsLine(s telemetry.Snapshot) string {
	return fmt.Sprintf("%d tokens | %.1f tok/s | %.1fs | %s",
		s.Tokens, s.TokensPerSecond, s.ElapsedSeconds, s.Model)
}

// safeRenderMarkdown renders markdown with panic recovery
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			// If glamour panics, return plain text
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

func (m Model) renderHeader() string {
	title := m.styles.Header.Render(" a4a ")
	version := m.styles.Badge.Render(m.version)
	model := m.styles.Muted.Render("  " + m.activeModel)

	var status string
	if m.isLoading {
		spin := m.spinner.View()
		status = lipgloss.JoinHorizontal(lipgloss.Center, spin, " ", m.styles.Badge.Render(m.phase.String()+"..."))
	} else {
		status = m.styles.Success.Render("Ready")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		" ",
		version,
		"  ",
		status,
		model,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		m.renderStatusLine(),
		m.styles.RenderDivider(m.width),
	)
}

// renderStatusLine is the always-visible one-line resource readout fed
// by the pollers. Unavailable resources show n/a instead of vanishing.
func (m Model) renderStatusLine() string {
	parts := make([]string, 0, 4)

	if m.balance != nil {
		parts = append(parts, fmt.Sprintf("Tokens %d", m.balance.Balance))
	} else {
		parts = append(parts, "Tokens n/a")
	}

	switch {
	case m.node == nil:
		parts = append(parts, "Node n/a")
	case m.node.Online():
		parts = append(parts, fmt.Sprintf("Node online (%d peers)", m.node.Peers))
	default:
		parts = append(parts, "Node offline")
	}

	if m.sysStats != nil {
		parts = append(parts, fmt.Sprintf("CPU %.0f%% RAM %.0f%%", m.sysStats.CPUPct, m.sysStats.RAMPct))
	} else {
		parts = append(parts, "Sys n/a")
	}

	if m.gpu != nil && m.gpu.Available && len(m.gpu.Devices) > 0 {
		d := m.gpu.Devices[0]
		if d.UtilizationPct != nil {
			parts = append(parts, fmt.Sprintf("GPU %d%%", *d.UtilizationPct))
		} else {
			parts = append(parts, fmt.Sprintf("GPU %d GB free", d.VRAMFreeGB))
		}
	}

	return m.styles.Footer.Render(strings.Join(parts, " | "))
}

// renderDetailPanel is the expanded status view toggled with Alt+S.
// While it is open the system stats poller runs on its fast cadence.
func (m Model) renderDetailPanel() string {
	var lines []string

	if m.balance != nil {
		lines = append(lines, fmt.Sprintf("Balance  %d tokens (earned %d, spent %d)",
			m.balance.Balance, m.balance.EarnedTotal, m.balance.SpentTotal))
	} else {
		lines = append(lines, "Balance  n/a")
	}

	switch {
	case m.node == nil:
		lines = append(lines, "Node     n/a")
	case !m.node.Online():
		lines = append(lines, fmt.Sprintf("Node     offline: %s", m.node.Error))
	default:
		lines = append(lines, fmt.Sprintf("Node     %s | mode %s | %d peers | up %s",
			m.node.NodeID, m.node.Mode, m.node.Peers, (time.Duration(m.node.UptimeSecs)*time.Second).String()))
	}

	if m.sysStats != nil {
		lines = append(lines, fmt.Sprintf("System   CPU %.0f%% | RAM %d/%d GB (%.0f%%)",
			m.sysStats.CPUPct, m.sysStats.RAMUsedGB, m.sysStats.RAMTotalGB, m.sysStats.RAMPct))
		for _, g := range m.sysStats.GPU {
			temp := ""
			if g.TempC != nil {
				temp = fmt.Sprintf(" | %d C", *g.TempC)
			}
			lines = append(lines, fmt.Sprintf("GPU %d    %s | util %d%% | VRAM %d/%d MiB%s",
				g.Index, g.Name, g.UtilPct, g.VRAMUsed, g.VRAMTotal, temp))
		}
	} else {
		lines = append(lines, "System   n/a")
	}

	if m.sysStats == nil || len(m.sysStats.GPU) == 0 {
		if m.gpu != nil && m.gpu.Available {
			for _, d := range m.gpu.Devices {
				lines = append(lines, fmt.Sprintf("GPU %d    %s %s | %d/%d GB free",
					d.Index, d.Vendor, d.Name, d.VRAMFreeGB, d.VRAMGB))
			}
		} else {
			lines = append(lines, "GPU      none detected")
		}
	}

	panel := m.styles.Panel.
		Width(m.viewport.Width).
		Height(detailPanelHeight - 2)
	return panel.Render(strings.Join(lines, "\n"))
}

func (m Model) renderFooter() string {
	// Live throughput while a turn streams
	liveIndicator := ""
	if m.isLoading {
		liveIndicator = fmt.Sprintf("%d tok | %.1f tok/s | %.1fs | ",
			m.liveStats.Tokens, m.liveStats.TokensPerSecond, m.liveStats.ElapsedSeconds)
	}

	// Mouse mode indicator
	mouseIndicator := ""
	if !m.mouseEnabled {
		mouseIndicator = "[SELECT] | "
	}

	hotkeys := "Enter: send | Alt+S: stats | /help"
	if m.isLoading {
		hotkeys = "Esc: cancel | " + hotkeys
	}

	timestamp := time.Now().Format("15:04")
	help := m.styles.Muted.Render(fmt.Sprintf("%s%s%s | %s",
		liveIndicator, mouseIndicator, hotkeys, timestamp))
	return lipgloss.NewStyle().
		MarginTop(1).
		Render(help)
}
