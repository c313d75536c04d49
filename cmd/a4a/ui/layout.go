// Package ui layout constants for consistent spacing and dimensions
package ui

// Layout constants for the chat screen. The vertical budget is
// header + resource bar, transcript viewport, input box, footer.
const (
	ViewportHorizontalPadding = 4

	HeaderHeight = 3
	FooterHeight = 2
	InputHeight  = 3
	VerticalGaps = 2

	MinimumTerminalWidth  = 60
	MinimumTerminalHeight = 16
)

// ChatViewportHeight returns the transcript height for a terminal height.
func ChatViewportHeight(totalHeight int) int {
	h := totalHeight - HeaderHeight - FooterHeight - InputHeight - VerticalGaps
	if h < 1 {
		h = 1
	}
	return h
}

// ChatContentWidth returns the usable transcript width for a terminal width.
func ChatContentWidth(totalWidth int) int {
	w := totalWidth - ViewportHorizontalPadding
	if w < 20 {
		w = 20
	}
	return w
}
