package console

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/charmbracelet/lipgloss"
)

// upper half block: foreground paints the top pixel, background the bottom one
const halfBlock = "▀"

// renderFrame draws f into cols x rows terminal cells, two pixel rows per
// cell. overlay, when present, covers the lower right quarter.
func renderFrame(f, overlay *media.Frame, cols, rows int) string {
	if !usable(f) || cols < 1 || rows < 1 {
		return ""
	}
	if !usable(overlay) {
		overlay = nil
	}

	var sb strings.Builder
	py := rows * 2
	for row := 0; row < rows; row++ {
		if row > 0 {
			sb.WriteByte('\n')
		}
		for col := 0; col < cols; col++ {
			top := sample(f, overlay, col, row*2, cols, py)
			bottom := sample(f, overlay, col, row*2+1, cols, py)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(top)).
				Background(lipgloss.Color(bottom)).
				Render(halfBlock))
		}
	}
	return sb.String()
}

func usable(f *media.Frame) bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) >= media.FrameSize(f.Width, f.Height)
}

// sample returns the hex colour of virtual pixel (x, y) on a w x h canvas.
func sample(f, overlay *media.Frame, x, y, w, h int) string {
	src, sx, sy, sw, sh := f, x, y, w, h
	if overlay != nil && x >= w/2 && y >= h/2 {
		src, sx, sy, sw, sh = overlay, x-w/2, y-h/2, w-w/2, h-h/2
	}
	px := min(src.Width-1, sx*src.Width/sw)
	pyy := min(src.Height-1, sy*src.Height/sh)
	r, g, b := src.At(px, pyy)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
