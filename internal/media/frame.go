package media

// Frame is one decoded picture in packed RGB24.
type Frame struct {
	Index  int
	Width  int
	Height int
	Pix    []byte
}

// FrameSize is the byte length of a packed RGB24 frame.
func FrameSize(width, height int) int {
	return width * height * 3
}

// Mirror returns a horizontally flipped copy of f.
func (f *Frame) Mirror() *Frame {
	out := &Frame{
		Index:  f.Index,
		Width:  f.Width,
		Height: f.Height,
		Pix:    make([]byte, len(f.Pix)),
	}

	stride := f.Width * 3
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*stride : (y+1)*stride]
		dst := out.Pix[y*stride : (y+1)*stride]
		for x := 0; x < f.Width; x++ {
			copy(dst[(f.Width-1-x)*3:(f.Width-x)*3], row[x*3:(x+1)*3])
		}
	}
	return out
}

// At returns the RGB value of the pixel at (x, y).
func (f *Frame) At(x, y int) (r, g, b byte) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}
