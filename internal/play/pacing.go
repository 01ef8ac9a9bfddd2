package play

import (
	"math"
	"time"

	"github.com/audiolibrelab/homebooth/internal/media"
)

// TargetFrame is the index of the frame due after elapsed at fps.
func TargetFrame(elapsed time.Duration, fps float64) int {
	if elapsed < 0 {
		return 0
	}
	return int(math.Floor(elapsed.Seconds() * fps))
}

// dueFrame returns the frame that should be on screen after elapsed.
// A decoder more than one frame ahead of the clock returns held instead of
// decoding; one lagging by more than skip frames seeks forward first.
func dueFrame(dec media.Decoder, elapsed time.Duration, fps float64, skip int, held *media.Frame) (*media.Frame, error) {
	target := TargetFrame(elapsed, fps)
	pos := dec.Position()

	if target < pos-1 {
		return held, nil
	}

	if target > pos+skip {
		if err := dec.Seek(target); err != nil {
			return nil, err
		}
	}

	return dec.Next()
}
