package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/audiolibrelab/homebooth/internal/process"
)

// Decoder yields the frames of one file in order.
type Decoder interface {
	FrameRate() float64
	// Position is the index of the frame the next call to Next returns.
	Position() int
	// Next returns io.EOF at end of stream and ErrDecodeStall when no frame
	// arrives within the read timeout.
	Next() (*Frame, error)
	// Seek repositions so that the next frame returned has the given index.
	Seek(frame int) error
	Close() error
}

// Opener opens decoders for playback.
type Opener interface {
	Open(path string) (Decoder, error)
}

// FFmpegOpener decodes through an ffmpeg child process emitting rawvideo on stdout.
type FFmpegOpener struct {
	Runner           process.Runner
	Validator        *Validator
	FFmpeg           string
	Width            int
	Height           int
	DefaultFrameRate float64
	ReadTimeout      time.Duration
}

func (o *FFmpegOpener) Open(path string) (Decoder, error) {
	fps := o.Validator.FrameRate(path, o.DefaultFrameRate)

	d := &ffmpegDecoder{
		opener: o,
		path:   path,
		fps:    fps,
	}
	if err := d.launch(0); err != nil {
		return nil, err
	}

	slog.Debug("Decoder opened", "path", path, "fps", fps)
	return d, nil
}

type frameResult struct {
	frame *Frame
	err   error
}

type ffmpegDecoder struct {
	opener *FFmpegOpener
	path   string
	fps    float64
	pos    int

	handle process.Handle
	frames chan frameResult
	stop   chan struct{}
}

func (d *ffmpegDecoder) launch(from int) error {
	o := d.opener
	args := []string{"-v", "error", "-nostdin"}
	if from > 0 {
		args = append(args, "-ss", strconv.FormatFloat(float64(from)/d.fps, 'f', 3, 64))
	}
	args = append(args,
		"-i", d.path,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", o.Width, o.Height),
		"-pix_fmt", "rgb24",
		"-f", "rawvideo",
		"-",
	)

	h, err := o.Runner.Start(process.Spec{
		Name:      o.FFmpeg,
		Args:      args,
		RawStdout: true,
		Label:     "decoder",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}

	d.handle = h
	d.pos = from
	d.frames = make(chan frameResult, 2)
	d.stop = make(chan struct{})
	go readFrames(h.Stdout(), o.Width, o.Height, from, d.frames, d.stop)
	return nil
}

func readFrames(r io.Reader, width, height, first int, out chan<- frameResult, stop <-chan struct{}) {
	size := FrameSize(width, height)
	index := first
	for {
		buf := make([]byte, size)
		_, err := io.ReadFull(r, buf)

		res := frameResult{frame: &Frame{Index: index, Width: width, Height: height, Pix: buf}}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			res = frameResult{err: err}
		}

		select {
		case out <- res:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
		index++
	}
}

func (d *ffmpegDecoder) FrameRate() float64 { return d.fps }

func (d *ffmpegDecoder) Position() int { return d.pos }

func (d *ffmpegDecoder) Next() (*Frame, error) {
	timer := time.NewTimer(d.opener.ReadTimeout)
	defer timer.Stop()

	select {
	case res := <-d.frames:
		if res.err != nil {
			return nil, res.err
		}
		d.pos = res.frame.Index + 1
		return res.frame, nil
	case <-timer.C:
		return nil, ErrDecodeStall
	}
}

func (d *ffmpegDecoder) Seek(frame int) error {
	if frame == d.pos {
		return nil
	}
	d.shutdown()
	return d.launch(frame)
}

func (d *ffmpegDecoder) Close() error {
	d.shutdown()
	return nil
}

func (d *ffmpegDecoder) shutdown() {
	if d.handle == nil {
		return
	}
	close(d.stop)
	if out := d.handle.Stdout(); out != nil {
		out.Close()
	}
	_ = d.handle.Terminate(time.Second)
	d.handle = nil
}
