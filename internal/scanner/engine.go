// Package scanner decodes QR symbols from the frames of a camera preview.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"golang.org/x/time/rate"

	"qr-mac-backend/internal/camera"
)

var (
	errDestroyed = errors.New("scanner destroyed")
	errNotBound  = errors.New("video sink has no stream bound")
)

// Factory builds Engines. It satisfies camera.EngineFactory.
type Factory struct{}

// NewEngine attaches an engine to sink, which must also be a camera.FrameSource.
func (Factory) NewEngine(sink camera.VideoSink, onResult camera.ResultHandler, opts camera.Options) (camera.Engine, error) {
	return New(sink, onResult, opts)
}

// Engine reads the latest frame of its sink at most MaxScansPerSecond times a
// second and reports every decoded QR symbol.
type Engine struct {
	source      camera.FrameSource
	highlighter camera.Highlighter
	onResult    camera.ResultHandler
	opts        camera.Options
	reader      gozxing.Reader

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	destroyed bool
}

// New creates a stopped engine.
func New(sink camera.VideoSink, onResult camera.ResultHandler, opts camera.Options) (*Engine, error) {
	source, ok := sink.(camera.FrameSource)
	if !ok {
		return nil, fmt.Errorf("video sink %T does not expose frames", sink)
	}
	if onResult == nil {
		return nil, errors.New("result handler is required")
	}
	if opts.MaxScansPerSecond <= 0 {
		opts.MaxScansPerSecond = 8
	}

	e := &Engine{
		source:   source,
		onResult: onResult,
		opts:     opts,
		reader:   qrcode.NewQRCodeReader(),
	}
	if opts.HighlightScanRegion {
		e.highlighter, _ = sink.(camera.Highlighter)
	}
	return e, nil
}

// Start launches the scan loop. Starting a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return errDestroyed
	}
	if e.cancel != nil {
		return nil
	}
	if !e.source.Bound() {
		return errNotBound
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(loopCtx, e.done)
	return nil
}

// Stop ends the scan loop and waits for it to exit.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy stops the engine for good.
func (e *Engine) Destroy() {
	_ = e.Stop(context.Background())
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
}

func (e *Engine) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	limiter := rate.NewLimiter(rate.Limit(e.opts.MaxScansPerSecond), 1)
	var lastSeq uint64
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		frame, seq, ok := e.source.Frame()
		if !ok || seq == lastSeq {
			continue
		}
		lastSeq = seq

		result, err := e.decode(frame)
		if err != nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		e.report(result)
	}
}

func (e *Engine) decode(frame image.Image) (*gozxing.Result, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return nil, err
	}
	defer e.reader.Reset()
	return e.reader.Decode(bmp, nil)
}

func (e *Engine) report(result *gozxing.Result) {
	text := result.GetText()
	if text == "" {
		return
	}

	corners := cornerPoints(result.GetResultPoints())
	if e.highlighter != nil && len(corners) > 0 {
		e.highlighter.Highlight(bounds(corners))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Scan result handler panicked: %v", r)
		}
	}()
	if e.opts.ReturnDetailedScanResult {
		e.onResult(camera.DetailedResult{Data: text, CornerPoints: corners})
	} else {
		e.onResult(camera.PlainText(text))
	}
}

func cornerPoints(points []gozxing.ResultPoint) []image.Point {
	out := make([]image.Point, 0, len(points))
	for _, p := range points {
		if p == nil {
			continue
		}
		out = append(out, image.Pt(int(math.Round(p.GetX())), int(math.Round(p.GetY()))))
	}
	return out
}

// bounds returns the rectangle enclosing pts, padded so finder pattern
// centres end up inside the outline.
func bounds(pts []image.Point) image.Rectangle {
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	pad := max(r.Dx(), r.Dy()) / 6
	return r.Inset(-pad)
}
