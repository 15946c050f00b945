package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"sync"
	"time"
)

var highlightColor = color.RGBA{R: 0x00, G: 0xc8, B: 0x53, A: 0xff}

// highlightTTL is how long an outlined region stays on the preview.
const highlightTTL = time.Second

// PreviewSink is the visible video sink. Binding a stream starts copying
// frames from its first readable video track; Clear drops the binding and
// the last frame.
type PreviewSink struct {
	mu          sync.RWMutex
	stream      Stream
	frame       image.Image
	seq         uint64
	region      image.Rectangle
	highlighted time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewPreviewSink creates an unbound sink.
func NewPreviewSink() *PreviewSink {
	return &PreviewSink{}
}

// Bind attaches the sink to stream, replacing any previous binding.
func (p *PreviewSink) Bind(s Stream) error {
	if s == nil {
		return errors.New("cannot bind a nil stream")
	}
	var reader FrameReader
	for _, t := range s.Tracks() {
		if t == nil || t.Kind() != "video" {
			continue
		}
		if r, ok := t.(FrameReader); ok {
			reader = r
			break
		}
	}
	if reader == nil {
		return fmt.Errorf("stream %s has no readable video track", s.ID())
	}

	p.Clear()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.stream = s
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.pump(ctx, reader, done)
	return nil
}

func (p *PreviewSink) pump(ctx context.Context, reader FrameReader, done chan struct{}) {
	defer close(done)
	for {
		frame, err := reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrTrackEnded) {
				log.Printf("Preview frame read failed: %v", err)
				// Keep the stream bound; the camera may recover.
				select {
				case <-ctx.Done():
					return
				case <-time.After(250 * time.Millisecond):
				}
				continue
			}
			return
		}

		p.mu.Lock()
		if ctx.Err() == nil {
			p.frame = frame
			p.seq++
		}
		p.mu.Unlock()
	}
}

// Clear detaches the stream and waits for the frame pump to exit.
func (p *PreviewSink) Clear() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.stream = nil
	p.frame = nil
	p.region = image.Rectangle{}
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Bound reports whether a stream is attached.
func (p *PreviewSink) Bound() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stream != nil
}

// Frame returns the latest frame and its sequence number.
func (p *PreviewSink) Frame() (image.Image, uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.frame == nil {
		return nil, p.seq, false
	}
	return p.frame, p.seq, true
}

// Highlight outlines region on the preview for a short while.
func (p *PreviewSink) Highlight(region image.Rectangle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.region = region
	p.highlighted = time.Now()
}

// Preview returns the latest frame with any recent scan region outlined.
func (p *PreviewSink) Preview() (image.Image, bool) {
	p.mu.RLock()
	frame, region, at := p.frame, p.region, p.highlighted
	p.mu.RUnlock()

	if frame == nil {
		return nil, false
	}
	if region.Empty() || time.Since(at) > highlightTTL {
		return frame, true
	}

	out := image.NewRGBA(frame.Bounds())
	draw.Draw(out, out.Bounds(), frame, frame.Bounds().Min, draw.Src)
	outline(out, region.Intersect(out.Bounds()), 3)
	return out, true
}

func outline(img *image.RGBA, r image.Rectangle, width int) {
	if r.Empty() {
		return
	}
	src := &image.Uniform{C: highlightColor}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
