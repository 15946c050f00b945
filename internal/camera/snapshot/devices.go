// Package snapshot implements camera capability over a network camera that
// serves still images at a URL (an IP camera or a phone camera app).
package snapshot

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"qr-mac-backend/internal/camera"
)

// maxFrameBytes caps a single snapshot download.
const maxFrameBytes = 16 << 20

// Devices acquires streams from a snapshot URL.
type Devices struct {
	url          string
	client       *http.Client
	interval     time.Duration
	probeTimeout time.Duration
}

// NewDevices creates a capability for snapshotURL. An empty URL means no
// camera is available. A zero probeTimeout waits as long as the caller's context.
func NewDevices(snapshotURL string, client *http.Client, interval, probeTimeout time.Duration) *Devices {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if interval <= 0 {
		interval = 125 * time.Millisecond
	}
	return &Devices{
		url:          snapshotURL,
		client:       client,
		interval:     interval,
		probeTimeout: probeTimeout,
	}
}

// Supported reports whether a snapshot URL is configured.
func (d *Devices) Supported() bool {
	return d.url != ""
}

// GetUserMedia probes the camera and returns a stream with one video track.
// The facing mode is passed along as a hint the camera may ignore.
func (d *Devices) GetUserMedia(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if !d.Supported() {
		return nil, camera.ErrCapabilityUnavailable
	}

	target, err := d.frameURL(c.Video.FacingMode)
	if err != nil {
		return nil, err
	}

	probeCtx := ctx
	if d.probeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, d.probeTimeout)
		defer cancel()
	}

	first, err := d.fetch(probeCtx, target)
	if err != nil {
		return nil, fmt.Errorf("camera probe failed: %w", err)
	}

	track := &Track{
		devices: d,
		url:     target,
		pending: first,
		done:    make(chan struct{}),
	}
	return &Stream{id: uuid.NewString(), tracks: []camera.Track{track}}, nil
}

func (d *Devices) frameURL(facing string) (string, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return "", fmt.Errorf("invalid snapshot url %q: %w", d.url, err)
	}
	if facing != "" {
		q := u.Query()
		q.Set("facing", facing)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (d *Devices) fetch(ctx context.Context, target string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("received non-2xx status code: %d", resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return img, nil
}

// Stream is a snapshot camera stream.
type Stream struct {
	id     string
	tracks []camera.Track
}

func (s *Stream) ID() string             { return s.id }
func (s *Stream) Tracks() []camera.Track { return s.tracks }

// Track polls the snapshot URL for frames until stopped.
type Track struct {
	devices *Devices
	url     string

	mu      sync.Mutex
	pending image.Image
	stopped bool
	done    chan struct{}
}

func (t *Track) Kind() string { return "video" }

func (t *Track) ReadyState() camera.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return camera.TrackEnded
	}
	return camera.TrackLive
}

// Stop ends the track. Later reads return camera.ErrTrackEnded.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.pending = nil
	close(t.done)
}

// ReadFrame returns the probe frame first, then one fresh snapshot per interval.
func (t *Track) ReadFrame(ctx context.Context) (image.Image, error) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil, camera.ErrTrackEnded
	}
	if first := t.pending; first != nil {
		t.pending = nil
		t.mu.Unlock()
		return first, nil
	}
	t.mu.Unlock()

	timer := time.NewTimer(t.devices.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, camera.ErrTrackEnded
	case <-timer.C:
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-fetchCtx.Done():
		}
	}()

	img, err := t.devices.fetch(fetchCtx, t.url)
	if err != nil {
		if t.ReadyState() == camera.TrackEnded {
			return nil, camera.ErrTrackEnded
		}
		return nil, err
	}
	return img, nil
}
