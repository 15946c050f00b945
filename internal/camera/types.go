package camera

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrCapabilityUnavailable means the platform offers no camera at all.
	ErrCapabilityUnavailable = errors.New("camera capability unavailable")
	// ErrAcquisitionFailed means the camera request was rejected or failed.
	ErrAcquisitionFailed = errors.New("camera acquisition failed")
	// ErrEngineStartFailed means the scanning engine could not start on a valid stream.
	ErrEngineStartFailed = errors.New("scanning engine start failed")
	// ErrTransitionInProgress is returned by Toggle while a start or stop is pending.
	ErrTransitionInProgress = errors.New("camera session transition in progress")
	// ErrClosed is returned by Toggle after Close.
	ErrClosed = errors.New("camera session manager closed")
	// ErrTrackEnded is returned when reading from a stopped track.
	ErrTrackEnded = errors.New("track ended")
)

// TrackState mirrors a media track's readyState.
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// Track is one media track of an acquired stream.
type Track interface {
	Kind() string
	ReadyState() TrackState
	// Stop releases the underlying device. It is safe to call more than once.
	Stop()
}

// FrameReader is implemented by video tracks that deliver decoded frames.
type FrameReader interface {
	// ReadFrame blocks until the next frame is available.
	ReadFrame(ctx context.Context) (image.Image, error)
}

// Stream is a live media stream handle.
type Stream interface {
	ID() string
	Tracks() []Track
}

// VideoConstraints describes the requested video input. FacingMode is a
// preference, never a requirement.
type VideoConstraints struct {
	FacingMode string
}

// Constraints is the media request handed to MediaDevices.
type Constraints struct {
	Video VideoConstraints
	Audio bool
}

// MediaDevices is the platform's camera capability.
type MediaDevices interface {
	// Supported reports whether a media-input API exists at all.
	Supported() bool
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// VideoSink is the visible element a stream is bound to.
type VideoSink interface {
	Bind(s Stream) error
	Clear()
}

// FrameSource is implemented by sinks the scanning engine can read frames from.
type FrameSource interface {
	// Frame returns the latest frame and its sequence number.
	Frame() (image.Image, uint64, bool)
	Bound() bool
}

// Highlighter is implemented by sinks that can outline the decoded region.
type Highlighter interface {
	Highlight(region image.Rectangle)
}

// Options configure a scanning engine.
type Options struct {
	HighlightScanRegion      bool
	ReturnDetailedScanResult bool
	MaxScansPerSecond        float64
	PreferredCamera          string
}

// ResultHandler receives each successful decode.
type ResultHandler func(ScanResult)

// Engine is a scanning engine attached to a video sink.
type Engine interface {
	// Start begins scanning. ctx bounds the start-up only; scanning runs
	// until Stop or Destroy.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Destroy()
}

// EngineFactory builds engines bound to a sink.
type EngineFactory interface {
	NewEngine(sink VideoSink, onResult ResultHandler, opts Options) (Engine, error)
}

// NoticeKind classifies user-facing notices.
type NoticeKind string

const (
	NoticeCameraUnsupported NoticeKind = "camera_unsupported"
	NoticeCameraFailed      NoticeKind = "camera_failed"
)

// Notice is a blocking user-facing message.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Notifier shows notices to the user.
type Notifier interface {
	Alert(n Notice)
}

// CodeAdder receives decoded text.
type CodeAdder interface {
	Add(ctx context.Context, text string) bool
}
