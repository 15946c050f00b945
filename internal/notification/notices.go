package notification

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"qr-mac-backend/internal/camera"
)

// maxPendingNotices bounds the board; the oldest notice is dropped first.
const maxPendingNotices = 32

// Notice is a user-facing alert waiting to be shown.
type Notice struct {
	ID        string            `json:"id"`
	Kind      camera.NoticeKind `json:"kind"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NoticeBoard queues alerts until a client collects them.
type NoticeBoard struct {
	mu      sync.Mutex
	pending []Notice
}

// NewNoticeBoard creates an empty board.
func NewNoticeBoard() *NoticeBoard {
	return &NoticeBoard{}
}

// Alert posts n to the board.
func (b *NoticeBoard) Alert(n camera.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log.Printf("Notice (%s): %s", n.Kind, n.Message)
	b.pending = append(b.pending, Notice{
		ID:        uuid.NewString(),
		Kind:      n.Kind,
		Message:   n.Message,
		CreatedAt: time.Now().UTC(),
	})
	if over := len(b.pending) - maxPendingNotices; over > 0 {
		b.pending = append([]Notice(nil), b.pending[over:]...)
	}
}

// Drain returns every pending notice, oldest first, and empties the board.
func (b *NoticeBoard) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.pending
	b.pending = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

// Len returns the number of pending notices.
func (b *NoticeBoard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
