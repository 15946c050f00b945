package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"qr-mac-backend/internal/camera"
	"qr-mac-backend/internal/notification"
	"qr-mac-backend/internal/render"
	"qr-mac-backend/internal/store"
)

// Deps lists the collaborators the API handlers need.
type Deps struct {
	Codes   *store.CodeStore
	List    *render.ListRenderer
	Cart    *render.Cart
	Scanner *camera.Manager
	Preview *camera.PreviewSink
	Notices *notification.NoticeBoard
	DB      *gorm.DB
	Webpush *webpush.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	codes   *store.CodeStore
	list    *render.ListRenderer
	cart    *render.Cart
	scanner *camera.Manager
	preview *camera.PreviewSink
	notices *notification.NoticeBoard
	db      *gorm.DB
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		codes:   d.Codes,
		list:    d.List,
		cart:    d.Cart,
		scanner: d.Scanner,
		preview: d.Preview,
		notices: d.Notices,
		db:      d.DB,
		webpush: d.Webpush,
	}
}
