package camera

import "image"

// ScanResult is what a scanning engine reports: either PlainText or a
// DetailedResult. Use Unwrap to get the decoded text.
type ScanResult interface {
	scanResult()
}

// PlainText is a bare decoded payload.
type PlainText string

// DetailedResult is a decoded payload with the symbol's corner points.
type DetailedResult struct {
	Data         string
	CornerPoints []image.Point
}

func (PlainText) scanResult()      {}
func (DetailedResult) scanResult() {}

// Unwrap extracts the decoded text. It returns "" for a nil result.
func Unwrap(r ScanResult) string {
	switch v := r.(type) {
	case PlainText:
		return string(v)
	case DetailedResult:
		return v.Data
	case *DetailedResult:
		if v == nil {
			return ""
		}
		return v.Data
	default:
		return ""
	}
}
