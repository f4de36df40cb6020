package pipeline

import (
	"context"
	"errors"
)

const (
	DefaultMaxWidth  = 1920
	DefaultMaxHeight = 1080
	DefaultQuality   = 85
)

// ErrDecode is returned when the input bytes are not a recognizable image.
var ErrDecode = errors.New("decode image")

type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// Transformer runs one decode, orient, flatten, fit and encode pass over an image.
type Transformer interface {
	Transform(ctx context.Context, input []byte, opts Options) (data []byte, width, height int, err error)
}

func (o Options) withDefaults() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = DefaultMaxHeight
	}
	if o.Quality < 1 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// fitWithin returns the largest size with the source aspect ratio that fits the
// bounds, flooring the scaled side. Sizes already inside the bounds are returned
// unchanged.
func fitWithin(width, height, maxWidth, maxHeight int) (int, int, bool) {
	if width <= maxWidth && height <= maxHeight {
		return width, height, false
	}

	w, h := int64(width), int64(height)
	mw, mh := int64(maxWidth), int64(maxHeight)

	var newWidth, newHeight int64
	if mw*h <= mh*w {
		newWidth = mw
		newHeight = h * mw / w
	} else {
		newWidth = w * mh / h
		newHeight = mh
	}

	return max(1, int(newWidth)), max(1, int(newHeight)), true
}
