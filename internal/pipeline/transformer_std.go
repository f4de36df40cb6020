package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

type stdlibTransformer struct{}

func (t stdlibTransformer) Transform(ctx context.Context, input []byte, opts Options) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	if len(input) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: empty input", ErrDecode)
	}

	// AutoOrientation applies the EXIF orientation tag; the decoded image carries no metadata.
	src, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, 0, 0, fmt.Errorf("%w: image has invalid dimensions", ErrDecode)
	}

	out := flattenOnWhite(src)

	width, height, resize := fitWithin(bounds.Dx(), bounds.Dy(), opts.MaxWidth, opts.MaxHeight)
	if resize {
		out = imaging.Resize(out, width, height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}

	return buf.Bytes(), width, height, nil
}

type opaquer interface {
	Opaque() bool
}

// flattenOnWhite composites transparent and paletted images onto a white
// background so the JPEG encoder only ever sees opaque RGB.
func flattenOnWhite(src image.Image) image.Image {
	if _, paletted := src.(*image.Paletted); !paletted {
		if o, ok := src.(opaquer); !ok || o.Opaque() {
			return src
		}
	}

	bounds := src.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, imaging.Clone(src), image.Pt(0, 0), 1.0)
}
