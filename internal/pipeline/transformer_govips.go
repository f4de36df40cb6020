//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, opts Options) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	if len(input) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: empty input", ErrDecode)
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer img.Close()

	if err := img.AutoRotate(); err != nil {
		return nil, 0, 0, fmt.Errorf("auto rotate: %w", err)
	}

	if img.HasAlpha() {
		if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, 0, 0, fmt.Errorf("flatten alpha: %w", err)
		}
	}
	if err := img.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return nil, 0, 0, fmt.Errorf("convert to srgb: %w", err)
	}

	if err := applyGovipsFit(img, opts); err != nil {
		return nil, 0, 0, err
	}

	params := vips.NewJpegExportParams()
	params.Quality = opts.Quality
	params.OptimizeCoding = true
	params.StripMetadata = true

	data, _, err := img.ExportJpeg(params)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}

	return data, img.Width(), img.Height(), nil
}

func applyGovipsFit(img *vips.ImageRef, opts Options) error {
	if img.Width() <= 0 || img.Height() <= 0 {
		return fmt.Errorf("%w: image has invalid dimensions", ErrDecode)
	}

	width, height, resize := fitWithin(img.Width(), img.Height(), opts.MaxWidth, opts.MaxHeight)
	if !resize {
		return nil
	}

	hScale := float64(width) / float64(img.Width())
	vScale := float64(height) / float64(img.Height())
	if err := img.ResizeWithVScale(hScale, vScale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}
