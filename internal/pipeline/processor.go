package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

type Result struct {
	Data   []byte
	Width  int
	Height int
}

// Normalizer downsizes and re-encodes images before they are forwarded upstream.
type Normalizer struct {
	transformer Transformer
	opts        Options
}

func NewNormalizer(opts Options) (*Normalizer, error) {
	transformer, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}

	return &Normalizer{
		transformer: transformer,
		opts:        opts.withDefaults(),
	}, nil
}

func (n *Normalizer) Options() Options {
	return n.opts
}

func (n *Normalizer) Normalize(ctx context.Context, input []byte) (Result, error) {
	data, width, height, err := n.transformer.Transform(ctx, input, n.opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Width: width, Height: height}, nil
}

// NormalizeBase64 decodes a raw base64 payload, normalizes the image and returns it
// base64 encoded again. Undecodable base64 is reported as ErrDecode.
func (n *Normalizer) NormalizeBase64(ctx context.Context, payload string) (string, error) {
	raw, err := DecodeBase64(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	result, err := n.Normalize(ctx, raw)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(result.Data), nil
}

// StripDataURI drops a "data:<type>;base64," style prefix. Everything after the
// first comma is the payload; input without a comma is returned as is.
func StripDataURI(payload string) string {
	if _, after, found := strings.Cut(payload, ","); found {
		return after
	}
	return payload
}

func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, errors.New("empty base64 payload")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("decode base64: %w", err)
}
