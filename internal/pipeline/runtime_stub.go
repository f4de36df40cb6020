//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

// newTransformer returns the pure-Go backend built on disintegration/imaging.
func newTransformer() (Transformer, error) {
	return stdlibTransformer{}, nil
}
