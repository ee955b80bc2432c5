//go:build !(darwin || freebsd || linux || windows)

package dynlib

type nativeOpener struct{}

// NewOpener returns an Opener that always fails with ErrUnsupported.
func NewOpener() Opener {
	return nativeOpener{}
}

func (nativeOpener) Open(path string) (Library, error) {
	return nil, ErrUnsupported
}
