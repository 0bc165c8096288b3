//go:build !linux

package platform

// Open always fails outside Linux; use a static geometry source instead.
func Open(string) (Backend, error) {
	return nil, ErrUnsupported
}
