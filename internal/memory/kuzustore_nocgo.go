//go:build !cgo

package memory

import "errors"

// NewKuzuStore is unavailable without cgo.
func NewKuzuStore(string) (Store, error) {
	return nil, errors.New("memory: kuzu backend requires cgo")
}
