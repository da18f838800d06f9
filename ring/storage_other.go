//go:build !linux

package ring

// doubleMap is unavailable without a map-twice primitive, storage falls
// back to a mirrored allocation.
func doubleMap[T any](int) ([]T, func(), bool) {
	return nil, nil, false
}
