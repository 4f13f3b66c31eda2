package kqfd

import "encoding/binary"

// hostEndianUint64 decodes the 8-byte counter values timerfd/eventfd
// deliver, which the kernel always writes in host byte order.
func hostEndianUint64(b []byte) uint64 {
	return binary.NativeEndian.Uint64(b)
}

func hostEndianPutUint64(b []byte, v uint64) {
	binary.NativeEndian.PutUint64(b, v)
}
