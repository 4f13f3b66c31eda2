package kqfd

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// addSignal sets signal sig's bit in a kernel sigset_t (signals are 1-based;
// Sigset_t.Val is an array of 64-bit words).
func addSignal(set *unix.Sigset_t, sig unix.Signal) {
	bit := uint(sig) - 1
	set.Val[bit/64] |= 1 << (bit % 64)
}

// decodeSiginfo reinterprets a raw signalfd_siginfo record. The kernel
// writes a fixed-layout struct matching unix.SignalfdSiginfo byte-for-byte.
func decodeSiginfo(raw []byte) (unix.SignalfdSiginfo, error) {
	var info unix.SignalfdSiginfo
	size := int(unsafe.Sizeof(info))
	if len(raw) < size {
		return info, errShortSiginfo
	}
	info = *(*unix.SignalfdSiginfo)(unsafe.Pointer(&raw[0]))
	return info, nil
}
