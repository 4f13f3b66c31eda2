package kqfd

import (
	"unsafe"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// FSEvent is one decoded inotify_event: a watched path plus the mask of
// what happened to it.
type FSEvent struct {
	WatchDescriptor int32
	Mask            uint32
	Name            string
}

// INotify wraps an inotify instance. It is "supplied for completeness" per
// spec.md §4.D — not core-critical to the reactor/HTTP path — but is
// exercised by internal/supervise's config-reload watcher.
type INotify struct {
	fd   int
	name string
}

// NewINotify creates a non-blocking inotify instance.
func NewINotify() (*INotify, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "inotify_init1")
	}
	return &INotify{fd: fd, name: "inotify-" + uuid.NewString()}, nil
}

// FD returns the underlying descriptor.
func (n *INotify) FD() int { return n.fd }

// Name is the debug identifier assigned at construction.
func (n *INotify) Name() string { return n.name }

// AddWatch starts watching path for the given event mask, returning a
// watch descriptor used to correlate later events.
func (n *INotify) AddWatch(path string, mask uint32) (int32, error) {
	wd, err := unix.InotifyAddWatch(n.fd, path, mask)
	if err != nil {
		return 0, errors.Wrapf(err, "inotify_add_watch %q", path)
	}
	return int32(wd), nil
}

// RemoveWatch stops watching the given descriptor.
func (n *INotify) RemoveWatch(wd int32) error {
	if _, err := unix.InotifyRmWatch(n.fd, uint32(wd)); err != nil {
		return errors.Wrap(err, "inotify_rm_watch")
	}
	return nil
}

// Handle decodes every pending inotify_event record fanning out path/mask
// notifications. On EAGAIN it returns an empty slice and no error.
func (n *INotify) Handle() ([]FSEvent, error) {
	buf := make([]byte, 4096)
	read, err := unix.Read(n.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "inotify read")
	}
	var events []FSEvent
	offset := 0
	headerSize := int(unsafe.Sizeof(unix.InotifyEvent{}))
	for offset+headerSize <= read {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := int(raw.Len)
		name := ""
		if nameLen > 0 {
			nameBytes := buf[offset+headerSize : offset+headerSize+nameLen]
			if idx := indexByte(nameBytes, 0); idx >= 0 {
				nameBytes = nameBytes[:idx]
			}
			name = string(nameBytes)
		}
		events = append(events, FSEvent{
			WatchDescriptor: raw.Wd,
			Mask:            raw.Mask,
			Name:            name,
		})
		offset += headerSize + nameLen
	}
	return events, nil
}

// Close releases the fd.
func (n *INotify) Close() error {
	return unix.Close(n.fd)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
