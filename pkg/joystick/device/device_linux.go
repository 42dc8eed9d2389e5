//go:build linux

package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocGNAME = 0x80ff6a13

	flagInit = 0x80
	// sizeof(struct js_event)
	eventSize = 8
)

type device struct {
	file  *os.File
	index int
	name  string
}

// Open opens the device with specified index.
func Open(index int) (Device, error) {
	f, err := os.OpenFile(Path(index), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	var buf [256]byte
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), iocGNAME, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		f.Close()
		return nil, errno
	}
	name := buf[:]
	if pos := bytes.IndexByte(name, 0); pos >= 0 {
		name = name[:pos]
	}
	return &device{file: f, index: index, name: string(name)}, nil
}

// DetectAndOpen opens the first available device from startIndex,
// or returns nil when there's none.
func DetectAndOpen(startIndex int) (Device, error) {
	for index := startIndex; index < 32; index++ {
		d, err := Open(index)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return d, err
	}
	return nil, nil
}

func (d *device) Close() error { return d.file.Close() }
func (d *device) Index() int   { return d.index }
func (d *device) Name() string { return d.name }

// ReadEvent implements Device.
func (d *device) ReadEvent() (Event, error) {
	var buf [eventSize]byte
	for {
		if _, err := d.file.Read(buf[:]); err != nil {
			return Event{}, err
		}
		if ev, ok := decodeEvent(buf[:]); ok {
			return ev, nil
		}
	}
}

// decodeEvent parses struct js_event: u32 time, s16 value, u8 type, u8 number.
func decodeEvent(b []byte) (Event, bool) {
	typ := b[6]
	ev := Event{
		Kind:  Kind(typ &^ flagInit),
		Index: int(b[7]),
		Value: int16(binary.LittleEndian.Uint16(b[4:6])),
		Init:  typ&flagInit != 0,
	}
	switch ev.Kind {
	case KindAxis, KindButton:
		return ev, true
	}
	return ev, false
}
