package bigzip

import (
	"time"

	"github.com/nguyenvh/bigzip/cksum"
	"github.com/nguyenvh/bigzip/format"
)

// entryState tracks an entry through the write pipeline.
//
// The transitions are strictly Created -> HeaderWritten -> Streaming -> Finalized; the
// writer never starts the next entry's header until the current one is Finalized.
type entryState int

const (
	entryCreated entryState = iota
	entryHeaderWritten
	entryStreaming
	entryFinalized
)

// Entry is the per-file metadata record of an archive under construction.
//
// An Entry is created when a file begins being added (its local header offset is known,
// sizes and CRC are placeholders), mutated while payload bytes stream through, frozen
// once its data descriptor is written, and then only re-read when the central directory
// is emitted.
type Entry struct {
	// Name is the file's display name inside the archive, UTF-8 (general purpose
	// bit 11 is always set).
	Name string

	// Comment is optional and trails the entry's central directory header.
	Comment string

	// Flags is the general purpose bit flag word. Bit 3 is always set: sizes and
	// CRC-32 follow the payload in a data descriptor.
	Flags uint16

	// Method is the compression method, format.MethodDeflate by default.
	Method uint16

	// ModifiedDate and ModifiedTime are the MS-DOS encoded modification timestamp.
	ModifiedDate, ModifiedTime uint16

	// CRC32 is the running (not yet inverted) checksum while the entry streams, and
	// the final inverted value once the entry is finalized.
	CRC32 uint32

	// CompressedSize and UncompressedSize accumulate while the payload streams.
	CompressedSize, UncompressedSize uint64

	// Offset is the byte offset of the entry's local file header, fixed at creation
	// from the writer's running output position.
	Offset uint64

	state entryState
}

func newEntry(name string, modified time.Time, method uint16, offset uint64) *Entry {
	e := &Entry{
		Name:   name,
		Flags:  format.FlagDataDescriptor | format.FlagUTF8,
		Method: method,
		CRC32:  cksum.Seed,
		Offset: offset,
	}
	e.ModifiedDate, e.ModifiedTime = dosDateTime(modified)
	return e
}

// zip64Sizes reports whether the entry's sizes must be promoted to the ZIP64 extra
// field. The two size fields promote together.
func (e *Entry) zip64Sizes() bool {
	return e.UncompressedSize >= format.Uint32Max || e.CompressedSize >= format.Uint32Max
}

// zip64Offset reports whether the entry's local header offset must be promoted.
func (e *Entry) zip64Offset() bool {
	return e.Offset > format.Uint32Max
}

func dosDateTime(t time.Time) (dosDate, dosTime uint16) {
	if t.IsZero() {
		t = time.Now()
	}
	return format.TimeToMsDos(t)
}
