package locate

import (
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/nguyenvh/bigzip/format"
	"github.com/valyala/bytebufferpool"
)

// Header is one central directory file header with any sentinel-valued field promoted
// back to its true value from the entry's ZIP64 extra field.
type Header struct {
	// Name is the entry's file name.
	Name string
	// Comment is the entry's comment, if any.
	Comment string
	// Extra is the raw extra field, ZIP64 block included.
	Extra []byte

	// Flags is the general purpose bit flag word.
	Flags uint16
	// Method is the compression method.
	Method uint16
	// Modified is the entry's modification time, decoded from its MS-DOS form with
	// 2-second resolution.
	Modified time.Time
	// CRC32 is the payload's checksum.
	CRC32 uint32

	// CompressedSize and UncompressedSize are the true 64-bit sizes.
	CompressedSize, UncompressedSize uint64

	// Offset is the true byte offset of the entry's local file header.
	Offset uint64
}

// Entries iterates the central directory described by t, yielding one Header per
// record in archive order.
//
// The iteration is bounded by t.RecordCount; a malformed directory stops it with an
// error. Don't run multiple iterations over the same src concurrently, they share its
// read offset.
func Entries(src io.ReadSeeker, t Tail) iter.Seq2[Header, error] {
	return func(yield func(Header, error) bool) {
		if _, err := src.Seek(int64(t.CDOffset), io.SeekStart); err != nil {
			yield(Header{}, fmt.Errorf("seek central directory error: %w", err))
			return
		}

		bb := bytebufferpool.Get()
		defer bytebufferpool.Put(bb)

		fixedSize := int64(format.CentralDirHeader.Size())
		for range t.RecordCount {
			bb.Reset()
			if n, err := bb.ReadFrom(io.LimitReader(src, fixedSize)); err != nil {
				yield(Header{}, fmt.Errorf("read central directory header error: %w", err))
				return
			} else if n < fixedSize {
				yield(Header{}, fmt.Errorf("read central directory header error: insufficient read: expected %d bytes, got %d", fixedSize, n))
				return
			}

			values, _, err := format.CentralDirHeader.Decode(bb.B, 0)
			if err != nil {
				yield(Header{}, fmt.Errorf("decode central directory header error: %w", err))
				return
			}
			if got := uint32(values["signature"]); got != format.SigCentralDir {
				yield(Header{}, fmt.Errorf("mismatched central directory signature, got 0x%x, expected 0x%x", got, format.SigCentralDir))
				return
			}

			n := int64(values["file name length"])
			m := int64(values["extra field length"])
			k := int64(values["file comment length"])
			bb.Reset()
			if readN, err := bb.ReadFrom(io.LimitReader(src, n+m+k)); err != nil {
				yield(Header{}, fmt.Errorf("read central directory header trailing data error: %w", err))
				return
			} else if readN < n+m+k {
				yield(Header{}, fmt.Errorf("read central directory header trailing data error: insufficient read: expected %d bytes, got %d", n+m+k, readN))
				return
			}

			h := Header{
				Name:             string(bb.B[:n]),
				Extra:            append([]byte(nil), bb.B[n:n+m]...),
				Comment:          string(bb.B[n+m : n+m+k]),
				Flags:            uint16(values["flags"]),
				Method:           uint16(values["method"]),
				Modified:         format.MsDosTimeToTime(uint16(values["modified date"]), uint16(values["modified time"])),
				CRC32:            uint32(values["crc32"]),
				CompressedSize:   values["compressed size"],
				UncompressedSize: values["uncompressed size"],
				Offset:           values["local header offset"],
			}

			// a sentinel in a primary field redirects to the ZIP64 extra block.
			needSizes := h.UncompressedSize == format.Uint32Max || h.CompressedSize == format.Uint32Max
			needOffset := h.Offset == format.Uint32Max
			if needSizes || needOffset {
				format.ParseZip64Extra(h.Extra, &h.UncompressedSize, &h.CompressedSize, &h.Offset, needSizes, needOffset)
			}

			if !yield(h, nil) {
				return
			}
		}
	}
}
