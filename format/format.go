// Package format declares the on-disk ZIP and ZIP64 structures used by both the writer
// and the tail locator.
//
// See https://pkware.cachefly.net/webdocs/casestudies/APPNOTE.TXT for the authoritative
// layout of every record.
package format

import (
	"encoding/binary"
	"time"

	"github.com/nguyenvh/bigzip/record"
)

// 4-byte little-endian magic numbers, one per record type.
const (
	SigLocalFileHeader uint32 = 0x04034b50
	SigCentralDir      uint32 = 0x02014b50
	SigEOCD            uint32 = 0x06054b50
	SigZip64End        uint32 = 0x06064b50
	SigZip64Locator    uint32 = 0x07064b50
	SigDataDescriptor  uint32 = 0x08074b50
)

const (
	// MethodStore stores payloads without compression.
	MethodStore uint16 = 0
	// MethodDeflate is the default compression method.
	MethodDeflate uint16 = 8

	// FlagDataDescriptor (general purpose bit 3) declares that sizes and CRC-32 are
	// carried by a trailing data descriptor rather than the local file header.
	FlagDataDescriptor uint16 = 1 << 3
	// FlagUTF8 (general purpose bit 11) declares that the file name and comment are
	// UTF-8 encoded.
	FlagUTF8 uint16 = 1 << 11

	// Zip64Version is the version-made-by and version-needed-to-extract value for
	// archives carrying ZIP64 structures (4.5 in the APPNOTE's encoding).
	Zip64Version uint16 = 45

	// Zip64ExtraID is the header id of the ZIP64 extended information extra field.
	Zip64ExtraID uint16 = 0x0001

	// Uint16Max and Uint32Max are the sentinel values that redirect readers to the
	// ZIP64 structures when a 16- or 32-bit field overflows.
	Uint16Max uint64 = 0xFFFF
	Uint32Max uint64 = 0xFFFFFFFF
)

// The fixed-layout records of the format, in the order they appear in an archive.
var (
	LocalFileHeader = record.Define("local file header",
		record.Field{Name: "signature", Width: 4, Literal: uint64(SigLocalFileHeader)},
		record.Field{Name: "version needed", Width: 2, Literal: uint64(Zip64Version)},
		record.Field{Name: "flags", Width: 2},
		record.Field{Name: "method", Width: 2},
		record.Field{Name: "modified time", Width: 2},
		record.Field{Name: "modified date", Width: 2},
		record.Field{Name: "crc32", Width: 4},
		record.Field{Name: "compressed size", Width: 4},
		record.Field{Name: "uncompressed size", Width: 4},
		record.Field{Name: "file name length", Width: 2},
		record.Field{Name: "extra field length", Width: 2},
	)

	// DataDescriptor is the ZIP64 form with 8-byte sizes, matching bit 3 streaming.
	DataDescriptor = record.Define("data descriptor",
		record.Field{Name: "signature", Width: 4, Literal: uint64(SigDataDescriptor)},
		record.Field{Name: "crc32", Width: 4},
		record.Field{Name: "compressed size", Width: 8},
		record.Field{Name: "uncompressed size", Width: 8},
	)

	CentralDirHeader = record.Define("central directory file header",
		record.Field{Name: "signature", Width: 4, Literal: uint64(SigCentralDir)},
		record.Field{Name: "version made by", Width: 2, Literal: uint64(Zip64Version)},
		record.Field{Name: "version needed", Width: 2, Literal: uint64(Zip64Version)},
		record.Field{Name: "flags", Width: 2},
		record.Field{Name: "method", Width: 2},
		record.Field{Name: "modified time", Width: 2},
		record.Field{Name: "modified date", Width: 2},
		record.Field{Name: "crc32", Width: 4},
		record.Field{Name: "compressed size", Width: 4},
		record.Field{Name: "uncompressed size", Width: 4},
		record.Field{Name: "file name length", Width: 2},
		record.Field{Name: "extra field length", Width: 2},
		record.Field{Name: "file comment length", Width: 2},
		record.Field{Name: "disk number start", Width: 2},
		record.Field{Name: "internal attributes", Width: 2},
		record.Field{Name: "external attributes", Width: 4},
		record.Field{Name: "local header offset", Width: 4},
	)

	Zip64End = record.Define("zip64 end of central directory record",
		record.Field{Name: "signature", Width: 4, Literal: uint64(SigZip64End)},
		// size of the remainder of this record; 56 total minus the signature and
		// the size field itself.
		record.Field{Name: "size", Width: 8, Literal: 44},
		record.Field{Name: "version made by", Width: 2, Literal: uint64(Zip64Version)},
		record.Field{Name: "version needed", Width: 2, Literal: uint64(Zip64Version)},
		record.Field{Name: "disk number", Width: 4},
		record.Field{Name: "cd disk number", Width: 4},
		record.Field{Name: "entries on disk", Width: 8},
		record.Field{Name: "entries total", Width: 8},
		record.Field{Name: "cd size", Width: 8},
		record.Field{Name: "cd offset", Width: 8},
	)

	Zip64Locator = record.Define("zip64 end of central directory locator",
		record.Field{Name: "signature", Width: 4, Literal: uint64(SigZip64Locator)},
		record.Field{Name: "zip64 end disk number", Width: 4},
		record.Field{Name: "zip64 end offset", Width: 8},
		record.Field{Name: "total disks", Width: 4, Literal: 1},
	)

	EOCD = record.Define("end of central directory record",
		record.Field{Name: "signature", Width: 4, Literal: uint64(SigEOCD)},
		record.Field{Name: "disk number", Width: 2},
		record.Field{Name: "cd disk number", Width: 2},
		record.Field{Name: "entries on disk", Width: 2},
		record.Field{Name: "entries total", Width: 2},
		record.Field{Name: "cd size", Width: 4},
		record.Field{Name: "cd offset", Width: 4},
		record.Field{Name: "comment length", Width: 2},
	)
)

// Zip64Extra builds a ZIP64 extended information extra field carrying only the values
// whose primary header fields were set to their sentinel: the two sizes travel as a
// pair, the local header offset independently. Returns nil when nothing overflowed.
//
// The internal order is fixed by the APPNOTE: uncompressed size, compressed size, then
// offset.
func Zip64Extra(uncompressedSize, compressedSize, offset uint64, withSizes, withOffset bool) []byte {
	n := 0
	if withSizes {
		n += 16
	}
	if withOffset {
		n += 8
	}
	if n == 0 {
		return nil
	}

	b := make([]byte, 0, 4+n)
	b = binary.LittleEndian.AppendUint16(b, Zip64ExtraID)
	b = binary.LittleEndian.AppendUint16(b, uint16(n))
	if withSizes {
		b = binary.LittleEndian.AppendUint64(b, uncompressedSize)
		b = binary.LittleEndian.AppendUint64(b, compressedSize)
	}
	if withOffset {
		b = binary.LittleEndian.AppendUint64(b, offset)
	}

	return b
}

// ParseZip64Extra scans a central directory header's extra field for the ZIP64 block
// and promotes each requested value in declared order. Values whose primary fields did
// not overflow are left untouched.
//
// Unknown extra blocks are skipped; a truncated block ends the scan.
func ParseZip64Extra(extra []byte, uncompressedSize, compressedSize, offset *uint64, needSizes, needOffset bool) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[:2])
		n := int(binary.LittleEndian.Uint16(extra[2:4]))
		extra = extra[4:]
		if n > len(extra) {
			return
		}

		if id != Zip64ExtraID {
			extra = extra[n:]
			continue
		}

		b := extra[:n]
		if needSizes && len(b) >= 16 {
			*uncompressedSize = binary.LittleEndian.Uint64(b[:8])
			*compressedSize = binary.LittleEndian.Uint64(b[8:16])
			b = b[16:]
		}
		if needOffset && len(b) >= 8 {
			*offset = binary.LittleEndian.Uint64(b[:8])
		}
		return
	}
}

// TimeToMsDos converts a time.Time into MS-DOS date and time with 2-second resolution.
//
// See https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime.
func TimeToMsDos(t time.Time) (dosDate, dosTime uint16) {
	t = t.UTC()
	dosDate = uint16(t.Day() | int(t.Month())<<5 | (t.Year()-1980)<<9)
	dosTime = uint16(t.Second()/2 | t.Minute()<<5 | t.Hour()<<11)
	return
}

// MsDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
func MsDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0, // nanoseconds

		time.UTC,
	)
}
