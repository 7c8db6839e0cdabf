// Package locate finds the metadata trailer of a ZIP64 archive by scanning backwards
// from end of file, so the central directory of a very large archive can be reached
// without reading the file from the start. The source only needs to be an
// io.ReadSeeker; it can just as well be an S3 object as a local file.
package locate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nguyenvh/bigzip/format"
)

const (
	// DefaultWindowSize is the default value of [Options.WindowSize].
	DefaultWindowSize = 2048

	// DefaultMaxBytes is the default value of [Options.MaxBytes].
	DefaultMaxBytes int64 = 1 * 1024 * 1024
)

// ErrLocatorNotFound is returned when the backward scan exhausts its search bound
// without finding the ZIP64 locator signature; the file is most likely not a ZIP64
// archive, or its tail is truncated. It is distinct from any I/O error.
var ErrLocatorNotFound = errors.New("zip64 end of central directory locator not found; most likely not a ZIP64 archive")

// Options customises Find.
type Options struct {
	// WindowSize is the size of each backward search window.
	//
	// Default to DefaultWindowSize.
	WindowSize int

	// MaxBytes bounds how far back from end of file the scan may reach before
	// giving up with ErrLocatorNotFound. Set to 0 to scan all the way to the start
	// of the file.
	//
	// Default to DefaultMaxBytes.
	MaxBytes int64
}

// Tail describes the archive trailer decoded from the ZIP64 end of central directory
// record.
type Tail struct {
	// CDOffset is the byte offset of the start of the central directory.
	CDOffset uint64
	// CDSize is the central directory's size in bytes.
	CDSize uint64
	// RecordCount is the total number of central directory records.
	RecordCount uint64
	// EndOffset is the byte offset of the ZIP64 end of central directory record
	// itself, as read from the locator.
	EndOffset uint64
}

// Find scans backwards from end of src for the ZIP64 locator and decodes the ZIP64 end
// of central directory record it points at.
//
// size must be the total byte size of src. The scan reads one window at a time,
// sliding towards the start of the file with a 4-byte overlap so a signature
// straddling two windows is still found, and stops at start of file or after
// Options.MaxBytes, whichever comes first.
func Find(src io.ReadSeeker, size int64, optFns ...func(*Options)) (Tail, error) {
	opts := &Options{
		WindowSize: DefaultWindowSize,
		MaxBytes:   DefaultMaxBytes,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	sig := binary.LittleEndian.AppendUint32(nil, format.SigZip64Locator)

	var (
		window     = make([]byte, opts.WindowSize)
		windowSize = int64(opts.WindowSize)
		backOffset int64
	)

	for {
		position := max(0, size-windowSize-backOffset)
		buf := window[:min(windowSize, size-position)]

		if _, err := src.Seek(position, io.SeekStart); err != nil {
			return Tail{}, fmt.Errorf("seek search window error: %w", err)
		}
		if _, err := io.ReadFull(src, buf); err != nil {
			return Tail{}, fmt.Errorf("read search window error: %w", err)
		}

		if i := bytes.LastIndex(buf, sig); i != -1 {
			return readTail(src, position+int64(i), buf[i:])
		}

		// the window found nothing; slide it towards the start of the file,
		// keeping a signature-length overlap, until the scan bound is hit.
		if position == 0 || (opts.MaxBytes > 0 && size-position >= opts.MaxBytes) {
			return Tail{}, ErrLocatorNotFound
		}
		backOffset += windowSize - int64(len(sig))
	}
}

// FindFromReaderAt is Find for an io.ReaderAt.
func FindFromReaderAt(src io.ReaderAt, size int64, optFns ...func(*Options)) (Tail, error) {
	return Find(io.NewSectionReader(src, 0, size), size, optFns...)
}

// readTail decodes the locator found at offset (buffered reads in rest) and then the
// ZIP64 end of central directory record it points at.
func readTail(src io.ReadSeeker, offset int64, rest []byte) (Tail, error) {
	// if the buffered window does not hold the full 20-byte locator, re-read it
	// anchored at the signature.
	if len(rest) < format.Zip64Locator.Size() {
		rest = make([]byte, format.Zip64Locator.Size())
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			return Tail{}, fmt.Errorf("seek zip64 locator error: %w", err)
		}
		if _, err := io.ReadFull(src, rest); err != nil {
			return Tail{}, fmt.Errorf("read zip64 locator error: %w", err)
		}
	}

	loc, _, err := format.Zip64Locator.Decode(rest, 0)
	if err != nil {
		return Tail{}, fmt.Errorf("decode zip64 locator error: %w", err)
	}

	endOffset := loc["zip64 end offset"]
	buf := make([]byte, format.Zip64End.Size())
	if _, err = src.Seek(int64(endOffset), io.SeekStart); err != nil {
		return Tail{}, fmt.Errorf("seek zip64 end of central directory error: %w", err)
	}
	if _, err = io.ReadFull(src, buf); err != nil {
		return Tail{}, fmt.Errorf("read zip64 end of central directory error: %w", err)
	}

	end, _, err := format.Zip64End.Decode(buf, 0)
	if err != nil {
		return Tail{}, fmt.Errorf("decode zip64 end of central directory error: %w", err)
	}
	if got := uint32(end["signature"]); got != format.SigZip64End {
		return Tail{}, fmt.Errorf("mismatched zip64 end of central directory signature, got 0x%x, expected 0x%x", got, format.SigZip64End)
	}

	return Tail{
		CDOffset:    end["cd offset"],
		CDSize:      end["cd size"],
		RecordCount: end["entries total"],
		EndOffset:   endOffset,
	}, nil
}
