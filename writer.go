// Package bigzip builds ZIP archives that always carry the ZIP64 end-of-central-
// directory structures, so file counts, sizes, and offsets past the 32-bit limits never
// invalidate the archive.
//
// Payloads stream through the writer in bounded chunks: sizes and CRC-32 are
// accumulated on the fly and emitted in a trailing data descriptor (general purpose
// bit 3), never buffered whole. Use the locate package to find the archive tail again
// without reading the file from the start.
package bigzip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/nguyenvh/bigzip/cksum"
	"github.com/nguyenvh/bigzip/format"
	"github.com/nguyenvh/bigzip/record"
	"github.com/rs/zerolog"
)

const (
	// DefaultBufferSize is the default value for [Options.BufferSize], which is 32 KiB.
	DefaultBufferSize = 32 * 1024
)

// ErrWriterClosed is returned by Add, AddFile, and Close once Close has been called.
var ErrWriterClosed = errors.New("archive already finalized")

// Options customises NewWriter.
type Options struct {
	// Method is the compression method for added entries, format.MethodDeflate by
	// default.
	Method uint16

	// CompressionLevel is the deflate level, flate.DefaultCompression by default.
	// Ignored when Method is format.MethodStore.
	CompressionLevel int

	// BufferSize is the length of the buffer used to stream payloads into the
	// archive. It indirectly controls how frequently ProgressReporter is called.
	//
	// Default to DefaultBufferSize.
	BufferSize int

	// ProgressReporter controls how per-entry progress is reported.
	//
	// By default, DefaultProgressReporter is used, which logs `added "name" to
	// archive` after each entry has been written in full.
	ProgressReporter ProgressReporter

	// Logger receives debug events as entries and trailer records are written.
	//
	// Default to a no-op logger.
	Logger zerolog.Logger
}

// WithStore stores payloads without compression (method 0).
func WithStore(opts *Options) {
	opts.Method = format.MethodStore
}

// WithBestCompression trades speed for the smallest deflate output.
func WithBestCompression(opts *Options) {
	opts.CompressionLevel = flate.BestCompression
}

// Writer writes a single ZIP archive to an io.Writer.
//
// Writer is not safe for concurrent use: entries are laid out back to back by a single
// running offset counter, so all Add calls and the final Close must happen from one
// goroutine.
type Writer struct {
	dst     io.Writer
	offset  uint64
	entries []*Entry
	closed  bool

	method   uint16
	level    int
	bufSize  int
	reporter ProgressReporter
	log      zerolog.Logger
}

// NewWriter returns a Writer that builds the archive by writing to dst.
//
// The caller owns dst; if any method returns an error, the bytes written so far do not
// form a valid archive and dst should be discarded.
func NewWriter(dst io.Writer, optFns ...func(*Options)) *Writer {
	opts := &Options{
		Method:           format.MethodDeflate,
		CompressionLevel: flate.DefaultCompression,
		BufferSize:       DefaultBufferSize,
		ProgressReporter: DefaultProgressReporter,
		Logger:           zerolog.Nop(),
	}
	for _, fn := range optFns {
		fn(opts)
	}

	return &Writer{
		dst:      dst,
		method:   opts.Method,
		level:    opts.CompressionLevel,
		bufSize:  opts.BufferSize,
		reporter: opts.ProgressReporter,
		log:      opts.Logger,
	}
}

// AddOptions customises a single Add or AddFile call.
type AddOptions struct {
	// Comment trails the entry's central directory header.
	Comment string

	// Modified overrides the entry's modification time. AddFile defaults to the
	// file's mtime; Add defaults to time.Now.
	Modified time.Time
}

// WithComment attaches a comment to the entry being added.
func WithComment(comment string) func(*AddOptions) {
	return func(opts *AddOptions) {
		opts.Comment = comment
	}
}

// AddFile adds the named file to the archive under its display name: the last path
// segment, accepting both `/` and `\` as separators.
func (w *Writer) AddFile(ctx context.Context, path string, optFns ...func(*AddOptions)) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open src file error: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		optFns = append([]func(*AddOptions){func(opts *AddOptions) {
			opts.Modified = fi.ModTime()
		}}, optFns...)
	}

	return w.Add(ctx, DisplayName(path), f, optFns...)
}

// Add streams src into the archive as one entry named name.
//
// Add does not return until the whole pipeline has drained: raw bytes are observed for
// the uncompressed size and CRC-32, pass through the compression stage, and the
// compressed bytes are counted as they reach dst. The entry's data descriptor is
// written last. Any error aborts archive construction; the output must then be
// considered invalid.
func (w *Writer) Add(ctx context.Context, name string, src io.Reader, optFns ...func(*AddOptions)) (*Entry, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}

	opts := &AddOptions{}
	for _, fn := range optFns {
		fn(opts)
	}

	e := newEntry(name, opts.Modified, w.method, w.offset)
	e.Comment = opts.Comment

	// local file header with zeroed sizes and CRC; bit 3 moves the real values to
	// the trailing data descriptor.
	buf, _ := format.LocalFileHeader.Encode(record.Values{
		"flags":            uint64(e.Flags),
		"method":           uint64(e.Method),
		"modified time":    uint64(e.ModifiedTime),
		"modified date":    uint64(e.ModifiedDate),
		"file name length": uint64(len(e.Name)),
	})
	if err := w.write(buf); err != nil {
		return nil, fmt.Errorf("write local file header error: %w", err)
	}
	if err := w.write([]byte(e.Name)); err != nil {
		return nil, fmt.Errorf("write file name error: %w", err)
	}
	e.state = entryHeaderWritten

	if err := w.stream(ctx, e, src); err != nil {
		return nil, err
	}

	// freeze the entry: invert the running CRC and emit the data descriptor.
	e.CRC32 = cksum.Final(e.CRC32)
	buf, _ = format.DataDescriptor.Encode(record.Values{
		"crc32":             uint64(e.CRC32),
		"compressed size":   e.CompressedSize,
		"uncompressed size": e.UncompressedSize,
	})
	if err := w.write(buf); err != nil {
		return nil, fmt.Errorf("write data descriptor error: %w", err)
	}
	e.state = entryFinalized

	w.log.Debug().
		Str("name", e.Name).
		Uint64("uncompressed", e.UncompressedSize).
		Uint64("compressed", e.CompressedSize).
		Uint32("crc32", e.CRC32).
		Uint64("offset", e.Offset).
		Msg("entry finalized")

	w.entries = append(w.entries, e)
	return e, nil
}

// stream relays src through the compression stage into dst, mutating e's counters as
// bytes pass through each side.
func (w *Writer) stream(ctx context.Context, e *Entry, src io.Reader) error {
	e.state = entryStreaming

	// the compressed side: counts bytes as they reach the sink.
	sink := &payloadWriter{w: w, e: e}

	var stage io.WriteCloser
	if e.Method == format.MethodStore {
		stage = &nopCloser{sink}
	} else {
		fw, err := flate.NewWriter(sink, w.level)
		if err != nil {
			return fmt.Errorf("create deflate writer error: %w", err)
		}
		stage = fw
	}

	// the raw side: one bounded chunk at a time, feeding the size counter and the
	// CRC-32 engine before handing bytes to the compression stage.
	buf := make([]byte, w.bufSize)
	for {
		nr, err := src.Read(buf)

		if nr > 0 {
			e.UncompressedSize += uint64(nr)
			e.CRC32 = cksum.Update(e.CRC32, buf[:nr])

			switch nw, werr := stage.Write(buf[:nr]); {
			case werr != nil:
				return fmt.Errorf("write payload error: %w", werr)
			case nw < nr:
				return io.ErrShortWrite
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				if w.reporter != nil {
					w.reporter(e.Name, int64(e.UncompressedSize), false)
				}
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read payload error: %w", err)
		}
	}

	// end of input: drain the compression stage before the descriptor goes out.
	if err := stage.Close(); err != nil {
		return fmt.Errorf("flush payload error: %w", err)
	}

	if w.reporter != nil {
		w.reporter(e.Name, int64(e.UncompressedSize), true)
	}

	return nil
}

// Close emits the central directory and the archive trailer: one central directory
// header (plus ZIP64 extra field and comment where applicable) per entry in insertion
// order, then the ZIP64 end of central directory record, the ZIP64 locator, and the
// classic end of central directory record.
//
// Close does not close the underlying io.Writer.
func (w *Writer) Close() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.closed = true

	cdStart := w.offset
	for _, e := range w.entries {
		if err := w.writeCentralDirHeader(e); err != nil {
			return err
		}
	}
	cdSize := w.offset - cdStart

	zip64EndOffset := w.offset
	count := uint64(len(w.entries))
	buf, _ := format.Zip64End.Encode(record.Values{
		"entries on disk": count,
		"entries total":   count,
		"cd size":         cdSize,
		"cd offset":       cdStart,
	})
	if err := w.write(buf); err != nil {
		return fmt.Errorf("write zip64 end of central directory error: %w", err)
	}

	buf, _ = format.Zip64Locator.Encode(record.Values{
		"zip64 end offset": zip64EndOffset,
	})
	if err := w.write(buf); err != nil {
		return fmt.Errorf("write zip64 locator error: %w", err)
	}

	// the classic record clamps overflowed fields to their sentinels; readers that
	// notice a sentinel defer to the ZIP64 records above.
	buf, _ = format.EOCD.Encode(record.Values{
		"entries on disk": clamp(count, format.Uint16Max),
		"entries total":   clamp(count, format.Uint16Max),
		"cd size":         clamp(cdSize, format.Uint32Max),
		"cd offset":       clamp(cdStart, format.Uint32Max),
	})
	if err := w.write(buf); err != nil {
		return fmt.Errorf("write end of central directory error: %w", err)
	}

	w.log.Debug().
		Uint64("entries", count).
		Uint64("cdOffset", cdStart).
		Uint64("cdSize", cdSize).
		Msg("archive finalized")

	return nil
}

func (w *Writer) writeCentralDirHeader(e *Entry) error {
	var (
		zip64Sizes  = e.zip64Sizes()
		zip64Offset = e.zip64Offset()
		extra       = format.Zip64Extra(e.UncompressedSize, e.CompressedSize, e.Offset, zip64Sizes, zip64Offset)

		compressedSize   = e.CompressedSize
		uncompressedSize = e.UncompressedSize
		offset           = e.Offset
	)

	// a primary field holds the sentinel if and only if its true value moved to the
	// ZIP64 extra field.
	if zip64Sizes {
		compressedSize, uncompressedSize = format.Uint32Max, format.Uint32Max
	}
	if zip64Offset {
		offset = format.Uint32Max
	}

	buf, _ := format.CentralDirHeader.Encode(record.Values{
		"flags":               uint64(e.Flags),
		"method":              uint64(e.Method),
		"modified time":       uint64(e.ModifiedTime),
		"modified date":       uint64(e.ModifiedDate),
		"crc32":               uint64(e.CRC32),
		"compressed size":     compressedSize,
		"uncompressed size":   uncompressedSize,
		"file name length":    uint64(len(e.Name)),
		"extra field length":  uint64(len(extra)),
		"file comment length": uint64(len(e.Comment)),
		"local header offset": offset,
	})

	if err := w.write(buf); err != nil {
		return fmt.Errorf("write central directory header error: %w", err)
	}
	for _, trailing := range [][]byte{[]byte(e.Name), extra, []byte(e.Comment)} {
		if err := w.write(trailing); err != nil {
			return fmt.Errorf("write central directory header error: %w", err)
		}
	}

	return nil
}

// write relays p to the output and advances the running offset counter by the number
// of bytes that actually reached the sink.
func (w *Writer) write(p []byte) error {
	n, err := w.dst.Write(p)
	w.offset += uint64(n)
	return err
}

func clamp(v, sentinel uint64) uint64 {
	if v > sentinel {
		return sentinel
	}
	return v
}

// payloadWriter is the instrumented stage after compression: it counts compressed
// bytes into the entry and the writer's offset as they reach the sink.
type payloadWriter struct {
	w *Writer
	e *Entry
}

func (p *payloadWriter) Write(b []byte) (int, error) {
	n, err := p.w.dst.Write(b)
	p.e.CompressedSize += uint64(n)
	p.w.offset += uint64(n)
	return n, err
}

type nopCloser struct {
	io.Writer
}

func (*nopCloser) Close() error {
	return nil
}
