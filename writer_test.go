package bigzip

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/nguyenvh/bigzip/cksum"
	"github.com/nguyenvh/bigzip/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardReporter(string, int64, bool) {}

func quiet(opts *Options) {
	opts.ProgressReporter = discardReporter
}

func TestWriter_EmptyArchive(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf, quiet)
	require.NoError(t, w.Close())

	// an empty archive is exactly the three trailer records.
	require.Equal(t, format.Zip64End.Size()+format.Zip64Locator.Size()+format.EOCD.Size(), buf.Len())

	b := buf.Bytes()
	end, next, err := format.Zip64End.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(format.SigZip64End), end["signature"])
	assert.Zero(t, end["entries total"])
	assert.Zero(t, end["cd size"])
	assert.Zero(t, end["cd offset"])

	loc, next, err := format.Zip64Locator.Decode(b, next)
	require.NoError(t, err)
	assert.Equal(t, uint64(format.SigZip64Locator), loc["signature"])
	assert.Zero(t, loc["zip64 end offset"], "zip64 end record starts the file")
	assert.Equal(t, uint64(1), loc["total disks"])

	eocd, _, err := format.EOCD.Decode(b, next)
	require.NoError(t, err)
	assert.Equal(t, uint64(format.SigEOCD), eocd["signature"])
	assert.Zero(t, eocd["entries total"])
	assert.Zero(t, eocd["cd size"])
}

func TestWriter_SingleStoredFile(t *testing.T) {
	content := []byte("hello, big world")

	buf := &bytes.Buffer{}
	w := NewWriter(buf, quiet, WithStore)
	e, err := w.Add(context.Background(), "a.txt", bytes.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, uint64(len(content)), e.UncompressedSize)
	assert.Equal(t, uint64(len(content)), e.CompressedSize)
	assert.Equal(t, cksum.Sum(content), e.CRC32)
	assert.Zero(t, e.Offset)

	b := buf.Bytes()

	// local file header: zeroed sizes, bit 3 and bit 11 set.
	lfh, next, err := format.LocalFileHeader.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(format.SigLocalFileHeader), lfh["signature"])
	assert.Zero(t, lfh["crc32"])
	assert.Zero(t, lfh["compressed size"])
	assert.Zero(t, lfh["uncompressed size"])
	assert.NotZero(t, uint16(lfh["flags"])&format.FlagDataDescriptor)
	assert.NotZero(t, uint16(lfh["flags"])&format.FlagUTF8)
	assert.Equal(t, uint64(len("a.txt")), lfh["file name length"])
	assert.Equal(t, "a.txt", string(b[next:next+5]))

	// payload is stored verbatim, then the data descriptor carries the real values.
	payloadEnd := next + 5 + len(content)
	assert.Equal(t, content, b[next+5:payloadEnd])

	dd, _, err := format.DataDescriptor.Decode(b, payloadEnd)
	require.NoError(t, err)
	assert.Equal(t, uint64(format.SigDataDescriptor), dd["signature"])
	assert.Equal(t, uint64(cksum.Sum(content)), dd["crc32"])
	assert.Equal(t, uint64(len(content)), dd["compressed size"])
	assert.Equal(t, uint64(len(content)), dd["uncompressed size"])

	// small entry: the central directory holds true values, no ZIP64 extra field.
	cdfh, _, err := format.CentralDirHeader.Decode(b, payloadEnd+format.DataDescriptor.Size())
	require.NoError(t, err)
	assert.Equal(t, uint64(format.SigCentralDir), cdfh["signature"])
	assert.Equal(t, uint64(len(content)), cdfh["compressed size"])
	assert.Equal(t, uint64(len(content)), cdfh["uncompressed size"])
	assert.Zero(t, cdfh["local header offset"])
	assert.Zero(t, cdfh["extra field length"])
}

func TestWriter_ReadableByArchiveZip(t *testing.T) {
	files := map[string]string{
		"a.txt": "the quick brown fox",
		"b.bin": strings.Repeat("0123456789", 10_000),
		"c":     "",
	}

	buf := &bytes.Buffer{}
	w := NewWriter(buf, quiet)
	for name, content := range files {
		_, err := w.Add(context.Background(), name, strings.NewReader(content), WithComment("comment for "+name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, len(files))

	for _, f := range zr.File {
		want, ok := files[f.Name]
		require.Truef(t, ok, "unexpected entry %q", f.Name)
		assert.Equal(t, "comment for "+f.Name, f.Comment)

		rc, err := f.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, want, string(got))
	}
}

func TestWriter_Zip64SizePromotion(t *testing.T) {
	tests := []struct {
		name             string
		entry            *Entry
		expectedSizes    uint64
		expectedOffset   uint64
		expectedExtraLen uint64
	}{
		{
			name:             "uncompressed size over 32 bits",
			entry:            &Entry{Name: "big", UncompressedSize: 0x1_0000_0000, CompressedSize: 512, Offset: 16},
			expectedSizes:    format.Uint32Max,
			expectedOffset:   16,
			expectedExtraLen: 20,
		},
		{
			name:             "offset over 32 bits",
			entry:            &Entry{Name: "far", UncompressedSize: 10, CompressedSize: 10, Offset: 0x1_0000_0010},
			expectedSizes:    0, // per-field, checked below
			expectedOffset:   format.Uint32Max,
			expectedExtraLen: 12,
		},
		{
			name:             "both promoted",
			entry:            &Entry{Name: "huge", UncompressedSize: 0x2_0000_0000, CompressedSize: 0x1_8000_0000, Offset: 0x3_0000_0000},
			expectedSizes:    format.Uint32Max,
			expectedOffset:   format.Uint32Max,
			expectedExtraLen: 28,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			w := NewWriter(buf, quiet)
			require.NoError(t, w.writeCentralDirHeader(tt.entry))

			values, next, err := format.CentralDirHeader.Decode(buf.Bytes(), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedOffset, values["local header offset"])
			assert.Equal(t, tt.expectedExtraLen, values["extra field length"])

			if tt.expectedSizes != 0 {
				assert.Equal(t, tt.expectedSizes, values["compressed size"])
				assert.Equal(t, tt.expectedSizes, values["uncompressed size"])
			} else {
				assert.Equal(t, tt.entry.CompressedSize, values["compressed size"])
				assert.Equal(t, tt.entry.UncompressedSize, values["uncompressed size"])
			}

			// the extra field must decode back to the true 64-bit values.
			extra := buf.Bytes()[next+len(tt.entry.Name):]
			var uncompressed, compressed, offset uint64
			format.ParseZip64Extra(extra, &uncompressed, &compressed, &offset,
				values["uncompressed size"] == format.Uint32Max, values["local header offset"] == format.Uint32Max)

			if values["uncompressed size"] == format.Uint32Max {
				assert.Equal(t, tt.entry.UncompressedSize, uncompressed)
				assert.Equal(t, tt.entry.CompressedSize, compressed)
			}
			if values["local header offset"] == format.Uint32Max {
				assert.Equal(t, tt.entry.Offset, offset)
			}
		})
	}
}

func TestWriter_OffsetBookkeeping(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf, quiet, WithStore)

	first, err := w.Add(context.Background(), "first", strings.NewReader("1111"))
	require.NoError(t, err)
	second, err := w.Add(context.Background(), "second", strings.NewReader("22222222"))
	require.NoError(t, err)

	assert.Zero(t, first.Offset)
	// local header + name + payload + data descriptor of the first entry.
	expected := uint64(format.LocalFileHeader.Size() + len("first") + 4 + format.DataDescriptor.Size())
	assert.Equal(t, expected, second.Offset)
	assert.Equal(t, uint64(buf.Len()), w.offset)

	require.NoError(t, w.Close())
	assert.Equal(t, uint64(buf.Len()), w.offset)
}

func TestWriter_ClosedWriterRejectsWork(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, quiet)
	require.NoError(t, w.Close())

	_, err := w.Add(context.Background(), "late", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.ErrorIs(t, w.Close(), ErrWriterClosed)
}

func TestWriter_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWriter(&bytes.Buffer{}, quiet)
	_, err := w.Add(ctx, "x", strings.NewReader("some payload"))
	assert.ErrorIs(t, err, context.Canceled)
}

type failingWriter struct {
	n   int
	dst io.Writer
}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.n -= len(p); f.n < 0 {
		return 0, io.ErrClosedPipe
	}
	return f.dst.Write(p)
}

func TestWriter_IOFailureAborts(t *testing.T) {
	// fails during the payload stream; the error must propagate, no retry.
	w := NewWriter(&failingWriter{n: format.LocalFileHeader.Size() + 5, dst: io.Discard}, quiet, WithStore)
	_, err := w.Add(context.Background(), "a.txt", strings.NewReader("this will not fit"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
