// Package s3seek adapts an S3 object into an io.ReadSeeker and io.ReaderAt using
// ranged GetObject calls, so the locate package can scan an archive's tail without
// downloading the object.
package s3seek

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client abstracts the S3 APIs needed to implement Object.
type Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Object reads an S3 object with ranged GetObject calls.
type Object interface {
	io.ReadSeeker
	io.ReaderAt

	// Size returns the object's size, determined by the initial HeadObject.
	Size() int64
}

// DefaultBufferSize is the default value for Options.BufferSize.
const DefaultBufferSize = 64 * 1024

// Options customises New.
type Options struct {
	// BufferSize provides buffered read-ahead for every Read call so consecutive
	// small reads don't each become a GetObject call.
	//
	// Default to DefaultBufferSize. Pass zero or a negative value to disable.
	BufferSize int

	// CtxFn returns the context.Context used with every GetObject call after New
	// returns.
	//
	// Default to context.Background.
	CtxFn func() context.Context
}

// New returns an Object over the given bucket and key.
//
// The initial HeadObject, made with ctx, determines the object's size.
func New(ctx context.Context, client Client, bucket, key string, optFns ...func(*Options)) (Object, error) {
	opts := &Options{
		BufferSize: DefaultBufferSize,
		CtxFn:      context.Background,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("determine object size error: %w", err)
	}

	return &object{
		client:     client,
		bucket:     bucket,
		key:        key,
		ctxFn:      opts.CtxFn,
		size:       aws.ToInt64(head.ContentLength),
		bufferSize: opts.BufferSize,
	}, nil
}

type object struct {
	client      Client
	bucket, key string
	ctxFn       func() context.Context
	off, size   int64
	buf         bytes.Buffer
	bufferSize  int
}

func (o *object) Size() int64 {
	return o.size
}

func (o *object) Read(p []byte) (n int, err error) {
	m := len(p)
	if m == 0 {
		return 0, nil
	}

	// serve from the read-ahead buffer when possible.
	if o.buf.Len() > m {
		n, err = o.buf.Read(p)
		o.off += int64(n)
		return
	}

	rangeStart := o.off + int64(o.buf.Len())
	if rangeStart >= o.size {
		n, err = o.buf.Read(p)
		o.off += int64(n)
		return n, io.EOF
	}

	rangeEnd := min(o.size-1, o.off+int64(max(m, o.bufferSize)))
	out, err := o.client.GetObject(o.ctxFn(), &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", rangeStart, rangeEnd)),
	})
	if err != nil {
		return 0, err
	}

	_, err = o.buf.ReadFrom(out.Body)
	if _ = out.Body.Close(); err != nil {
		return 0, err
	}

	n, err = o.buf.Read(p)
	o.off += int64(n)
	return
}

func (o *object) ReadAt(p []byte, off int64) (n int, err error) {
	m := int64(len(p))
	if m == 0 {
		return 0, nil
	}

	out, err := o.client.GetObject(o.ctxFn(), &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, min(o.size-1, off+m-1))),
	})
	if err != nil {
		return 0, err
	}

	n, err = io.ReadFull(out.Body, p)
	_ = out.Body.Close()
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return
}

var (
	ErrSeekBeforeFirstByte = errors.New("seek ends up before first byte")
	ErrSeekPastLastByte    = errors.New("seek ends up past last byte")
)

func (o *object) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		o.off = offset
		o.buf.Reset()
	case io.SeekCurrent:
		o.off += offset
		if offset > 0 {
			o.buf.Next(int(offset))
		} else {
			o.buf.Reset()
		}
	case io.SeekEnd:
		o.off = o.size + offset
		o.buf.Reset()
	}

	if o.off < 0 {
		return o.off, ErrSeekBeforeFirstByte
	}
	if o.off > o.size {
		return o.off, ErrSeekPastLastByte
	}

	return o.off, nil
}
