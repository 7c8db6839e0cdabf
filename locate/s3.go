package locate

import (
	"context"
	"iter"

	"github.com/nguyenvh/bigzip/s3seek"
)

// FindFromS3 scans an S3 object's tail instead, using ranged reads so the object is
// never downloaded in full.
//
// Returns the decoded Tail and an iterator over the central directory entries.
func FindFromS3(ctx context.Context, client s3seek.Client, bucket, key string, optFns ...func(*Options)) (Tail, iter.Seq2[Header, error], error) {
	obj, err := s3seek.New(ctx, client, bucket, key, func(opts *s3seek.Options) {
		opts.CtxFn = func() context.Context { return ctx }
	})
	if err != nil {
		return Tail{}, nil, err
	}

	t, err := Find(obj, obj.Size(), optFns...)
	if err != nil {
		return t, nil, err
	}

	return t, Entries(obj, t), nil
}
