package fetch

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client abstracts the S3 API needed by the S3 fetcher.
type S3Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Options customises NewS3.
type S3Options struct {
	// ModifyGetObjectInput can be used to modify the GetObject input
	// parameters such as adding ExpectedBucketOwner.
	ModifyGetObjectInput func(*s3.GetObjectInput)

	// ModifyHeadObjectInput can be used to modify the HeadObject input
	// parameters such as adding ExpectedBucketOwner.
	ModifyHeadObjectInput func(*s3.HeadObjectInput)
}

// NewS3 returns a Fetcher using ranged GetObject calls against the given
// bucket and key. The AWS SDK supplies its own retry behaviour so the fetcher
// adds none of its own.
func NewS3(client S3Client, bucket, key string, optFns ...func(*S3Options)) Fetcher {
	opts := &S3Options{}
	for _, fn := range optFns {
		fn(opts)
	}

	return &s3Fetcher{
		client:                client,
		bucket:                bucket,
		key:                   key,
		modifyGetObjectInput:  opts.ModifyGetObjectInput,
		modifyHeadObjectInput: opts.ModifyHeadObjectInput,
	}
}

// ParseS3URL splits an "s3://bucket/key" locator into bucket and key.
func ParseS3URL(url string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf(`fetch: locator "%s" is not an s3:// URL`, url)
	}

	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf(`fetch: locator "%s" must look like s3://bucket/key`, url)
	}

	return bucket, key, nil
}

type s3Fetcher struct {
	client                S3Client
	bucket, key           string
	modifyGetObjectInput  func(*s3.GetObjectInput)
	modifyHeadObjectInput func(*s3.HeadObjectInput)
}

func (f *s3Fetcher) Size(ctx context.Context) (int64, error) {
	input := &s3.HeadObjectInput{Bucket: &f.bucket, Key: &f.key}
	if f.modifyHeadObjectInput != nil {
		f.modifyHeadObjectInput(input)
	}

	output, err := f.client.HeadObject(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("head s3://%s/%s error: %w", f.bucket, f.key, err)
	}

	if output.ContentLength == nil {
		return 0, ErrUnknownSize
	}

	return *output.ContentLength, nil
}

func (f *s3Fetcher) Fetch(ctx context.Context, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("fetch: invalid span length %d", length)
	}

	return f.getRange(ctx, fmt.Sprintf("bytes=%d-%d", offset, offset+length-1), length)
}

func (f *s3Fetcher) FetchSuffix(ctx context.Context, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("fetch: invalid suffix length %d", length)
	}

	return f.getRange(ctx, fmt.Sprintf("bytes=-%d", length), length)
}

func (f *s3Fetcher) getRange(ctx context.Context, rangeBytes string, length int64) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: &f.bucket,
		Key:    &f.key,
		Range:  aws.String(rangeBytes),
	}
	if f.modifyGetObjectInput != nil {
		f.modifyGetObjectInput(input)
	}

	output, err := f.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s range %s error: %w", f.bucket, f.key, rangeBytes, err)
	}

	data, err := io.ReadAll(output.Body)
	if _ = output.Body.Close(); err != nil {
		return nil, fmt.Errorf("read s3://%s/%s range %s body error: %w", f.bucket, f.key, rangeBytes, err)
	}

	if int64(len(data)) != length {
		return nil, fmt.Errorf("got %d bytes for range %s, expected %d: %w", len(data), rangeBytes, length, ErrRangeUnsupported)
	}

	return data, nil
}
