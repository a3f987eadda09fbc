package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rangeClient serves GetObject range requests from an in-memory object.
type rangeClient struct {
	t    *testing.T
	data []byte
}

func (c *rangeClient) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.t.Helper()

	require.NotNil(c.t, input.Range)

	var start, end int64
	spec := strings.TrimPrefix(*input.Range, "bytes=")
	if rest, ok := strings.CutPrefix(spec, "-"); ok {
		n, err := strconv.ParseInt(rest, 10, 64)
		require.NoError(c.t, err)
		start, end = int64(len(c.data))-n, int64(len(c.data))-1
	} else {
		from, to, ok := strings.Cut(spec, "-")
		require.True(c.t, ok)
		var err error
		start, err = strconv.ParseInt(from, 10, 64)
		require.NoError(c.t, err)
		end, err = strconv.ParseInt(to, 10, 64)
		require.NoError(c.t, err)
	}

	if start < 0 || end >= int64(len(c.data)) {
		return nil, fmt.Errorf("range %s not satisfiable", *input.Range)
	}

	n := end - start + 1
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(c.data[start : end+1])),
		ContentLength: aws.Int64(n),
	}, nil
}

func (c *rangeClient) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(c.data)))}, nil
}

func TestS3_Size(t *testing.T) {
	f := NewS3(&rangeClient{t: t, data: testData}, "my-bucket", "path/to/data.zip")

	size, err := f.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(testData)), size)
}

func TestS3_Fetch(t *testing.T) {
	f := NewS3(&rangeClient{t: t, data: testData}, "my-bucket", "path/to/data.zip")

	data, err := f.Fetch(context.Background(), 100, 57)
	require.NoError(t, err)
	assert.Equal(t, testData[100:157], data)
}

func TestS3_FetchSuffix(t *testing.T) {
	f := NewS3(&rangeClient{t: t, data: testData}, "my-bucket", "path/to/data.zip")

	data, err := f.FetchSuffix(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, testData[len(testData)-100:], data)
}

func TestS3_ModifyInputs(t *testing.T) {
	var sawGet, sawHead bool

	f := NewS3(&rangeClient{t: t, data: testData}, "my-bucket", "path/to/data.zip",
		func(opts *S3Options) {
			opts.ModifyGetObjectInput = func(input *s3.GetObjectInput) {
				sawGet = true
				assert.Equal(t, "my-bucket", *input.Bucket)
				assert.Equal(t, "path/to/data.zip", *input.Key)
			}
			opts.ModifyHeadObjectInput = func(input *s3.HeadObjectInput) {
				sawHead = true
			}
		})

	_, err := f.Size(context.Background())
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), 0, 1)
	require.NoError(t, err)

	assert.True(t, sawGet)
	assert.True(t, sawHead)
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		url         string
		bucket, key string
		wantErr     bool
	}{
		{url: "s3://my-bucket/data.zip", bucket: "my-bucket", key: "data.zip"},
		{url: "s3://my-bucket/deep/path/data.zip", bucket: "my-bucket", key: "deep/path/data.zip"},
		{url: "s3://my-bucket", wantErr: true},
		{url: "s3://my-bucket/", wantErr: true},
		{url: "s3:///data.zip", wantErr: true},
		{url: "https://example.com/data.zip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			bucket, key, err := ParseS3URL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}
