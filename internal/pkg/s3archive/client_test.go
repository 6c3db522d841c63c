package s3archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	headErr error
	created []*s3.CreateBucketInput
	putErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, in)
	return &s3.CreateBucketOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 7, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "webhooks/mpesa/2026/03/07/req-1.json", ObjectKey(" MPesa ", "req-1", at))
	assert.Equal(t, "webhooks/unknown/2026/03/07/req-2.json", ObjectKey("", "req-2", at))
	assert.Equal(t, "webhooks/mpesa/2026/03/07/etcpasswd.json", ObjectKey("mpesa", "../../etc/passwd", at))
	assert.Equal(t, "webhooks/unknown/2026/03/07/abc.json", ObjectKey("../..", "a/b.c", at))
	assert.Equal(t, fmt.Sprintf("webhooks/card/2026/03/07/%d.json", at.UnixNano()), ObjectKey("card", "/../", at))

	long := ObjectKey("card", strings.Repeat("x", 300), at)
	assert.Equal(t, "webhooks/card/2026/03/07/"+strings.Repeat("x", 64)+".json", long)
}

func TestArchive(t *testing.T) {
	api := &fakeS3{}
	c := NewWithAPI(api, "payfox-webhooks")
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, c.Archive(context.Background(), "emola", "req-9", []byte(`{"status":"paid"}`)))
	require.Len(t, api.puts, 1)
	assert.Equal(t, "payfox-webhooks", aws.ToString(api.puts[0].Bucket))
	assert.Equal(t, "webhooks/emola/2026/01/02/req-9.json", aws.ToString(api.puts[0].Key))
	assert.Equal(t, `{"status":"paid"}`, string(api.bodies[0]))
	assert.Equal(t, "emola", api.puts[0].Metadata["provider"])

	api.putErr = errors.New("boom")
	assert.Error(t, c.Archive(context.Background(), "emola", "req-10", []byte(`{}`)))
}

func TestEnsureBucket(t *testing.T) {
	api := &fakeS3{headErr: errors.New("not found")}
	c := NewWithAPI(api, "bucket")

	assert.Error(t, c.ensureBucket(context.Background(), false, false, "us-east-1"))
	assert.Empty(t, api.created)

	require.NoError(t, c.ensureBucket(context.Background(), true, true, "eu-central-1"))
	require.Len(t, api.created, 1)
	require.NotNil(t, api.created[0].CreateBucketConfiguration)
}
