package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	putErr  error
	getErr  error
	put     *s3.PutObjectInput
	presign *s3.PutObjectInput
	expires time.Duration
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]string{}} }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.presign = in
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.amazonaws.com/" + aws.ToString(in.Key) + "?X-Amz-Signature=x", Method: "PUT"}, nil
}

func TestS3Store_ReadWriteDelete(t *testing.T) {
	api := newFakeS3()
	store := NewS3Store(api, api, "invoices")
	ctx := context.Background()

	_, err := store.Read(ctx, "abc123")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, store.Write(ctx, "abc123", []byte("payload")))
	assert.Equal(t, "invoices", aws.ToString(api.put.Bucket))
	assert.Equal(t, "*", aws.ToString(api.put.IfNoneMatch))

	data, err := store.Read(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, store.Delete(ctx, "abc123"))
	_, err = store.Read(ctx, "abc123")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3Store_WritePreconditionFailed(t *testing.T) {
	api := newFakeS3()
	api.putErr = &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	store := NewS3Store(api, api, "invoices")

	assert.ErrorIs(t, store.Write(context.Background(), "abc123", []byte("x")), ErrObjectExists)
}

func TestS3Store_ReadErrorIsWrapped(t *testing.T) {
	api := newFakeS3()
	api.getErr = errors.New("connection reset")
	store := NewS3Store(api, api, "invoices")

	_, err := store.Read(context.Background(), "abc123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}

func TestS3Store_PresignPut(t *testing.T) {
	api := newFakeS3()
	store := NewS3Store(api, api, "invoices")

	u, err := store.PresignPut(context.Background(), "abc123", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "abc123")
	assert.Equal(t, 5*time.Minute, api.expires)
	assert.Equal(t, "invoices", aws.ToString(api.presign.Bucket))
}
