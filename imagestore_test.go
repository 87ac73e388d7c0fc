package pubsync

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	meta    map[string]*s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, meta: map[string]*s3.PutObjectInput{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.meta[key] = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]; !ok {
		return nil, errors.New("not found")
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3ImageStore(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3ImageStore(fake, "media", "https://cdn.example.com/")

	assert.False(t, store.Exists(ctx, "cat.jpg"))

	loc, err := store.Put(ctx, "cat.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/uploads/cat.jpg", loc)
	assert.Equal(t, []byte("jpeg"), fake.objects["media/uploads/cat.jpg"])
	assert.Equal(t, "image/jpeg", aws.ToString(fake.meta["media/uploads/cat.jpg"].ContentType))
	assert.True(t, store.Exists(ctx, "cat.jpg"))
}

func TestS3UploadKeepsAbsoluteURL(t *testing.T) {
	fake := newFakeS3()
	a, _ := newTestApp(t, SiteConfig{})
	a.Images = newS3ImageStore(fake, "media", "https://cdn.example.com")

	req := uploadRequest(t, "dog.png", pngBytes(t, 10, 10))
	rec := serve(a, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	out := decode[UploadedImage](t, rec)
	assert.Equal(t, "https://cdn.example.com/uploads/dog.jpg", out.ImageURL)
	assert.Equal(t, out.ImageURL, out.ImagePath)
}

func TestDiskImageStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "uploads")
	store := DiskImageStore{Dir: dir, URLPrefix: "/uploads"}

	assert.False(t, store.Exists(ctx, "a.jpg"))
	loc, err := store.Put(ctx, "a.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/a.jpg", loc)
	assert.True(t, store.Exists(ctx, "a.jpg"))

	data, err := os.ReadFile(filepath.Join(dir, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}
