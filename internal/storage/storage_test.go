package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	folder := Classify("farm-a", "visit-1", nil)
	assert.Equal(t, KindFolder, folder.Kind)
	assert.Equal(t, "farm-a/visit-1", folder.Path)
	assert.Nil(t, folder.File)

	file := Classify("", "notes.json", &FileInfo{Size: 3})
	assert.Equal(t, KindFile, file.Kind)
	assert.Equal(t, "notes.json", file.Path)
	assert.False(t, file.IsFolder())
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "a/b/c", Join("/a/", "b", "", "c/"))
	assert.Equal(t, "", Join("", "/"))
	assert.Equal(t, "x", Clean("/x/"))
	assert.Equal(t, "", Clean(" / "))
	assert.Equal(t, "a/b", Join(" a ", " /b/ ", "  "))
}

func TestMemoryListImmediateChildren(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("")
	require.NoError(t, m.Put(ctx, "farm/a.json", "application/json", []byte(`[]`)))
	require.NoError(t, m.Put(ctx, "farm/photos/1.jpg", "image/jpeg", []byte{1, 2}))
	require.NoError(t, m.Put(ctx, "farm/photos/raw/2.jpg", "image/jpeg", []byte{3}))
	require.NoError(t, m.Put(ctx, "other/b.txt", "text/plain", []byte("b")))

	root, err := m.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, root, 2)
	assert.Equal(t, "farm", root[0].Name)
	assert.True(t, root[0].IsFolder())

	entries, err := m.List(ctx, "farm")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.json", entries[0].Name)
	assert.Equal(t, KindFile, entries[0].Kind)
	assert.Equal(t, int64(2), entries[0].File.Size)
	assert.Equal(t, "photos", entries[1].Name)
	assert.Equal(t, KindFolder, entries[1].Kind)
	assert.Equal(t, "farm/photos", entries[1].Path)

	empty, err := m.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryGetDeleteSign(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("https://files.test")
	m.now = func() time.Time { return time.Unix(1000, 0) }
	require.NoError(t, m.Put(ctx, "f/report one.json", "application/json", []byte(`{}`)))

	obj, err := m.Get(ctx, "f/report one.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", obj.ContentType)
	assert.Equal(t, []byte(`{}`), obj.Data)

	url, err := m.SignedURL(ctx, "f/report one.json", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/f/report%20one.json?expires=1060", url)

	require.NoError(t, m.Delete(ctx, "f/report one.json"))
	_, err = m.Get(ctx, "f/report one.json")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, "f"), ErrNotFound)
	_, err = m.SignedURL(ctx, "f/report one.json", time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	pages  []*s3.ListObjectsV2Output
	calls  int
	getErr error
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := f.pages[f.calls]
	f.calls++
	if f.calls < len(f.pages) {
		page.IsTruncated = aws.Bool(true)
		page.NextContinuationToken = aws.String("next")
	}
	return page, nil
}

func (f *fakeS3) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, f.getErr
}

func (f *fakeS3) PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3ListClassifiesPrefixesAsFolders(t *testing.T) {
	fake := &fakeS3{pages: []*s3.ListObjectsV2Output{
		{
			CommonPrefixes: []types.CommonPrefix{{Prefix: aws.String("farm/photos/")}},
			Contents: []types.Object{
				{Key: aws.String("farm/"), Size: aws.Int64(0)},
				{Key: aws.String("farm/horses.json"), Size: aws.Int64(12), ETag: aws.String(`"abc"`)},
			},
		},
		{
			Contents: []types.Object{{Key: aws.String("farm/notes.txt"), Size: aws.Int64(4)}},
		},
	}}
	store := &S3{client: fake, bucket: "assessments"}

	entries, err := store.List(context.Background(), "farm")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, Entry{Name: "photos", Path: "farm/photos", Kind: KindFolder}, entries[0])
	assert.Equal(t, KindFile, entries[1].Kind)
	assert.Equal(t, "farm/horses.json", entries[1].Path)
	assert.Equal(t, "abc", entries[1].File.ETag)
	assert.Equal(t, "notes.txt", entries[2].Name)
	assert.Equal(t, 2, fake.calls)
}

func TestS3ErrorMapping(t *testing.T) {
	store := &S3{client: &fakeS3{getErr: &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}}, bucket: "b"}
	_, err := store.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnauthorized)

	store = &S3{client: &fakeS3{getErr: &types.NoSuchKey{}}, bucket: "b"}
	_, err = store.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	other := errors.New("boom")
	err = mapS3Error("get", "x", other)
	assert.ErrorIs(t, err, other)
	assert.True(t, strings.HasPrefix(err.Error(), "get x"))
}
