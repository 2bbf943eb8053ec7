package storage_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory S3API paging two keys at a time.
type fakeS3 struct {
	objects   map[string][]byte
	denied    map[string]bool
	failBatch bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, denied: map[string]bool{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.denied[aws.ToString(in.Key)] {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if f.failBatch {
		return nil, &smithy.GenericAPIError{Code: "SlowDown", Message: "slow down"}
	}
	out := &s3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		k := aws.ToString(id.Key)
		if f.denied[k] {
			out.Errors = append(out.Errors, types.Error{Key: id.Key, Code: aws.String("AccessDenied"), Message: aws.String("denied")})
			continue
		}
		delete(f.objects, k)
	}
	return out, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	keys := make([]string, 0)
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k]))), LastModified: &now})
	}
	return out, nil
}

func TestS3Store_RoundTripAndNotFound(t *testing.T) {
	ctx := context.Background()
	store := storage.NewS3StoreWithClient(newFakeS3(), "bucket")

	require.NoError(t, store.Put(ctx, "ledger/2025/01/02/a.json", []byte(`{"x":1}`)))
	got, err := store.Get(ctx, "ledger/2025/01/02/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(got))

	_, err = store.Get(ctx, "ledger/2025/01/02/missing.json")
	assert.True(t, storage.IsNotFound(err))
}

func TestS3Store_PermissionDeniedIsClassified(t *testing.T) {
	fake := newFakeS3()
	fake.denied["keys/active.json"] = true
	store := storage.NewS3StoreWithClient(fake, "bucket")

	err := store.Put(context.Background(), "keys/active.json", []byte("{}"))
	assert.True(t, storage.IsPermissionDenied(err))
}

func TestS3Store_ListPaginatesAndCaps(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	for _, k := range []string{"p/e.json", "p/a.json", "p/c.json", "p/b.json", "p/d.json", "q/z.json"} {
		fake.objects[k] = []byte("{}")
	}
	store := storage.NewS3StoreWithClient(fake, "bucket")

	objs, err := store.List(ctx, "p/", 0)
	require.NoError(t, err)
	require.Len(t, objs, 5)
	assert.Equal(t, "p/a.json", objs[0].Key)
	assert.Equal(t, "p/e.json", objs[4].Key)

	objs, err = store.List(ctx, "p/", 3)
	require.NoError(t, err)
	assert.Len(t, objs, 3)
}

func TestS3Store_DeleteManyReportsPartialFailures(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.objects["pending/a.json"] = []byte("{}")
	fake.objects["pending/b.json"] = []byte("{}")
	fake.denied["pending/b.json"] = true
	store := storage.NewS3StoreWithClient(fake, "bucket")

	failed, err := storage.DeleteMany(ctx, store, []string{"pending/a.json", "pending/b.json"})
	require.NoError(t, err)
	assert.Len(t, failed, 1)
	assert.Contains(t, failed, "pending/b.json")
	assert.NotContains(t, fake.objects, "pending/a.json")

	fake.failBatch = true
	failed, err = storage.DeleteMany(ctx, store, []string{"pending/b.json"})
	require.NoError(t, err)
	assert.True(t, storage.IsTransient(failed["pending/b.json"]))
}
