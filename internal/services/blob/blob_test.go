package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"episodegen/internal/services"
)

func TestFSPutOverwritesAndStats(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx := context.Background()
	if err := store.Put(ctx, "episodes", "1/2.mp3", []byte("first"), "audio/mpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "episodes", "1/2.mp3", []byte("second!"), "audio/mpeg"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	info, err := store.Stat(ctx, "episodes", "1/2.mp3")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len("second!")) {
		t.Fatalf("expected overwritten size, got %d", info.Size)
	}
	if info.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", info.ContentType)
	}

	entries, err := os.ReadDir(filepath.Join(store.root, "episodes", "1"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files cleaned up, found %d entries", len(entries))
	}

	link, err := store.PresignedGet(ctx, "episodes", "1/2.mp3", time.Hour)
	if err != nil {
		t.Fatalf("PresignedGet: %v", err)
	}
	if !strings.HasPrefix(link, "file://") || !strings.HasSuffix(link, "/episodes/1/2.mp3") {
		t.Fatalf("unexpected url %q", link)
	}
}

func TestFSMissingAndDelete(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Stat(ctx, "episodes", "9/9.mp3"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.PresignedGet(ctx, "episodes", "9/9.mp3", time.Minute); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected presign of missing object to fail, got %v", err)
	}
	if err := store.Delete(ctx, "episodes", "9/9.mp3"); err != nil {
		t.Fatalf("delete missing object should succeed: %v", err)
	}
	if err := store.Put(ctx, "episodes", "9/9.mp3", []byte("x"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, "episodes", "9/9.mp3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Stat(ctx, "episodes", "9/9.mp3"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected deleted object to be gone, got %v", err)
	}
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	for _, key := range []string{"../outside.mp3", "", "/abs.mp3"} {
		if err := store.Put(context.Background(), "episodes", key, []byte("x"), ""); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("key %q: expected validation error, got %v", key, err)
		}
	}
}

type fakeObjects struct {
	puts    []*s3.PutObjectInput
	headErr error
	delErr  error
}

func (f *fakeObjects) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	modified := time.Unix(1700000000, 0)
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(42),
		ContentType:   aws.String("audio/mpeg"),
		LastModified:  &modified,
	}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, _ *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, f.delErr
}

type fakePresign struct {
	expires time.Duration
}

func (f *fakePresign) PresignGetObject(_ context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.example/" + aws.ToString(params.Key) + "?sig=1",
		Method: http.MethodGet,
	}, nil
}

func TestS3PutStatPresign(t *testing.T) {
	objects := &fakeObjects{}
	presign := &fakePresign{}
	store := &S3{objects: objects, presign: presign}
	ctx := context.Background()

	if err := store.Put(ctx, "episodes", "1/2.mp3", []byte("abc"), "audio/mpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	put := objects.puts[0]
	if aws.ToString(put.Bucket) != "episodes" || aws.ToString(put.ContentType) != "audio/mpeg" || aws.ToInt64(put.ContentLength) != 3 {
		t.Fatalf("unexpected put input: %+v", put)
	}
	body, _ := io.ReadAll(put.Body)
	if string(body) != "abc" {
		t.Fatalf("unexpected body %q", body)
	}

	info, err := store.Stat(ctx, "episodes", "1/2.mp3")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 42 || info.ContentType != "audio/mpeg" || info.LastModified.IsZero() {
		t.Fatalf("unexpected info %+v", info)
	}

	link, err := store.PresignedGet(ctx, "episodes", "1/2.mp3", 48*time.Hour)
	if err != nil {
		t.Fatalf("PresignedGet: %v", err)
	}
	if link != "https://bucket.example/1/2.mp3?sig=1" || presign.expires != 48*time.Hour {
		t.Fatalf("unexpected presign %q ttl %s", link, presign.expires)
	}
}

func TestS3ErrorClassification(t *testing.T) {
	objects := &fakeObjects{headErr: &s3types.NotFound{}}
	store := &S3{objects: objects, presign: &fakePresign{}}
	if _, err := store.Stat(context.Background(), "episodes", "x.mp3"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	objects.headErr = &smithy.GenericAPIError{Code: "AccessDenied"}
	if _, err := store.Stat(context.Background(), "episodes", "x.mp3"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	objects.delErr = &smithy.GenericAPIError{Code: "NoSuchKey"}
	if err := store.Delete(context.Background(), "episodes", "x.mp3"); err != nil {
		t.Fatalf("delete of missing key should succeed, got %v", err)
	}
	objects.delErr = errors.New("connection reset")
	if err := store.Delete(context.Background(), "episodes", "x.mp3"); !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}
