package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"return.pdf":          "return.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\vat.xls`: "vat.xls",
		"my return (1).pdf":   "my_return_1_.pdf",
		"   ":                 "file",
		"..":                  "file",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Fatalf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckKey(t *testing.T) {
	good := []string{"a", "templates/01h/file.pdf"}
	bad := []string{"", "/abs", "a/../b", "a//b", "./a", `a\b`}
	for _, k := range good {
		if err := CheckKey(k); err != nil {
			t.Fatalf("CheckKey(%q) = %v", k, err)
		}
	}
	for _, k := range bad {
		if err := CheckKey(k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("CheckKey(%q) = %v, want ErrInvalidKey", k, err)
		}
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := Key("submissions", "01j", "main.pdf")

	n, err := s.Put(ctx, key, strings.NewReader("hello"), "application/pdf")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if n != 5 {
		t.Fatalf("size = %d", n)
	}
	rc, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("data = %q", data)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("open after delete = %v", err)
	}
	if _, err := s.Put(ctx, "../escape", strings.NewReader("x"), ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("put escape = %v", err)
	}
}

func TestDisk(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, d)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := *in.Bucket + "/" + *in.Key
	f.objects[k] = data
	if in.ContentType != nil {
		f.types[k] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	api := newFakeS3()
	s := NewS3Store(api, "filings", "/uploads/")
	exerciseStore(t, s)

	if _, err := s.Put(context.Background(), "templates/a.xlsx", bytes.NewReader([]byte("xy")), "application/vnd.ms-excel"); err != nil {
		t.Fatal(err)
	}
	if got := api.types["filings/uploads/templates/a.xlsx"]; got != "application/vnd.ms-excel" {
		t.Fatalf("content type = %q", got)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatal("expected error")
	}
}
