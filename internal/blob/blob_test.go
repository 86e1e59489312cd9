package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	objects map[string][]byte
	puts    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.puts = append(f.puts, key)
	return &s3.PutObjectOutput{}, nil
}

func TestBytesInline(t *testing.T) {
	c := NewClient()
	var lastRead, lastTotal int64
	got, err := c.Bytes(context.Background(), FromBytes([]byte("payload")), func(read, total int64) {
		lastRead, lastTotal = read, total
	})
	if err != nil {
		t.Fatalf("Bytes returned error: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("Bytes = %q, want payload", got)
	}
	if lastRead != 7 || lastTotal != 7 {
		t.Fatalf("progress = %d/%d, want 7/7", lastRead, lastTotal)
	}
}

func TestBytesHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/app.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("zip-bytes"))
	}))
	defer server.Close()

	c := NewClient(WithHTTPClient(server.Client()))
	calls := 0
	got, err := c.Bytes(context.Background(), FromURL(server.URL+"/files/app.zip"), func(read, total int64) {
		calls++
	})
	if err != nil {
		t.Fatalf("Bytes returned error: %v", err)
	}
	if string(got) != "zip-bytes" {
		t.Fatalf("Bytes = %q", got)
	}
	if calls == 0 {
		t.Fatalf("expected progress callback")
	}
}

func TestBytesHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(WithHTTPClient(server.Client()))
	_, err := c.Bytes(context.Background(), FromURL(server.URL), nil)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("error should carry status: %v", err)
	}
}

func TestBytesS3(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{"releases/win/app.exe": []byte("exe")}}
	c := NewClient(WithS3(api))

	got, err := c.Bytes(context.Background(), FromURL("s3://releases/win/app.exe"), nil)
	if err != nil {
		t.Fatalf("Bytes returned error: %v", err)
	}
	if string(got) != "exe" {
		t.Fatalf("Bytes = %q", got)
	}

	if _, err := c.Bytes(context.Background(), FromURL("s3://releases/missing"), nil); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed for missing key, got %v", err)
	}
}

func TestBytesRejectsBadRefs(t *testing.T) {
	c := NewClient()
	if _, err := c.Bytes(context.Background(), Ref{}, nil); !errors.Is(err, ErrEmptyRef) {
		t.Fatalf("expected ErrEmptyRef, got %v", err)
	}
	if _, err := c.Bytes(context.Background(), FromURL("ftp://host/file"), nil); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := c.Bytes(context.Background(), FromURL("s3://bucket-only"), nil); !errors.Is(err, ErrEmptyRef) {
		t.Fatalf("expected ErrEmptyRef for s3 url without key, got %v", err)
	}
}

func TestPutInlineWithoutBucket(t *testing.T) {
	c := NewClient()
	ref, err := c.Put(context.Background(), []byte("data"), "app.zip")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if ref.URL != "" || string(ref.Inline) != "data" {
		t.Fatalf("expected inline ref, got %+v", ref)
	}
}

func TestPutToBucket(t *testing.T) {
	api := &fakeS3{}
	c := NewClient(WithS3(api), WithUploadBucket("uploads"))

	ref, err := c.Put(context.Background(), []byte("data"), "app.zip")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if !strings.HasPrefix(ref.URL, "s3://uploads/builds/") || !strings.HasSuffix(ref.URL, "/app.zip") {
		t.Fatalf("unexpected ref url %q", ref.URL)
	}
	got, err := c.Bytes(context.Background(), ref, nil)
	if err != nil {
		t.Fatalf("Bytes after Put returned error: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("round trip = %q", got)
	}
}

func TestRefJSONShape(t *testing.T) {
	var ref Ref
	if err := json.Unmarshal([]byte(`{"url":"https://cdn.example/app.zip"}`), &ref); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ref.DirectURL() != "https://cdn.example/app.zip" || ref.IsZero() {
		t.Fatalf("unexpected ref %+v", ref)
	}
}
