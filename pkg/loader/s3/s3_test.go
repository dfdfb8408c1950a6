package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeGetter struct {
	objects map[string]string
	calls   int
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	if aws.ToString(in.Bucket) != "triples" {
		return nil, errors.New("wrong bucket")
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestGetFile(t *testing.T) {
	f := &fakeGetter{objects: map[string]string{"in/batch.json": "[]"}}
	l := NewS3FileLoaderWithClient("triples", f)

	for range 2 {
		b, err := l.GetFile(context.Background(), "in/batch.json")
		if err != nil || string(b) != "[]" {
			t.Fatalf("GetFile = %q, %v", b, err)
		}
	}
	if f.calls != 1 {
		t.Fatalf("GetObject called %d times, want 1", f.calls)
	}

	if _, err := l.GetFile(context.Background(), "in/missing.json"); err == nil {
		t.Fatal("expected error for missing key")
	}
}
