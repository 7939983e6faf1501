package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeAPI struct {
	put     *s3.PutObjectInput
	body    string
	getKey  string
	failPut error
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	f.put = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getKey = aws.ToString(in.Key)
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "analyses/u/a.json", want: "analyses/u/a.json"},
		{name: "simple prefix", prefix: "root", key: "analyses/u/a.json", want: "root/analyses/u/a.json"},
		{name: "prefix trailing slash", prefix: "root/", key: "analyses/u/a.json", want: "root/analyses/u/a.json"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/analyses/u/a.json", want: "root/analyses/u/a.json"},
		{name: "nested prefix", prefix: "root/sub", key: "analyses/u/a.json", want: "root/sub/analyses/u/a.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestPutUsesKMSWhenConfigured(t *testing.T) {
	api := &fakeAPI{}
	store := NewWithClient(api, "bucket", "/archive/", "kms-123")

	n, err := store.Put(context.Background(), "analyses/u/a.json", "application/json", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 bytes counted, got %d", n)
	}
	if got := aws.ToString(api.put.Key); got != "archive/analyses/u/a.json" {
		t.Fatalf("unexpected key %q", got)
	}
	if api.put.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms || aws.ToString(api.put.SSEKMSKeyId) != "kms-123" {
		t.Fatalf("expected KMS encryption, got %v", api.put.ServerSideEncryption)
	}
	if aws.ToString(api.put.ContentType) != "application/json" {
		t.Fatalf("unexpected content type %q", aws.ToString(api.put.ContentType))
	}
}

func TestPutDefaultsToAES(t *testing.T) {
	api := &fakeAPI{}
	store := NewWithClient(api, "bucket", "", "")
	if _, err := store.Put(context.Background(), "k.json", "application/json", strings.NewReader("{}")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if api.put.ServerSideEncryption != s3types.ServerSideEncryptionAes256 {
		t.Fatalf("expected AES256, got %v", api.put.ServerSideEncryption)
	}
}

func TestPutWrapsError(t *testing.T) {
	boom := errors.New("boom")
	store := NewWithClient(&fakeAPI{failPut: boom}, "bucket", "", "")
	_, err := store.Put(context.Background(), "k.json", "application/json", strings.NewReader("{}"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestOpenAppliesPrefix(t *testing.T) {
	api := &fakeAPI{body: "payload"}
	store := NewWithClient(api, "bucket", "root", "")
	rc, err := store.Open(context.Background(), "k.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "payload" || api.getKey != "root/k.json" {
		t.Fatalf("unexpected open result body=%q key=%q", b, api.getKey)
	}
}
