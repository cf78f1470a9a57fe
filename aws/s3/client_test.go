package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// fakeS3 serves a fixed set of objects from one bucket.
type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
	lists   int
}

func (f *fakeS3) ListObjectsWithContext(ctx aws.Context, in *s3.ListObjectsInput, opts ...request.Option) (*s3.ListObjectsOutput, error) {
	f.lists++
	out := &s3.ListObjectsOutput{IsTruncated: aws.Bool(false)}
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
		}
	}
	if n := int(aws.Int64Value(in.MaxKeys)); len(out.Contents) > n {
		out.Contents = out.Contents[:n]
		out.IsTruncated = aws.Bool(true)
	}
	return out, nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	v, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(v))}, nil
}

func newFakeClient(api *fakeS3) *Client {
	return NewClientWithFactory("us-west-2", func(bucket, region string) (BasicClient, error) {
		return NewBasicClientWithAPI(bucket, region, "", api), nil
	})
}

func TestParseDSN(t *testing.T) {
	b, err := ParseDSN("s3://udacity-dend/log_data/", "us-west-2")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name != "udacity-dend" || b.Prefix != "log_data" || b.Region != "us-west-2" {
		t.Fatal("unexpected bucket. Got: ", b)
	}
	if _, err := ParseDSN("gs://bucket/x", "us-west-2"); err == nil {
		t.Fatal("expected error for non-s3 scheme")
	}
	if _, err := ParseDSN("s3://bucket/x", ""); err == nil {
		t.Fatal("expected error for missing region")
	}
}

func TestClientS3(t *testing.T) {
	api := &fakeS3{objects: map[string]string{
		"log_data/2018/11/a.json": "{}",
		"log_data/2018/11/b.json": "{}",
		"log_json_path.json":      `{"jsonpaths": ["$.a"]}`,
	}}
	c := newFakeClient(api)
	ctx := context.Background()
	if err := c.Exists(ctx, "s3://udacity-dend/log_data"); err != nil {
		t.Fatal(err)
	}
	if err := c.Exists(ctx, "s3://udacity-dend/song_data"); err == nil {
		t.Fatal("expected error for an empty prefix")
	}
	data, err := c.Get(ctx, "s3://udacity-dend/log_json_path.json")
	if err != nil || !strings.Contains(string(data), "jsonpaths") {
		t.Fatal("unexpected object content. Got: ", string(data), err)
	}
	if _, err = c.Get(ctx, "s3://udacity-dend/missing.json"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatal("expected ErrKeyNotFound. Got: ", err)
	}
}

func TestBasicClientListLimit(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"p/a": "", "p/b": "", "p/c": ""}}
	bc := NewBasicClientWithAPI("bucket", "us-west-2", "p", api)
	keys, err := bc.List(context.Background(), "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || api.lists != 1 {
		t.Fatal("expected a single page of 2 keys. Got: ", keys, " after ", api.lists, " calls")
	}
}

func TestClientLocal(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "song_data", "A", "B")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "TRAAA.json"), []byte(`{"song_id": "S1"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	c := NewClient("us-west-2")
	ctx := context.Background()
	for _, uri := range []string{filepath.Join(dir, "song_data"), filepath.Join(dir, "song_data", "**", "*.json"), filepath.Join(sub, "TRAAA.json")} {
		if err := c.Exists(ctx, uri); err != nil {
			t.Fatal("expected objects at ", uri, ": ", err)
		}
	}
	for _, uri := range []string{filepath.Join(dir, "empty"), filepath.Join(dir, "missing")} {
		if err := c.Exists(ctx, uri); err == nil {
			t.Fatal("expected error for ", uri)
		}
	}
	if _, err := c.Get(ctx, filepath.Join(dir, "missing.json")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatal("expected ErrKeyNotFound. Got: ", err)
	}
}
