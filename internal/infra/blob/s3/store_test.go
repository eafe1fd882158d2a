package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"formsentry/internal/blob/core"
)

func TestGetMissingKeyMapsToNotFound(t *testing.T) {
	store := newFakeStore(map[string][]byte{})

	_, _, err := store.Get(context.Background(), "runs/absent.json")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("want core.ErrNotFound, got %v", err)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store := newFakeStore(map[string][]byte{"runs/r1.json": []byte(`{}`)})
	ctx := context.Background()

	existed, err := store.Delete(ctx, "runs/r1.json")
	if err != nil || !existed {
		t.Fatalf("delete existing: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "runs/r1.json")
	if err != nil || existed {
		t.Fatalf("delete missing: existed=%v err=%v", existed, err)
	}
}

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	t.Setenv("FORMSENTRY_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("missing bucket accepted")
	}
}

// newFakeStore builds a Store whose client talks to an in-memory transport
// instead of the network.
func newFakeStore(objects map[string][]byte) *Store {
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: &fakeTransport{objects: objects}}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://blob.test.local")
	})
	return &Store{client: client, bucket: "test-bucket"}
}

// fakeTransport answers the Head/Get/Delete calls the store issues, including
// the error shapes S3 produces for missing keys.
type fakeTransport struct {
	objects map[string][]byte
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	body, exists := f.objects[key]

	switch req.Method {
	case http.MethodHead:
		if !exists {
			// HeadObject signals missing keys by status code alone.
			return response(http.StatusNotFound, nil, nil), nil
		}
		return response(http.StatusOK, nil, objectHeaders(body)), nil
	case http.MethodGet:
		if !exists {
			xml := `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>no such key</Message></Error>`
			return response(http.StatusNotFound, []byte(xml), http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return response(http.StatusOK, body, objectHeaders(body)), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     header,
	}
}

func objectHeaders(body []byte) http.Header {
	return http.Header{
		"Content-Length": {fmt.Sprintf("%d", len(body))},
		"Content-Type":   {"application/json"},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		"ETag":           {`"etag"`},
	}
}
