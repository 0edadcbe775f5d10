package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/equiptrack/internal/storage"
)

// fakeS3 serves the handful of object calls the store makes, keyed by path.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = body
		f.types[key] = req.Header.Get("Content-Type")
		return respond(http.StatusOK, nil, http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodHead, http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			if req.Method == http.MethodHead {
				return respond(http.StatusNotFound, nil, nil), nil
			}
			return respond(http.StatusNotFound, []byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`), http.Header{"Content-Type": {"application/xml"}}), nil
		}
		header := http.Header{
			"Content-Type":   {f.types[key]},
			"Content-Length": {strconv.Itoa(len(body))},
			"Last-Modified":  {"Mon, 01 Jan 2024 00:00:00 GMT"},
		}
		if req.Method == http.MethodHead {
			return respond(http.StatusOK, nil, header), nil
		}
		return respond(http.StatusOK, body, header), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusMethodNotAllowed, nil, nil), nil
}

func respond(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(bytes.NewReader(body)), ContentLength: int64(len(body))}
}

func newFakeStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://s3.test.local")
	})
	return &Store{client: client, presign: awss3.NewPresignClient(client), bucket: "images"}, fake
}

func TestGetAndDelete(t *testing.T) {
	ctx := context.Background()
	store, fake := newFakeStore(t)
	fake.objects["equipment-images/1-drill.png"] = []byte("png")
	fake.types["equipment-images/1-drill.png"] = "image/png"

	info, rc, err := store.Get(ctx, "equipment-images/1-drill.png")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png", string(body))
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, int64(3), info.Size)

	require.NoError(t, store.Delete(ctx, "equipment-images/1-drill.png"))
	_, _, err = store.Get(ctx, "equipment-images/1-drill.png")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPutStoresObject(t *testing.T) {
	store, fake := newFakeStore(t)

	info, err := store.Put(context.Background(), "equipment-images/2-saw.jpg", bytes.NewReader([]byte("jpeg")), storage.PutOptions{ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "equipment-images/2-saw.jpg", info.Key)
	assert.Contains(t, fake.objects, "equipment-images/2-saw.jpg")
	assert.Equal(t, storage.DriverS3, store.Driver())
}

func TestPresignURL(t *testing.T) {
	store, _ := newFakeStore(t)

	url, err := store.PresignURL(context.Background(), "equipment-images/1-drill.png", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://s3.test.local/images/equipment-images/1-drill.png?"))
	assert.Contains(t, url, "X-Amz-Expires=300")
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
