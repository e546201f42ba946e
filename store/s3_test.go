package store

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/guidewire-oss/cda-deltasync/model"
)

// newTestS3Gateway points an s3Gateway at an httptest server instead of
// real AWS, swapping the SDK client's transport for a fake server
// rather than mocking the Gateway interface itself.
func newTestS3Gateway(t *testing.T, handler http.Handler) (*s3Gateway, *httptest.Server) {
	t.Helper()
	return newTestS3GatewayWithCap(t, handler, 0)
}

func newTestS3GatewayWithCap(t *testing.T, handler http.Handler, cap int) (*s3Gateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("us-east-1"),
		Endpoint:         aws.String(server.URL),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials("fake", "fake", ""),
		MaxRetries:       aws.Int(0),
	})
	require.NoError(t, err)

	return &s3Gateway{bucket: "my-bucket", svc: s3.New(sess), cap: cap}, server
}

type listBucketResult struct {
	XMLName xml.Name `xml:"ListBucketResult"`
	Contents []struct {
		Key  string `xml:"Key"`
		Size int64  `xml:"Size"`
	} `xml:"Contents"`
}

func TestS3GatewayListReturnsObjects(t *testing.T) {
	body, err := xml.Marshal(listBucketResult{
		Contents: []struct {
			Key  string `xml:"Key"`
			Size int64  `xml:"Size"`
		}{
			{Key: "t1/s1/1000/a.parquet", Size: 10},
			{Key: "t1/s1/1000/b.parquet", Size: 20},
		},
	})
	require.NoError(t, err)

	gw, server := newTestS3Gateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(xml.Header))
		w.Write(body)
	}))
	defer server.Close()

	objs, err := gw.List(context.Background(), "t1/s1/1000/", true)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	require.Equal(t, "t1/s1/1000/a.parquet", objs[0].Key)
	require.Equal(t, int64(20), objs[1].Size)
}

func TestS3GatewayGetHonorsByteRange(t *testing.T) {
	full := []byte("0123456789")

	gw, server := newTestS3Gateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "bytes=2-4" {
			w.WriteHeader(http.StatusPartialContent)
			w.Write(full[2:5])
			return
		}
		w.Write(full)
	}))
	defer server.Close()

	body, err := gw.Get(context.Background(), "key", &ByteRange{Start: 2, End: 5})
	require.NoError(t, err)
	require.Equal(t, []byte("234"), body)
}

func TestS3GatewayGetNotFound(t *testing.T) {
	gw, server := newTestS3Gateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
	}))
	defer server.Close()

	_, err := gw.Get(context.Background(), "missing", nil)
	require.Error(t, err)
	require.True(t, model.IsNotFound(err))
}

func TestS3GatewayPutConditionalConflict(t *testing.T) {
	gw, server := newTestS3Gateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.Header.Get("If-None-Match") == "*" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusPreconditionFailed)
			w.Write([]byte(`<Error><Code>PreconditionFailed</Code><Message>exists</Message></Error>`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := gw.Put(context.Background(), "key", []byte("body"), true)
	require.Error(t, err)
	require.True(t, model.IsConflict(err))
}

func TestS3GatewayGetRetriesTransientFailure(t *testing.T) {
	var attempts int
	gw, server := newTestS3GatewayWithCap(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`<Error><Code>SlowDown</Code><Message>throttled</Message></Error>`))
			return
		}
		w.Write([]byte("ok"))
	}), 3)
	defer server.Close()

	body, err := gw.Get(context.Background(), "key", nil)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), body)
	require.Equal(t, 2, attempts)
}

func TestS3GatewayGetDoesNotRetryAccessDenied(t *testing.T) {
	var attempts int
	gw, server := newTestS3GatewayWithCap(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	}), 3)
	defer server.Close()

	_, err := gw.Get(context.Background(), "key", nil)
	require.Error(t, err)
	require.True(t, model.IsAccessDenied(err))
	require.Equal(t, 1, attempts)
}

func TestS3GatewayScheme(t *testing.T) {
	gw := &s3Gateway{bucket: "my-bucket"}
	require.Equal(t, "s3", gw.Scheme())
	require.Equal(t, "my-bucket", gw.Bucket())
}
