package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcus-cloud/objstore-go/connection"
)

func TestBlob_PathEscaping(t *testing.T) {
	mock := connection.NewMockTransport().StubResponse(200, `{"name":"logs/2026/app.log"}`)
	client := newTestClient(mock)
	defer client.Close()

	_, err := client.Bucket("my-bucket").Object("logs/2026/app.log").Attrs(context.Background())

	require.NoError(t, err)
	// The name is one path segment; its slashes must not create URL
	// hierarchy.
	assert.Equal(t, "/storage/v1/b/my-bucket/o/logs%2F2026%2Fapp.log",
		mock.LastRequest().URL.RawPath)
}

func TestBlob_Attrs(t *testing.T) {
	mock := connection.NewMockTransport().StubResponse(200,
		`{"name":"a.txt","bucket":"my-bucket","size":"12","generation":"1700000000000000"}`)
	client := newTestClient(mock)
	defer client.Close()

	attrs, err := client.Bucket("my-bucket").Object("a.txt").Attrs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "a.txt", attrs.Name)
	assert.Equal(t, "12", attrs.Size)
	assert.Equal(t, "1700000000000000", attrs.Generation)
}

func TestBlob_Download(t *testing.T) {
	mock := connection.NewMockTransport().StubResponse(200, "raw object content")
	client := newTestClient(mock)
	defer client.Close()

	data, err := client.Bucket("my-bucket").Object("a.txt").
		Download(context.Background(), &Conditions{Generation: 123})

	require.NoError(t, err)
	assert.Equal(t, "raw object content", string(data))

	q := mock.LastRequest().URL.Query()
	assert.Equal(t, "media", q.Get("alt"))
	assert.Equal(t, "123", q.Get("generation"))
}

func TestBlob_Delete(t *testing.T) {
	t.Run("given generation precondition, then it is forwarded", func(t *testing.T) {
		mock := connection.NewMockTransport().StubResponse(204, "")
		client := newTestClient(mock)
		defer client.Close()

		err := client.Bucket("my-bucket").Object("a.txt").
			Delete(context.Background(), &Conditions{GenerationMatch: 42})

		require.NoError(t, err)
		sent := mock.LastRequest()
		assert.Equal(t, "DELETE", sent.Method)
		assert.Equal(t, "42", sent.URL.Query().Get("ifGenerationMatch"))
	})

	t.Run("given no precondition and transient failure, then exactly one attempt", func(t *testing.T) {
		mock := connection.NewMockTransport().StubResponse(502, "Bad Gateway")
		client := newTestClient(mock)
		defer client.Close()

		err := client.Bucket("my-bucket").Object("a.txt").Delete(context.Background(), nil)

		require.Error(t, err)
		assert.Equal(t, 1, mock.RequestCount(),
			"unconditional delete is not idempotent and must not be retried")
	})
}

func TestBlob_Patch(t *testing.T) {
	mock := connection.NewMockTransport().StubResponse(200,
		`{"name":"a.txt","contentType":"text/plain","metageneration":"5"}`)
	client := newTestClient(mock)
	defer client.Close()

	updated, err := client.Bucket("my-bucket").Object("a.txt").Patch(
		context.Background(),
		&ObjectAttrs{ContentType: "text/plain"},
		&Conditions{MetagenerationMatch: 4},
	)

	require.NoError(t, err)
	assert.Equal(t, "5", updated.Metageneration)

	sent := mock.LastRequest()
	assert.Equal(t, "PATCH", sent.Method)
	assert.Equal(t, "4", sent.URL.Query().Get("ifMetagenerationMatch"))

	bodies := mock.RequestBodies()
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"contentType":"text/plain"}`, string(bodies[0]))
}

func TestBlob_CopyTo(t *testing.T) {
	mock := connection.NewMockTransport().StubResponse(200,
		`{"name":"copy.txt","bucket":"dst-bucket"}`)
	client := newTestClient(mock)
	defer client.Close()

	src := client.Bucket("src-bucket").Object("orig.txt")
	dst := client.Bucket("dst-bucket").Object("copy.txt")

	copied, err := src.CopyTo(context.Background(), dst, nil)

	require.NoError(t, err)
	assert.Equal(t, "copy.txt", copied.Name)
	assert.Equal(t, "dst-bucket", copied.Bucket)

	sent := mock.LastRequest()
	assert.Equal(t, "POST", sent.Method)
	assert.Equal(t, "/storage/v1/b/src-bucket/o/orig.txt/copyTo/b/dst-bucket/o/copy.txt",
		sent.URL.Path)
}
