package uploads

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	key  string
	mime string
	data []byte
	err  error
}

func (f *fakeObjectStore) Put(_ context.Context, key, mime string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key = key
	f.mime = mime
	f.data = append([]byte(nil), data...)
	return "https://files.example/" + key, nil
}

func TestChunkedUploadLifecycle(t *testing.T) {
	store := &fakeObjectStore{}
	uploader := NewUploader(store)

	up := uploader.Init("r1", "screenshot.png", "image/png")
	up.Append([]byte("chunk-one-"))
	up.Append([]byte("chunk-two"))

	attachment, err := up.Finalize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "rooms/r1/screenshot.png", attachment.Key)
	assert.Equal(t, "https://files.example/rooms/r1/screenshot.png", attachment.URL)
	assert.Equal(t, "screenshot.png", attachment.Name)
	assert.Equal(t, "image/png", attachment.Mime)
	assert.Equal(t, int64(len("chunk-one-chunk-two")), attachment.Size)

	// Nothing hits the store until Finalize, and chunks arrive in order.
	assert.Equal(t, []byte("chunk-one-chunk-two"), store.data)
	assert.Equal(t, "image/png", store.mime)
}

func TestFinalizeEmptyUpload(t *testing.T) {
	store := &fakeObjectStore{}
	uploader := NewUploader(store)

	attachment, err := uploader.Init("r1", "empty.txt", "text/plain").Finalize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, attachment.Size)
}

func TestFinalizePutFailure(t *testing.T) {
	store := &fakeObjectStore{err: errors.New("bucket unavailable")}
	uploader := NewUploader(store)

	up := uploader.Init("r1", "doc.pdf", "application/pdf")
	up.Append([]byte("data"))

	_, err := up.Finalize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rooms/r1/doc.pdf")
}
