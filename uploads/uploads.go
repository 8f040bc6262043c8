package uploads

import (
	"bytes"
	"context"
	"fmt"
	"path"

	storage_go "github.com/supabase-community/storage-go"
)

// Attachment is what the message pipeline consumes after an upload
// completes; the chunking mechanics stay in this package.
type Attachment struct {
	Key        string `json:"key"`
	URL        string `json:"url"`
	Name       string `json:"name"`
	Mime       string `json:"mime"`
	Size       int64  `json:"size"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// objectStore is the final-put seam; the supabase client satisfies it.
type objectStore interface {
	Put(ctx context.Context, key, mime string, data []byte) (url string, err error)
}

// Uploader runs the chunked init/append/finalize lifecycle. Chunks
// accumulate in memory and the object is written once on Finalize.
type Uploader struct {
	store objectStore
}

func NewUploader(store objectStore) *Uploader {
	return &Uploader{store: store}
}

// Upload is one in-flight chunked upload.
type Upload struct {
	uploader *Uploader
	key      string
	name     string
	mime     string
	buf      bytes.Buffer
}

// Init starts an upload. The storage key namespaces the object under its
// room so orphaned uploads are attributable.
func (u *Uploader) Init(roomID, name, mime string) *Upload {
	return &Upload{
		uploader: u,
		key:      path.Join("rooms", roomID, name),
		name:     name,
		mime:     mime,
	}
}

func (up *Upload) Append(chunk []byte) {
	up.buf.Write(chunk)
}

// Finalize writes the object and returns the attachment descriptor.
func (up *Upload) Finalize(ctx context.Context) (Attachment, error) {
	url, err := up.uploader.store.Put(ctx, up.key, up.mime, up.buf.Bytes())
	if err != nil {
		return Attachment{}, fmt.Errorf("finalize upload %s: %w", up.key, err)
	}
	return Attachment{
		Key:  up.key,
		URL:  url,
		Name: up.name,
		Mime: up.mime,
		Size: int64(up.buf.Len()),
	}, nil
}

// SupabaseStore backs the uploader with a supabase storage bucket.
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
}

func NewSupabaseStore(url, apiKey, bucket string) *SupabaseStore {
	return &SupabaseStore{
		client: storage_go.NewClient(url, apiKey, nil),
		bucket: bucket,
	}
}

func (s *SupabaseStore) Put(_ context.Context, key, mime string, data []byte) (string, error) {
	_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &mime,
	})
	if err != nil {
		return "", err
	}
	resp := s.client.GetPublicUrl(s.bucket, key)
	return resp.SignedURL, nil
}
