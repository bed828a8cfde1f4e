package filestore

import (
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/trezcool/academia/core/board"
)

var (
	uploadTimeout = 2 * time.Minute
	deleteTimeout = 30 * time.Second
)

// gcsStore keeps blobs as objects of a Google Cloud Storage bucket.
type gcsStore struct {
	client *storage.Client
	bucket string
}

var _ board.FileStore = (*gcsStore)(nil) // interface compliance check

// NewGCSStore connects to bucket. Without a credentials file the client relies on
// application default credentials.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*gcsStore, error) {
	if bucket == "" {
		return nil, errors.New("missing GCS bucket name")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}
	return &gcsStore{client: client, bucket: bucket}, nil
}

func (s *gcsStore) Save(ctx context.Context, key, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "writing object")
	}
	return errors.Wrap(w.Close(), "closing object writer")
}

func (s *gcsStore) Open(ctx context.Context, key string) (board.File, error) {
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, board.ErrFileMissing
		}
		return nil, errors.Wrap(err, "opening object")
	}
	return rc, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return board.ErrFileMissing
		}
		return errors.Wrap(err, "deleting object")
	}
	return nil
}

func (s *gcsStore) Close() error {
	return s.client.Close()
}
