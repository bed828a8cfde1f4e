// Package filestore implements board.FileStore on local disk and on Google Cloud Storage.
package filestore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/board"
)

// New returns the file store selected by conf.Storage.FileBackend.
func New(ctx context.Context, conf *core.Config) (board.FileStore, error) {
	switch conf.Storage.FileBackend {
	case core.FileStoreGCS:
		return NewGCSStore(ctx, conf.Storage.GCSBucket, conf.Storage.GCSCredentialsFile)
	case core.FileStoreLocal, "":
		return NewLocalStore(conf.Storage.LocalDir)
	}
	return nil, errors.Errorf("unknown file backend %q", conf.Storage.FileBackend)
}
