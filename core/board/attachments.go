package board

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type (
	// File is an opened attachment blob.
	File = io.ReadCloser

	// FileStore keeps attachment blobs by key.
	FileStore interface {
		Save(ctx context.Context, key, contentType string, r io.Reader) error
		// Open returns ErrFileMissing for unknown keys.
		Open(ctx context.Context, key string) (File, error)
		Delete(ctx context.Context, key string) error
	}

	// Upload is one file of a multipart request.
	Upload struct {
		FileName    string
		ContentType string
		Size        int64
		Body        io.Reader
	}
)

var allowedContentTypes = []string{
	"image/",
	"text/",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.",
	"application/zip",
	"application/x-zip-compressed",
}

func isAllowedContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	for _, allowed := range allowedContentTypes {
		if strings.HasSuffix(allowed, "/") || strings.HasSuffix(allowed, ".") {
			if strings.HasPrefix(mt, allowed) {
				return true
			}
		} else if mt == allowed {
			return true
		}
	}
	return false
}

// storedFileName gives a blob a unique key, keeping the original extension.
func storedFileName(original string) string {
	return uuid.New().String() + strings.ToLower(filepath.Ext(original))
}

func (svc *service) validateUpload(up Upload) error {
	var msg string
	switch {
	case up.Size <= 0:
		msg = errEmptyFile
	case svc.maxUploadSize > 0 && up.Size > svc.maxUploadSize:
		msg = errFileTooLarge
	case !isAllowedContentType(up.ContentType):
		msg = errFileTypeRejected
	default:
		return nil
	}
	return core.NewValidationError(nil, core.FieldError{Field: up.FileName, Error: msg})
}

// UploadAttachments stores every upload concurrently. Either all files are attached
// or none is: blobs and rows already saved are removed when any upload fails.
func (svc *service) UploadAttachments(ctx context.Context, actor user.User, postID string, uploads ...Upload) ([]Attachment, error) {
	if len(uploads) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "files", Error: errNoFiles})
	}
	p, err := svc.repo.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !p.CanEdit(&actor) {
		return nil, core.ErrPermissionDenied
	}
	for _, up := range uploads {
		if err = svc.validateUpload(up); err != nil {
			return nil, err
		}
	}

	var (
		mu    sync.Mutex
		saved = make([]Attachment, len(uploads))
		done  = make([]bool, len(uploads))
		keys  = make([]string, 0, len(uploads))
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		i, up := i, up
		g.Go(func() error {
			key := storedFileName(up.FileName)
			body := io.LimitReader(up.Body, up.Size)
			if err := svc.files.Save(gctx, key, up.ContentType, body); err != nil {
				return errors.Wrapf(err, "saving %s", up.FileName)
			}
			mu.Lock()
			keys = append(keys, key)
			mu.Unlock()

			att, err := svc.repo.CreateAttachment(gctx, Attachment{
				ID:               uuid.New().String(),
				PostID:           p.ID,
				OriginalFileName: filepath.Base(up.FileName),
				StoredFileName:   key,
				FileSize:         up.Size,
				ContentType:      up.ContentType,
				CreatedAt:        core.Now(),
			})
			if err != nil {
				return errors.Wrapf(err, "recording %s", up.FileName)
			}
			saved[i], done[i] = att, true
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		// the request context may be the reason of the failure
		cleanup := context.Background()
		for i, ok := range done {
			if ok {
				if derr := svc.repo.DeleteAttachment(cleanup, saved[i].ID); derr != nil {
					svc.logger.Error("removing attachment row", errors.Wrap(derr, saved[i].ID))
				}
			}
		}
		for _, key := range keys {
			svc.removeFile(cleanup, key)
		}
		return nil, err
	}
	return saved, nil
}

func (svc *service) OpenAttachment(ctx context.Context, viewer *user.User, id string) (Attachment, File, error) {
	att, err := svc.repo.GetAttachment(ctx, id)
	if err != nil {
		return Attachment{}, nil, err
	}
	p, err := svc.repo.GetPost(ctx, att.PostID)
	if err != nil {
		return Attachment{}, nil, err
	}
	if !p.CanView(viewer) {
		return Attachment{}, nil, core.ErrPermissionDenied
	}

	f, err := svc.files.Open(ctx, att.StoredFileName)
	if err != nil {
		if errors.Cause(err) == ErrFileMissing {
			return Attachment{}, nil, ErrAttachmentNotFound
		}
		return Attachment{}, nil, errors.Wrap(err, "opening attachment")
	}
	return att, f, nil
}

func (svc *service) DeleteAttachment(ctx context.Context, actor user.User, id string) error {
	att, err := svc.repo.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	p, err := svc.repo.GetPost(ctx, att.PostID)
	if err != nil {
		return err
	}
	if !p.CanEdit(&actor) {
		return core.ErrPermissionDenied
	}
	if err = svc.repo.DeleteAttachment(ctx, id); err != nil {
		return errors.Wrap(err, "deleting attachment")
	}
	svc.removeFile(ctx, att.StoredFileName)
	return nil
}
