package board

import (
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var (
	ErrPostNotFound       = core.NewNotFoundError("post not found")
	ErrCommentNotFound    = core.NewNotFoundError("comment not found")
	ErrAttachmentNotFound = core.NewNotFoundError("attachment not found")
	ErrUnknownBoard       = core.NewNotFoundError("board not found")

	// ErrFileMissing is returned by FileStore.Open for unknown keys.
	ErrFileMissing = errors.New("file does not exist")

	errNoticeAdminOnly  = "only admins can post notices"
	errEmptyFile        = "file is empty"
	errFileTooLarge     = "file is too large"
	errFileTypeRejected = "file type is not allowed"
	errNoFiles          = "no file was uploaded"
)
