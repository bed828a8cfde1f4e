package board

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type (
	Repository interface {
		CreatePost(ctx context.Context, p Post, exec ...core.DBExecutor) (Post, error)
		// GetPost returns ErrPostNotFound when no post has this id. CommentCount is filled.
		GetPost(ctx context.Context, id string, exec ...core.DBExecutor) (Post, error)
		// QueryPosts returns one page of the non-notice posts of a board, newest first,
		// and the total match count. QueryFilter.Keyword matches the title or content.
		QueryPosts(ctx context.Context, filter QueryFilter, page core.PageRequest, exec ...core.DBExecutor) ([]Post, int, error)
		// QueryNotices returns the pinned posts of a board, newest first.
		QueryNotices(ctx context.Context, boardType BoardType, exec ...core.DBExecutor) ([]Post, error)
		UpdatePost(ctx context.Context, p Post, exec ...core.DBExecutor) (Post, error)
		// IncrementViewCount atomically adds one view to a post.
		IncrementViewCount(ctx context.Context, id string, exec ...core.DBExecutor) error
		// DeletePost removes the post with its comments and attachment rows.
		DeletePost(ctx context.Context, id string, exec ...core.DBExecutor) error
		CountPosts(ctx context.Context, boardType BoardType, exec ...core.DBExecutor) (Stats, error)

		CreateComment(ctx context.Context, c Comment, exec ...core.DBExecutor) (Comment, error)
		GetComment(ctx context.Context, id string, exec ...core.DBExecutor) (Comment, error)
		// QueryComments returns the comments of a post, oldest first.
		QueryComments(ctx context.Context, postID string, exec ...core.DBExecutor) ([]Comment, error)
		UpdateComment(ctx context.Context, c Comment, exec ...core.DBExecutor) (Comment, error)
		DeleteComment(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateAttachment(ctx context.Context, a Attachment, exec ...core.DBExecutor) (Attachment, error)
		GetAttachment(ctx context.Context, id string, exec ...core.DBExecutor) (Attachment, error)
		QueryAttachments(ctx context.Context, postID string, exec ...core.DBExecutor) ([]Attachment, error)
		DeleteAttachment(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// Service runs the discussion boards. viewer arguments are nil for anonymous requests.
	Service interface {
		ListPosts(ctx context.Context, viewer *user.User, filter QueryFilter, page core.PageRequest) ([]Post, int, error)
		ListNotices(ctx context.Context, viewer *user.User, boardType BoardType) ([]Post, error)
		// GetPost returns a post with its comments and attachments, and counts the view.
		GetPost(ctx context.Context, viewer *user.User, id string) (Post, error)
		CreatePost(ctx context.Context, author user.User, np NewPost) (Post, error)
		UpdatePost(ctx context.Context, actor user.User, id string, up UpdatePost) (Post, error)
		DeletePost(ctx context.Context, actor user.User, id string) error
		Stats(ctx context.Context, boardType BoardType) (Stats, error)

		AddComment(ctx context.Context, author user.User, postID string, nc NewComment) (Comment, error)
		UpdateComment(ctx context.Context, actor user.User, id string, nc NewComment) (Comment, error)
		DeleteComment(ctx context.Context, actor user.User, id string) error

		UploadAttachments(ctx context.Context, actor user.User, postID string, uploads ...Upload) ([]Attachment, error)
		OpenAttachment(ctx context.Context, viewer *user.User, id string) (Attachment, File, error)
		DeleteAttachment(ctx context.Context, actor user.User, id string) error
	}

	service struct {
		repo          Repository
		files         FileStore
		maxUploadSize int64
		logger        core.Logger
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, files FileStore, maxUploadSize int64, logger core.Logger) Service {
	return &service{repo: repo, files: files, maxUploadSize: maxUploadSize, logger: logger}
}

func (svc *service) ListPosts(ctx context.Context, viewer *user.User, filter QueryFilter, page core.PageRequest) ([]Post, int, error) {
	filter.Clean()
	page.Clean()
	posts, total, err := svc.repo.QueryPosts(ctx, filter, page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying posts")
	}
	for i := range posts {
		posts[i] = posts[i].maskedFor(viewer)
	}
	return posts, total, nil
}

func (svc *service) ListNotices(ctx context.Context, viewer *user.User, boardType BoardType) ([]Post, error) {
	posts, err := svc.repo.QueryNotices(ctx, boardType)
	if err != nil {
		return nil, errors.Wrap(err, "querying notices")
	}
	for i := range posts {
		posts[i] = posts[i].maskedFor(viewer)
	}
	return posts, nil
}

func (svc *service) GetPost(ctx context.Context, viewer *user.User, id string) (Post, error) {
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !p.CanView(viewer) {
		return Post{}, core.ErrPermissionDenied
	}

	if err = svc.repo.IncrementViewCount(ctx, id); err != nil {
		return Post{}, errors.Wrap(err, "counting post view")
	}
	p.ViewCount++

	if p.Comments, err = svc.repo.QueryComments(ctx, id); err != nil {
		return Post{}, errors.Wrap(err, "querying comments")
	}
	if p.Attachments, err = svc.repo.QueryAttachments(ctx, id); err != nil {
		return Post{}, errors.Wrap(err, "querying attachments")
	}
	p.CommentCount = len(p.Comments)
	return p, nil
}

func (svc *service) CreatePost(ctx context.Context, author user.User, np NewPost) (Post, error) {
	if err := np.Validate(); err != nil {
		return Post{}, err
	}
	if (np.IsNotice || np.BoardType == BoardNotice) && !author.IsAdmin() {
		return Post{}, errors.Wrap(core.ErrPermissionDenied, errNoticeAdminOnly)
	}

	now := core.Now()
	p, err := svc.repo.CreatePost(ctx, Post{
		ID:         uuid.New().String(),
		BoardType:  np.BoardType,
		Title:      np.Title,
		Content:    np.Content,
		IsNotice:   np.IsNotice,
		IsSecret:   np.IsSecret,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return p, errors.Wrap(err, "creating post")
}

func (svc *service) UpdatePost(ctx context.Context, actor user.User, id string, up UpdatePost) (Post, error) {
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !p.CanEdit(&actor) {
		return Post{}, core.ErrPermissionDenied
	}
	if err = up.Validate(); err != nil {
		return Post{}, err
	}
	if up.IsNotice != nil && *up.IsNotice && !actor.IsAdmin() {
		return Post{}, errors.Wrap(core.ErrPermissionDenied, errNoticeAdminOnly)
	}

	if up.Title != nil {
		p.Title = *up.Title
	}
	if up.Content != nil {
		p.Content = *up.Content
	}
	if up.IsNotice != nil {
		p.IsNotice = *up.IsNotice
	}
	if up.IsSecret != nil {
		p.IsSecret = *up.IsSecret
	}
	p.UpdatedAt = core.Now()
	p, err = svc.repo.UpdatePost(ctx, p)
	return p, errors.Wrap(err, "updating post")
}

func (svc *service) DeletePost(ctx context.Context, actor user.User, id string) error {
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if !p.CanEdit(&actor) {
		return core.ErrPermissionDenied
	}

	atts, err := svc.repo.QueryAttachments(ctx, id)
	if err != nil {
		return errors.Wrap(err, "querying attachments")
	}
	if err = svc.repo.DeletePost(ctx, id); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	for _, a := range atts {
		svc.removeFile(ctx, a.StoredFileName)
	}
	return nil
}

func (svc *service) Stats(ctx context.Context, boardType BoardType) (Stats, error) {
	stats, err := svc.repo.CountPosts(ctx, boardType)
	return stats, errors.Wrap(err, "counting posts")
}

func (svc *service) AddComment(ctx context.Context, author user.User, postID string, nc NewComment) (Comment, error) {
	p, err := svc.repo.GetPost(ctx, postID)
	if err != nil {
		return Comment{}, err
	}
	if !p.CanView(&author) {
		return Comment{}, core.ErrPermissionDenied
	}
	if err = nc.Validate(); err != nil {
		return Comment{}, err
	}

	now := core.Now()
	c, err := svc.repo.CreateComment(ctx, Comment{
		ID:         uuid.New().String(),
		PostID:     p.ID,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Content:    nc.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return c, errors.Wrap(err, "creating comment")
}

func (svc *service) UpdateComment(ctx context.Context, actor user.User, id string, nc NewComment) (Comment, error) {
	c, err := svc.repo.GetComment(ctx, id)
	if err != nil {
		return Comment{}, err
	}
	if !c.CanEdit(&actor) {
		return Comment{}, core.ErrPermissionDenied
	}
	if err = nc.Validate(); err != nil {
		return Comment{}, err
	}
	c.Content = nc.Content
	c.UpdatedAt = core.Now()
	c, err = svc.repo.UpdateComment(ctx, c)
	return c, errors.Wrap(err, "updating comment")
}

func (svc *service) DeleteComment(ctx context.Context, actor user.User, id string) error {
	c, err := svc.repo.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if !c.CanEdit(&actor) {
		return core.ErrPermissionDenied
	}
	return errors.Wrap(svc.repo.DeleteComment(ctx, id), "deleting comment")
}

// removeFile deletes a stored blob. Failures leave an orphan file and are only logged.
func (svc *service) removeFile(ctx context.Context, key string) {
	if err := svc.files.Delete(ctx, key); err != nil && errors.Cause(err) != ErrFileMissing {
		svc.logger.Error("removing attachment file", errors.Wrap(err, key))
	}
}
