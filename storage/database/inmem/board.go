package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/board"
)

type boardRepository struct {
	db *DB
}

var _ board.Repository = (*boardRepository)(nil) // interface compliance check

func NewBoardRepository(db *DB) *boardRepository {
	return &boardRepository{db: db}
}

func (repo *boardRepository) CreatePost(_ context.Context, p board.Post, exec ...core.DBExecutor) (board.Post, error) {
	defer repo.db.write(exec)()

	p.Comments, p.Attachments = nil, nil
	repo.db.posts[p.ID] = p
	return p, nil
}

func (repo *boardRepository) GetPost(_ context.Context, id string, exec ...core.DBExecutor) (board.Post, error) {
	defer repo.db.read(exec)()

	p, ok := repo.db.posts[id]
	if !ok {
		return board.Post{}, board.ErrPostNotFound
	}
	return repo.db.withCommentCount(p), nil
}

func (repo *boardRepository) QueryPosts(_ context.Context, filter board.QueryFilter, page core.PageRequest, exec ...core.DBExecutor) ([]board.Post, int, error) {
	defer repo.db.read(exec)()

	kw := strings.ToLower(filter.Keyword)
	posts := make([]board.Post, 0)
	for _, p := range repo.db.posts {
		if p.IsNotice || (filter.BoardType != "" && p.BoardType != filter.BoardType) {
			continue
		}
		if kw != "" && !strings.Contains(strings.ToLower(p.Title), kw) && !strings.Contains(strings.ToLower(p.Content), kw) {
			continue
		}
		posts = append(posts, repo.db.withCommentCount(p))
	}
	sortPosts(posts)

	start, end := core.Paginate(len(posts), page)
	return posts[start:end], len(posts), nil
}

func (repo *boardRepository) QueryNotices(_ context.Context, boardType board.BoardType, exec ...core.DBExecutor) ([]board.Post, error) {
	defer repo.db.read(exec)()

	posts := make([]board.Post, 0)
	for _, p := range repo.db.posts {
		if p.IsNotice && p.BoardType == boardType {
			posts = append(posts, repo.db.withCommentCount(p))
		}
	}
	sortPosts(posts)
	return posts, nil
}

func sortPosts(posts []board.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID < posts[j].ID
	})
}

func (repo *boardRepository) UpdatePost(_ context.Context, p board.Post, exec ...core.DBExecutor) (board.Post, error) {
	defer repo.db.write(exec)()

	orig, ok := repo.db.posts[p.ID]
	if !ok {
		return board.Post{}, board.ErrPostNotFound
	}
	orig.Title = p.Title
	orig.Content = p.Content
	orig.IsNotice = p.IsNotice
	orig.IsSecret = p.IsSecret
	orig.UpdatedAt = p.UpdatedAt
	repo.db.posts[p.ID] = orig
	return repo.db.withCommentCount(orig), nil
}

func (repo *boardRepository) IncrementViewCount(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.write(exec)()

	p, ok := repo.db.posts[id]
	if !ok {
		return board.ErrPostNotFound
	}
	p.ViewCount++
	repo.db.posts[id] = p
	return nil
}

func (repo *boardRepository) DeletePost(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.write(exec)()

	if _, ok := repo.db.posts[id]; !ok {
		return board.ErrPostNotFound
	}
	repo.db.deletePost(id)
	return nil
}

// deletePost removes a post and its dependent rows. The caller holds the write lock.
func (db *DB) deletePost(id string) {
	delete(db.posts, id)
	for cid, c := range db.comments {
		if c.PostID == id {
			delete(db.comments, cid)
		}
	}
	for aid, a := range db.attachments {
		if a.PostID == id {
			delete(db.attachments, aid)
		}
	}
}

func (repo *boardRepository) CountPosts(_ context.Context, boardType board.BoardType, exec ...core.DBExecutor) (board.Stats, error) {
	defer repo.db.read(exec)()

	stats := board.Stats{BoardType: boardType}
	for _, p := range repo.db.posts {
		if p.BoardType != boardType {
			continue
		}
		stats.PostCount++
		if p.IsNotice {
			stats.NoticeCount++
		}
	}
	for _, c := range repo.db.comments {
		if p, ok := repo.db.posts[c.PostID]; ok && p.BoardType == boardType {
			stats.CommentCount++
		}
	}
	return stats, nil
}

func (db *DB) withCommentCount(p board.Post) board.Post {
	p.CommentCount = 0
	for _, c := range db.comments {
		if c.PostID == p.ID {
			p.CommentCount++
		}
	}
	return p
}

func (repo *boardRepository) CreateComment(_ context.Context, c board.Comment, exec ...core.DBExecutor) (board.Comment, error) {
	defer repo.db.write(exec)()

	if _, ok := repo.db.posts[c.PostID]; !ok {
		return board.Comment{}, board.ErrPostNotFound
	}
	repo.db.comments[c.ID] = c
	return c, nil
}

func (repo *boardRepository) GetComment(_ context.Context, id string, exec ...core.DBExecutor) (board.Comment, error) {
	defer repo.db.read(exec)()

	if c, ok := repo.db.comments[id]; ok {
		return c, nil
	}
	return board.Comment{}, board.ErrCommentNotFound
}

func (repo *boardRepository) QueryComments(_ context.Context, postID string, exec ...core.DBExecutor) ([]board.Comment, error) {
	defer repo.db.read(exec)()

	comments := make([]board.Comment, 0)
	for _, c := range repo.db.comments {
		if c.PostID == postID {
			comments = append(comments, c)
		}
	}
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})
	return comments, nil
}

func (repo *boardRepository) UpdateComment(_ context.Context, c board.Comment, exec ...core.DBExecutor) (board.Comment, error) {
	defer repo.db.write(exec)()

	orig, ok := repo.db.comments[c.ID]
	if !ok {
		return board.Comment{}, board.ErrCommentNotFound
	}
	orig.Content = c.Content
	orig.UpdatedAt = c.UpdatedAt
	repo.db.comments[c.ID] = orig
	return orig, nil
}

func (repo *boardRepository) DeleteComment(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.write(exec)()

	if _, ok := repo.db.comments[id]; !ok {
		return board.ErrCommentNotFound
	}
	delete(repo.db.comments, id)
	return nil
}

func (repo *boardRepository) CreateAttachment(_ context.Context, a board.Attachment, exec ...core.DBExecutor) (board.Attachment, error) {
	defer repo.db.write(exec)()

	if _, ok := repo.db.posts[a.PostID]; !ok {
		return board.Attachment{}, board.ErrPostNotFound
	}
	repo.db.attachments[a.ID] = a
	return a, nil
}

func (repo *boardRepository) GetAttachment(_ context.Context, id string, exec ...core.DBExecutor) (board.Attachment, error) {
	defer repo.db.read(exec)()

	if a, ok := repo.db.attachments[id]; ok {
		return a, nil
	}
	return board.Attachment{}, board.ErrAttachmentNotFound
}

func (repo *boardRepository) QueryAttachments(_ context.Context, postID string, exec ...core.DBExecutor) ([]board.Attachment, error) {
	defer repo.db.read(exec)()

	atts := make([]board.Attachment, 0)
	for _, a := range repo.db.attachments {
		if a.PostID == postID {
			atts = append(atts, a)
		}
	}
	sort.SliceStable(atts, func(i, j int) bool {
		if !atts[i].CreatedAt.Equal(atts[j].CreatedAt) {
			return atts[i].CreatedAt.Before(atts[j].CreatedAt)
		}
		return atts[i].ID < atts[j].ID
	})
	return atts, nil
}

func (repo *boardRepository) DeleteAttachment(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.write(exec)()

	if _, ok := repo.db.attachments[id]; !ok {
		return board.ErrAttachmentNotFound
	}
	delete(repo.db.attachments, id)
	return nil
}
