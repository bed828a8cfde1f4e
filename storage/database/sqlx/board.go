package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/board"
	"github.com/trezcool/academia/storage/database"
)

const (
	postSelect = `
	SELECT p.id, p.board_type, p.title, p.content, p.is_notice, p.is_secret, p.view_count,
		p.author_id, u.name AS author_name,
		(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id) AS comment_count,
		p.created_at, p.updated_at
	FROM posts p
	JOIN users u ON u.id = p.author_id`

	commentSelect = `
	SELECT c.id, c.post_id, c.author_id, u.name AS author_name, c.content, c.created_at, c.updated_at
	FROM comments c
	JOIN users u ON u.id = c.author_id`

	attachmentColumns = `id, post_id, original_file_name, stored_file_name, file_size, content_type, created_at`
)

type postRow struct {
	ID           string    `db:"id"`
	BoardType    string    `db:"board_type"`
	Title        string    `db:"title"`
	Content      string    `db:"content"`
	IsNotice     bool      `db:"is_notice"`
	IsSecret     bool      `db:"is_secret"`
	ViewCount    int       `db:"view_count"`
	AuthorID     string    `db:"author_id"`
	AuthorName   string    `db:"author_name"`
	CommentCount int       `db:"comment_count"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func toPostRow(p board.Post) postRow {
	return postRow{
		ID:         p.ID,
		BoardType:  string(p.BoardType),
		Title:      p.Title,
		Content:    p.Content,
		IsNotice:   p.IsNotice,
		IsSecret:   p.IsSecret,
		ViewCount:  p.ViewCount,
		AuthorID:   p.AuthorID,
		AuthorName: p.AuthorName,
		CreatedAt:  p.CreatedAt.UTC(),
		UpdatedAt:  p.UpdatedAt.UTC(),
	}
}

func (r postRow) post() board.Post {
	return board.Post{
		ID:           r.ID,
		BoardType:    board.BoardType(r.BoardType),
		Title:        r.Title,
		Content:      r.Content,
		IsNotice:     r.IsNotice,
		IsSecret:     r.IsSecret,
		ViewCount:    r.ViewCount,
		AuthorID:     r.AuthorID,
		AuthorName:   r.AuthorName,
		CommentCount: r.CommentCount,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func posts(rows []postRow) []board.Post {
	out := make([]board.Post, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.post())
	}
	return out
}

type commentRow struct {
	ID         string    `db:"id"`
	PostID     string    `db:"post_id"`
	AuthorID   string    `db:"author_id"`
	AuthorName string    `db:"author_name"`
	Content    string    `db:"content"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r commentRow) comment() board.Comment {
	return board.Comment{
		ID:         r.ID,
		PostID:     r.PostID,
		AuthorID:   r.AuthorID,
		AuthorName: r.AuthorName,
		Content:    r.Content,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type attachmentRow struct {
	ID               string    `db:"id"`
	PostID           string    `db:"post_id"`
	OriginalFileName string    `db:"original_file_name"`
	StoredFileName   string    `db:"stored_file_name"`
	FileSize         int64     `db:"file_size"`
	ContentType      string    `db:"content_type"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r attachmentRow) attachment() board.Attachment {
	return board.Attachment{
		ID:               r.ID,
		PostID:           r.PostID,
		OriginalFileName: r.OriginalFileName,
		StoredFileName:   r.StoredFileName,
		FileSize:         r.FileSize,
		ContentType:      r.ContentType,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

type boardRepository struct {
	repo
}

var _ board.Repository = (*boardRepository)(nil) // interface compliance check

func NewBoardRepository(db *sqlx.DB) *boardRepository {
	return &boardRepository{repo{db: db}}
}

// execOne runs a write that must touch exactly one row, or returns notFound.
func execOne(ctx context.Context, q sqlx.ExtContext, notFound error, msg, query string, args ...interface{}) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (repo *boardRepository) CreatePost(ctx context.Context, p board.Post, exec ...core.DBExecutor) (board.Post, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return board.Post{}, err
	}
	_, err = sqlx.NamedExecContext(ctx, q, `
		INSERT INTO posts (id, board_type, title, content, is_notice, is_secret, view_count, author_id, created_at, updated_at)
		VALUES (:id, :board_type, :title, :content, :is_notice, :is_secret, 0, :author_id, :created_at, :updated_at)`,
		toPostRow(p))
	if err != nil {
		return board.Post{}, errors.Wrap(err, "inserting post")
	}
	p.ViewCount, p.CommentCount = 0, 0
	return p, nil
}

func (repo *boardRepository) GetPost(ctx context.Context, id string, exec ...core.DBExecutor) (board.Post, error) {
	if !validID(id) {
		return board.Post{}, board.ErrPostNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return board.Post{}, err
	}

	var row postRow
	if err = sqlx.GetContext(ctx, q, &row, postSelect+` WHERE p.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return board.Post{}, board.ErrPostNotFound
		}
		return board.Post{}, errors.Wrap(err, "selecting post")
	}
	return row.post(), nil
}

func (repo *boardRepository) QueryPosts(ctx context.Context, filter board.QueryFilter, page core.PageRequest, exec ...core.DBExecutor) ([]board.Post, int, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return nil, 0, err
	}

	var where database.Where
	where.Add("p.board_type = ?", string(filter.BoardType))
	where.Add("NOT p.is_notice")
	if filter.Keyword != "" {
		val := database.Like(filter.Keyword)
		where.Add("(p.title ILIKE ? OR p.content ILIKE ?)", val, val)
	}

	var total int
	if err = sqlx.GetContext(ctx, q, &total, `SELECT COUNT(*) FROM posts p`+where.String(), where.Args()...); err != nil {
		return nil, 0, errors.Wrap(err, "counting posts")
	}

	var rows []postRow
	query := postSelect + where.String() + ` ORDER BY p.created_at DESC, p.id` +
		` LIMIT ` + where.Arg(page.Limit()) + ` OFFSET ` + where.Arg(page.Offset())
	if err = sqlx.SelectContext(ctx, q, &rows, query, where.Args()...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting posts")
	}
	return posts(rows), total, nil
}

func (repo *boardRepository) QueryNotices(ctx context.Context, boardType board.BoardType, exec ...core.DBExecutor) ([]board.Post, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return nil, err
	}

	var rows []postRow
	err = sqlx.SelectContext(ctx, q, &rows,
		postSelect+` WHERE p.board_type = $1 AND p.is_notice ORDER BY p.created_at DESC, p.id`, string(boardType))
	if err != nil {
		return nil, errors.Wrap(err, "selecting notices")
	}
	return posts(rows), nil
}

func (repo *boardRepository) UpdatePost(ctx context.Context, p board.Post, exec ...core.DBExecutor) (board.Post, error) {
	if !validID(p.ID) {
		return board.Post{}, board.ErrPostNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return board.Post{}, err
	}

	res, err := sqlx.NamedExecContext(ctx, q, `
		UPDATE posts SET title = :title, content = :content, is_notice = :is_notice, is_secret = :is_secret,
			updated_at = :updated_at
		WHERE id = :id`, toPostRow(p))
	if err != nil {
		return board.Post{}, errors.Wrap(err, "updating post")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return board.Post{}, err
	}
	if n == 0 {
		return board.Post{}, board.ErrPostNotFound
	}
	return repo.GetPost(ctx, p.ID, exec...)
}

func (repo *boardRepository) IncrementViewCount(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return board.ErrPostNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return err
	}
	return execOne(ctx, q, board.ErrPostNotFound, "counting post view",
		`UPDATE posts SET view_count = view_count + 1 WHERE id = $1`, id)
}

func (repo *boardRepository) DeletePost(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return board.ErrPostNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return err
	}
	// comments and attachment rows cascade
	return execOne(ctx, q, board.ErrPostNotFound, "deleting post", `DELETE FROM posts WHERE id = $1`, id)
}

func (repo *boardRepository) CountPosts(ctx context.Context, boardType board.BoardType, exec ...core.DBExecutor) (board.Stats, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return board.Stats{}, err
	}

	var counts struct {
		Posts    int `db:"post_count"`
		Notices  int `db:"notice_count"`
		Comments int `db:"comment_count"`
	}
	err = sqlx.GetContext(ctx, q, &counts, `
		SELECT
			COUNT(*) AS post_count,
			COUNT(*) FILTER (WHERE is_notice) AS notice_count,
			(SELECT COUNT(*) FROM comments c JOIN posts p ON p.id = c.post_id WHERE p.board_type = $1) AS comment_count
		FROM posts
		WHERE board_type = $1`, string(boardType))
	if err != nil {
		return board.Stats{}, errors.Wrap(err, "counting posts")
	}
	return board.Stats{
		BoardType:    boardType,
		PostCount:    counts.Posts,
		NoticeCount:  counts.Notices,
		CommentCount: counts.Comments,
	}, nil
}

func (repo *boardRepository) CreateComment(ctx context.Context, c board.Comment, exec ...core.DBExecutor) (board.Comment, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return board.Comment{}, err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, author_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.PostID, c.AuthorID, c.Content, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	return c, errors.Wrap(err, "inserting comment")
}

func (repo *boardRepository) GetComment(ctx context.Context, id string, exec ...core.DBExecutor) (board.Comment, error) {
	if !validID(id) {
		return board.Comment{}, board.ErrCommentNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return board.Comment{}, err
	}

	var row commentRow
	if err = sqlx.GetContext(ctx, q, &row, commentSelect+` WHERE c.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return board.Comment{}, board.ErrCommentNotFound
		}
		return board.Comment{}, errors.Wrap(err, "selecting comment")
	}
	return row.comment(), nil
}

func (repo *boardRepository) QueryComments(ctx context.Context, postID string, exec ...core.DBExecutor) ([]board.Comment, error) {
	if !validID(postID) {
		return []board.Comment{}, nil
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return nil, err
	}

	var rows []commentRow
	if err = sqlx.SelectContext(ctx, q, &rows, commentSelect+` WHERE c.post_id = $1 ORDER BY c.created_at, c.id`, postID); err != nil {
		return nil, errors.Wrap(err, "selecting comments")
	}
	comments := make([]board.Comment, 0, len(rows))
	for _, r := range rows {
		comments = append(comments, r.comment())
	}
	return comments, nil
}

func (repo *boardRepository) UpdateComment(ctx context.Context, c board.Comment, exec ...core.DBExecutor) (board.Comment, error) {
	if !validID(c.ID) {
		return board.Comment{}, board.ErrCommentNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return board.Comment{}, err
	}
	err = execOne(ctx, q, board.ErrCommentNotFound, "updating comment",
		`UPDATE comments SET content = $2, updated_at = $3 WHERE id = $1`, c.ID, c.Content, c.UpdatedAt.UTC())
	if err != nil {
		return board.Comment{}, err
	}
	return c, nil
}

func (repo *boardRepository) DeleteComment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return board.ErrCommentNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return err
	}
	return execOne(ctx, q, board.ErrCommentNotFound, "deleting comment", `DELETE FROM comments WHERE id = $1`, id)
}

func (repo *boardRepository) CreateAttachment(ctx context.Context, a board.Attachment, exec ...core.DBExecutor) (board.Attachment, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return board.Attachment{}, err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO attachments (`+attachmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.PostID, a.OriginalFileName, a.StoredFileName, a.FileSize, a.ContentType, a.CreatedAt.UTC())
	return a, errors.Wrap(err, "inserting attachment")
}

func (repo *boardRepository) GetAttachment(ctx context.Context, id string, exec ...core.DBExecutor) (board.Attachment, error) {
	if !validID(id) {
		return board.Attachment{}, board.ErrAttachmentNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return board.Attachment{}, err
	}

	var row attachmentRow
	if err = sqlx.GetContext(ctx, q, &row, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return board.Attachment{}, board.ErrAttachmentNotFound
		}
		return board.Attachment{}, errors.Wrap(err, "selecting attachment")
	}
	return row.attachment(), nil
}

func (repo *boardRepository) QueryAttachments(ctx context.Context, postID string, exec ...core.DBExecutor) ([]board.Attachment, error) {
	if !validID(postID) {
		return []board.Attachment{}, nil
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return nil, err
	}

	var rows []attachmentRow
	err = sqlx.SelectContext(ctx, q, &rows,
		`SELECT `+attachmentColumns+` FROM attachments WHERE post_id = $1 ORDER BY created_at, id`, postID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting attachments")
	}
	atts := make([]board.Attachment, 0, len(rows))
	for _, r := range rows {
		atts = append(atts, r.attachment())
	}
	return atts, nil
}

func (repo *boardRepository) DeleteAttachment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return board.ErrAttachmentNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return err
	}
	return execOne(ctx, q, board.ErrAttachmentNotFound, "deleting attachment", `DELETE FROM attachments WHERE id = $1`, id)
}
