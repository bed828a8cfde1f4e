package board

import (
	"strings"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type BoardType string

const (
	BoardNotice BoardType = "NOTICE"
	BoardQnA    BoardType = "QNA"
	BoardFAQ    BoardType = "FAQ"
)

var BoardTypes = []BoardType{BoardNotice, BoardQnA, BoardFAQ}

// secretTitle replaces the title of secret posts the viewer may not read.
const secretTitle = "[secret]"

type Post struct {
	ID           string       `json:"id"`
	BoardType    BoardType    `json:"board_type"`
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	IsNotice     bool         `json:"is_notice"`
	IsSecret     bool         `json:"is_secret"`
	ViewCount    int          `json:"view_count"`
	AuthorID     string       `json:"author_id"`
	AuthorName   string       `json:"author_name"`
	CommentCount int          `json:"comment_count"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	Comments     []Comment    `json:"comments,omitempty"`
	CreatedAt    time.Time    `json:"created_at"` // UTC
	UpdatedAt    time.Time    `json:"updated_at"` // UTC
}

// CanView reports whether viewer may read p. viewer is nil for anonymous requests.
func (p Post) CanView(viewer *user.User) bool {
	if !p.IsSecret {
		return true
	}
	return viewer != nil && (viewer.ID == p.AuthorID || viewer.IsAdmin())
}

// CanEdit reports whether viewer may modify or delete p.
func (p Post) CanEdit(viewer *user.User) bool {
	return viewer != nil && (viewer.ID == p.AuthorID || viewer.IsAdmin())
}

// maskedFor hides the title and content of p if viewer may not read it.
func (p Post) maskedFor(viewer *user.User) Post {
	if p.CanView(viewer) {
		return p
	}
	p.Title = secretTitle
	p.Content = ""
	return p
}

type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

func (c Comment) CanEdit(viewer *user.User) bool {
	return viewer != nil && (viewer.ID == c.AuthorID || viewer.IsAdmin())
}

type Attachment struct {
	ID               string    `json:"id"`
	PostID           string    `json:"post_id"`
	OriginalFileName string    `json:"original_file_name"`
	StoredFileName   string    `json:"stored_file_name"`
	FileSize         int64     `json:"file_size"`
	ContentType      string    `json:"content_type"`
	CreatedAt        time.Time `json:"created_at"` // UTC
}

type NewPost struct {
	BoardType BoardType `json:"board_type" validate:"required,boardtype"`
	Title     string    `json:"title" validate:"required,max=200"`
	Content   string    `json:"content" validate:"required"`
	IsNotice  bool      `json:"is_notice"`
	IsSecret  bool      `json:"is_secret"`
}

func (np *NewPost) Validate() error {
	np.Title = core.CleanString(np.Title)
	np.Content = core.CleanString(np.Content)
	return core.Validate.Struct(np)
}

// UpdatePost holds the post fields to change; nil fields are kept.
type UpdatePost struct {
	Title    *string `json:"title" validate:"omitempty,min=1,max=200"`
	Content  *string `json:"content" validate:"omitempty,min=1"`
	IsNotice *bool   `json:"is_notice"`
	IsSecret *bool   `json:"is_secret"`
}

func (up *UpdatePost) Validate() error {
	if up.Title != nil {
		t := core.CleanString(*up.Title)
		up.Title = &t
	}
	if up.Content != nil {
		c := core.CleanString(*up.Content)
		up.Content = &c
	}
	return core.Validate.Struct(up)
}

type NewComment struct {
	Content string `json:"content" validate:"required,max=2000"`
}

func (nc *NewComment) Validate() error {
	nc.Content = core.CleanString(nc.Content)
	return core.Validate.Struct(nc)
}

type QueryFilter struct {
	BoardType BoardType
	Keyword   string
}

func (qf *QueryFilter) Clean() {
	qf.Keyword = core.CleanString(qf.Keyword)
}

// Stats summarizes one board.
type Stats struct {
	BoardType    BoardType `json:"board_type"`
	PostCount    int       `json:"post_count"`
	NoticeCount  int       `json:"notice_count"`
	CommentCount int       `json:"comment_count"`
}

// ParseBoardType validates a board type coming from a URL. It is case-insensitive.
func ParseBoardType(s string) (BoardType, error) {
	bt := BoardType(strings.ToUpper(core.CleanString(s)))
	for _, t := range BoardTypes {
		if t == bt {
			return bt, nil
		}
	}
	return "", ErrUnknownBoard
}
