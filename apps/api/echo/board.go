package echoapi

import (
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/board"
)

type boardApi struct {
	auth *authenticator
	svc  board.Service
}

func registerBoardAPI(g *echo.Group, jwt, optJWT echo.MiddlewareFunc, auth *authenticator, svc board.Service) {
	api := boardApi{auth: auth, svc: svc}
	authed := []echo.MiddlewareFunc{jwt, activeMiddleware(auth)}

	bg := g.Group("/boards/:type")
	bg.GET("/posts", api.queryPosts, optJWT)
	bg.GET("/notices", api.queryNotices, optJWT)
	bg.GET("/stats", api.stats, jwt, adminMiddleware())
	bg.POST("/posts", api.createPost, authed...)

	g.GET("/posts/:id", api.retrievePost, optJWT)
	g.PUT("/posts/:id", api.updatePost, authed...)
	g.DELETE("/posts/:id", api.destroyPost, authed...)
	g.POST("/posts/:id/comments", api.createComment, authed...)
	g.POST("/posts/:id/attachments", api.uploadAttachments, authed...)

	g.PUT("/comments/:id", api.updateComment, authed...)
	g.DELETE("/comments/:id", api.destroyComment, authed...)

	g.GET("/attachments/:id", api.downloadAttachment, optJWT)
	g.DELETE("/attachments/:id", api.destroyAttachment, authed...)
}

func boardType(ctx echo.Context) (board.BoardType, error) {
	return board.ParseBoardType(ctx.Param("type"))
}

func (api *boardApi) queryPosts(ctx echo.Context) error {
	bt, err := boardType(ctx)
	if err != nil {
		return err
	}
	viewer, err := api.auth.viewer(ctx)
	if err != nil {
		return errors.Wrap(err, "getting viewer")
	}
	page := bindPage(ctx)

	filter := board.QueryFilter{BoardType: bt, Keyword: ctx.QueryParam("keyword")}
	posts, total, err := api.svc.ListPosts(ctx.Request().Context(), viewer, filter, page)
	if err != nil {
		return errors.Wrap(err, "listing posts")
	}
	if posts == nil {
		posts = []board.Post{}
	}
	return ctx.JSON(http.StatusOK, core.NewPage(posts, total, page))
}

func (api *boardApi) queryNotices(ctx echo.Context) error {
	bt, err := boardType(ctx)
	if err != nil {
		return err
	}
	viewer, err := api.auth.viewer(ctx)
	if err != nil {
		return errors.Wrap(err, "getting viewer")
	}

	posts, err := api.svc.ListNotices(ctx.Request().Context(), viewer, bt)
	if err != nil {
		return errors.Wrap(err, "listing notices")
	}
	if posts == nil {
		posts = []board.Post{}
	}
	return ctx.JSON(http.StatusOK, posts)
}

func (api *boardApi) stats(ctx echo.Context) error {
	bt, err := boardType(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), bt)
	if err != nil {
		return errors.Wrap(err, "counting posts")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *boardApi) createPost(ctx echo.Context) error {
	bt, err := boardType(ctx)
	if err != nil {
		return err
	}
	var data board.NewPost
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPost")
	}
	data.BoardType = bt

	author, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.CreatePost(ctx.Request().Context(), author, data)
	if err != nil {
		return errors.Wrap(err, "creating post")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *boardApi) retrievePost(ctx echo.Context) error {
	viewer, err := api.auth.viewer(ctx)
	if err != nil {
		return errors.Wrap(err, "getting viewer")
	}
	p, err := api.svc.GetPost(ctx.Request().Context(), viewer, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *boardApi) updatePost(ctx echo.Context) error {
	var data board.UpdatePost
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePost")
	}
	actor, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.UpdatePost(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *boardApi) destroyPost(ctx echo.Context) error {
	actor, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.DeletePost(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *boardApi) createComment(ctx echo.Context) error {
	var data board.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	author, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.AddComment(ctx.Request().Context(), author, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *boardApi) updateComment(ctx echo.Context) error {
	var data board.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	actor, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.UpdateComment(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating comment")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *boardApi) destroyComment(ctx echo.Context) error {
	actor, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.DeleteComment(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// uploadAttachments accepts one "file" or many "files" parts.
func (api *boardApi) uploadAttachments(ctx echo.Context) error {
	actor, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var headers []*multipart.FileHeader
	if form, err := ctx.MultipartForm(); err == nil {
		headers = append(headers, form.File["file"]...)
		headers = append(headers, form.File["files"]...)
	} else if err != http.ErrNotMultipart {
		return errors.Wrap(err, "parsing multipart form")
	}

	uploads := make([]board.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrapf(err, "opening %s", fh.Filename)
		}
		defer f.Close()
		uploads = append(uploads, board.Upload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Body:        f,
		})
	}

	atts, err := api.svc.UploadAttachments(ctx.Request().Context(), actor, ctx.Param("id"), uploads...)
	if err != nil {
		return errors.Wrap(err, "uploading attachments")
	}
	return ctx.JSON(http.StatusCreated, atts)
}

func (api *boardApi) downloadAttachment(ctx echo.Context) error {
	viewer, err := api.auth.viewer(ctx)
	if err != nil {
		return errors.Wrap(err, "getting viewer")
	}
	att, f, err := api.svc.OpenAttachment(ctx.Request().Context(), viewer, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening attachment")
	}
	defer f.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": att.OriginalFileName})
	ctx.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return ctx.Stream(http.StatusOK, att.ContentType, f)
}

func (api *boardApi) destroyAttachment(ctx echo.Context) error {
	actor, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.DeleteAttachment(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting attachment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
