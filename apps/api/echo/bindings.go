package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var (
	orderingParam = "ordering"
	pageParam     = "page"
	sizeParam     = "size"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads ?ordering=-created_at,name; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	if len(allowed) > 0 {
		ord.Orderings = core.CleanOrdering(ord.Orderings, allowed...)
	}
}

// bindPage reads ?page=&size=. Invalid values fall back to the defaults.
func bindPage(ctx echo.Context) core.PageRequest {
	var page core.PageRequest
	page.Page, _ = strconv.Atoi(ctx.QueryParam(pageParam))
	page.Size, _ = strconv.Atoi(ctx.QueryParam(sizeParam))
	page.Clean()
	return page
}

// bindUserFilter reads the user listing filters. Multi-valued filters accept
// repeated params (?status=PENDING&status=ACTIVE).
func bindUserFilter(ctx echo.Context) (*user.QueryFilter, error) {
	params := ctx.QueryParams()
	filter := &user.QueryFilter{
		Search: ctx.QueryParam("search"),
		Roles:  params["role"],
	}
	for _, s := range params["status"] {
		filter.Statuses = append(filter.Statuses, user.Status(strings.ToUpper(s)))
	}
	for _, t := range params["user_type"] {
		filter.Types = append(filter.Types, user.UserType(strings.ToUpper(t)))
	}

	var err error
	if filter.CreatedFrom, err = parseDate(ctx.QueryParam("created_from")); err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "created_from", Error: errInvalidDate})
	}
	if filter.CreatedTo, err = parseDate(ctx.QueryParam("created_to")); err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "created_to", Error: errInvalidDate})
	}
	filter.Clean()
	return filter, nil
}

var errInvalidDate = "invalid date, use YYYY-MM-DD or RFC 3339"

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t.UTC(), err
}
