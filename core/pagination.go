package core

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest selects a 0-based page of a listing.
type PageRequest struct {
	Page int
	Size int
}

func (p *PageRequest) Clean() {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	} else if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
}

func (p PageRequest) Offset() int { return p.Page * p.Size }
func (p PageRequest) Limit() int  { return p.Size }

// Page is one page of a listing plus the total number of matching items.
type Page struct {
	Items      interface{} `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Size       int         `json:"size"`
	TotalPages int         `json:"total_pages"`
}

func NewPage(items interface{}, total int, req PageRequest) Page {
	pages := 0
	if req.Size > 0 {
		pages = (total + req.Size - 1) / req.Size
	}
	return Page{Items: items, Total: total, Page: req.Page, Size: req.Size, TotalPages: pages}
}

// Paginate returns the bounds of the requested page inside a slice of length n.
func Paginate(n int, req PageRequest) (start, end int) {
	start = req.Offset()
	if start > n {
		start = n
	}
	end = start + req.Limit()
	if end > n {
		end = n
	}
	return start, end
}
