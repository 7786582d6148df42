package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
	"github.com/JohnVinyard/annotate-api-sub000/internal/fault"
	"github.com/JohnVinyard/annotate-api-sub000/internal/filter"
	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

// listing is the body of every list route.
type listing struct {
	Items      []map[string]any `json:"items"`
	TotalCount int              `json:"total_count"`
	Next       string           `json:"next,omitempty"`
}

// collection describes how a class may be listed: which query parameters
// filter by equality, which fields the filter expression may reference and
// which fields may order the results.
type collection struct {
	params  []entity.Descriptor
	filter  *filter.Schema
	orderBy []entity.Descriptor
}

// pageRequest parses page_size, page_number and order_by.
func (c collection) pageRequest(values url.Values) (repository.PageRequest, error) {
	req := repository.PageRequest{Size: repository.DefaultPageSize}
	var err error
	if raw := values.Get("page_size"); raw != "" {
		if req.Size, err = strconv.Atoi(raw); err != nil {
			return req, fault.Argument("page_size", "page_size must be an integer")
		}
	}
	if raw := values.Get("page_number"); raw != "" {
		if req.Number, err = strconv.Atoi(raw); err != nil {
			return req, fault.Argument("page_number", "page_number must be an integer")
		}
	}
	if raw := values.Get("order_by"); raw != "" {
		if req.Sort, err = c.sort(raw); err != nil {
			return req, err
		}
	}
	return req, req.Validate()
}

// sort parses "<field>", "<field> asc" or "<field> desc".
func (c collection) sort(raw string) (*query.Sort, error) {
	parts := strings.Fields(raw)
	if len(parts) == 0 || len(parts) > 2 {
		return nil, fault.Argument("order_by", "order_by must be \"<field>[ asc|desc]\"")
	}
	dir := query.Ascending
	if len(parts) == 2 {
		switch strings.ToLower(parts[1]) {
		case "asc":
		case "desc":
			dir = query.Descending
		default:
			return nil, fault.Argument("order_by", fmt.Sprintf("unknown direction %q", parts[1]))
		}
	}
	for _, d := range c.orderBy {
		if d.Name() == parts[0] {
			return &query.Sort{Field: d, Direction: dir}, nil
		}
	}
	return nil, fault.Argument("order_by", fmt.Sprintf("cannot order by %q", parts[0]))
}

// criteria combines base with the equality parameters and the filter
// expression found in values.
func (c collection) criteria(values url.Values, base query.Query) (query.Query, error) {
	q := base
	for _, d := range c.params {
		if raw, ok := values[d.Name()]; ok && len(raw) > 0 {
			if _, err := d.Project(raw[0]); err != nil {
				return nil, fault.Argument(d.Name(), fault.Message(err))
			}
			q = query.AllOf(q, query.Equal(d, raw[0]))
		}
	}
	if expr := values.Get("filter"); expr != "" {
		parsed, err := c.filter.Parse(expr)
		if err != nil {
			return nil, err
		}
		q = query.AllOf(q, parsed)
	}
	return q, nil
}

// list runs a listing query and renders the page as seen by the caller.
func (c collection) list(ctx context.Context, r *request, base query.Query) (*reply, error) {
	values := r.URL.Query()
	req, err := c.pageRequest(values)
	if err != nil {
		return nil, err
	}
	q, err := c.criteria(values, base)
	if err != nil {
		return nil, err
	}
	page, err := r.session.Filter(ctx, q, req)
	if err != nil {
		return nil, err
	}

	body := listing{Items: make([]map[string]any, 0, len(page.Items)), TotalCount: page.TotalCount}
	for _, e := range page.Items {
		body.Items = append(body.Items, entity.View(e, r.viewer()))
	}
	if page.NextPage != nil {
		body.Next = nextLink(r.URL, req.Size, *page.NextPage)
	}
	return &reply{status: http.StatusOK, body: body}, nil
}

// nextLink is the current path and query with the page advanced.
func nextLink(u *url.URL, size, number int) string {
	values := u.Query()
	values.Set("page_size", strconv.Itoa(size))
	values.Set("page_number", strconv.Itoa(number))
	return u.Path + "?" + values.Encode()
}
