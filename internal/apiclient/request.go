package apiclient

import (
	"context"
	"net/http"
	"net/url"
)

// Request - описание одного вызова API.
type Request struct {
	Method string
	// Path - путь относительно BaseURL или абсолютный URL.
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	// SkipAuthRefresh отключает refresh+retry при 401 для этого запроса.
	SkipAuthRefresh bool
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}

	return r.Method
}

func (c *Client) Get(ctx context.Context, path string, q url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: q}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}
