package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pribylovaa/gdpr-admin/internal/models"
)

// ExchangeRefreshToken выполняет POST /auth/refresh напрямую, минуя
// refresh+retry: без bearer-заголовка и без повторов. Ответ без пары
// токенов считается ErrMalformedResponse.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*models.AuthPayload, error) {
	const op = "apiclient.Client.ExchangeRefreshToken"

	var out models.AuthPayload
	err := c.doBare(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   models.AuthRefreshRequest{RefreshToken: refreshToken},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !out.Valid() {
		return nil, fmt.Errorf("%s: %w: missing token pair", op, ErrMalformedResponse)
	}

	return &out, nil
}

// doBare - одиночная попытка без токена из хранилища.
func (c *Client) doBare(ctx context.Context, req Request, out any) error {
	body, err := encodeBody(req.Body)
	if err != nil {
		return err
	}

	path := NormalizePath(req.Path, c.prefix)
	rid := req.Header.Get("X-Request-Id")
	if rid == "" {
		rid = newRequestID()
	}

	ctx = c.scopedContext(ctx, rid, req.method(), path)

	return c.attempt(ctx, req, path, rid, body, "", 1, out)
}
