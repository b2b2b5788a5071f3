package service

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/pribylovaa/gdpr-admin/internal/apiclient"
	"github.com/pribylovaa/gdpr-admin/internal/models"
)

// ListDataRequests возвращает запросы субъектов данных тенанта.
// Пустой status - без фильтра.
func (s *Service) ListDataRequests(ctx context.Context, status models.DSRStatus) ([]models.DataRequest, error) {
	const op = "service.dsr.ListDataRequests"

	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}

	var out models.DataRequestList
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/dsr/requests", Query: q}, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out.Items, nil
}

// CreateDataRequest регистрирует новый запрос субъекта данных.
func (s *Service) CreateDataRequest(ctx context.Context, typ models.DSRType, subjectEmail string) (*models.DataRequest, error) {
	const op = "service.dsr.CreateDataRequest"

	subjectEmail = strings.TrimSpace(subjectEmail)
	if !typ.Valid() {
		return nil, fmt.Errorf("%s: %w: type %q", op, ErrInvalidDSR, typ)
	}
	if _, err := mail.ParseAddress(subjectEmail); err != nil {
		return nil, fmt.Errorf("%s: %w: subject email", op, ErrInvalidDSR)
	}

	var out models.DataRequest
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/dsr/requests",
		Body:   models.CreateDataRequest{Type: typ, SubjectEmail: subjectEmail},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}
