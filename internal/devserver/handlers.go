package devserver

import (
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/gdpr-admin/internal/models"
	"github.com/pribylovaa/gdpr-admin/internal/pkg/log"
	"github.com/pribylovaa/gdpr-admin/internal/pkg/redact"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in models.AuthRegisterRequest
	if err := decodeStrict(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}

	u, err := s.register(in.Email, in.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	s.respondSession(w, r, u, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in models.AuthLoginRequest
	if err := decodeStrict(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}

	u, err := s.login(in.Email, in.Password)
	if err != nil {
		log.From(r.Context()).Warn("login_rejected", slog.String("email", redact.Email(in.Email)))
		WriteError(w, r, err)
		return
	}

	s.respondSession(w, r, u, http.StatusOK)
}

func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, u *user, status int) {
	pair, err := s.issueTokenPair(r.Context(), u)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, status, models.AuthPayload{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         u.stored(),
	})
}

// handleRefresh ротирует пару; профиль в ответе не возвращается.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in models.AuthRefreshRequest
	if err := decodeStrict(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}

	uid, err := s.consumeRefreshToken(in.RefreshToken)
	if err != nil {
		log.From(r.Context()).Warn("refresh_rejected", slog.String("err", err.Error()))
		WriteError(w, r, err)
		return
	}

	u, ok := s.userByID(uid)
	if !ok {
		WriteError(w, r, ErrInvalidToken)
		return
	}

	pair, err := s.issueTokenPair(r.Context(), u)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.AuthPayload{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var in models.AuthRevokeRequest
	if err := decodeStrict(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}

	if err := s.revokeRefreshToken(in.RefreshToken); err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.AuthRevokeResponse{Ok: true})
}

// requireBearer валидирует access-токен и кладёт claims в контекст.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, prefix) {
			WriteError(w, r, ErrInvalidToken)
			return
		}

		claims, err := s.validateAccessToken(strings.TrimSpace(auth[len(prefix):]))
		if err != nil {
			log.From(r.Context()).Debug("bearer_rejected", slog.String("err", err.Error()))
			WriteError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		WriteError(w, r, ErrInvalidToken)
		return
	}

	u, ok := s.userByID(uid)
	if !ok {
		WriteError(w, r, ErrNotFound)
		return
	}

	writeJSON(w, http.StatusOK, u.stored())
}

// handleListDSR отдаёт запросы тенанта оператора; ?status= фильтрует.
func (s *Server) handleListDSR(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	status := models.DSRStatus(r.URL.Query().Get("status"))

	out := models.DataRequestList{Items: []models.DataRequest{}}

	s.mu.RLock()
	for _, d := range s.dsrs {
		if d.TenantID != claims.TenantID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out.Items = append(out.Items, d)
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDSR(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	var in models.CreateDataRequest
	if err := decodeStrict(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	if !in.Type.Valid() {
		WriteError(w, r, ErrInvalidArgument)
		return
	}
	if _, err := mail.ParseAddress(in.SubjectEmail); err != nil {
		WriteError(w, r, ErrInvalidEmail)
		return
	}

	d := models.DataRequest{
		ID:           uuid.NewString(),
		TenantID:     claims.TenantID,
		Type:         in.Type,
		SubjectEmail: strings.ToLower(strings.TrimSpace(in.SubjectEmail)),
		Status:       models.DSRPending,
		CreatedAt:    s.now().UTC(),
	}

	s.mu.Lock()
	s.dsrs = append(s.dsrs, d)
	s.mu.Unlock()

	log.From(r.Context()).Info("dsr_created",
		slog.String("id", d.ID),
		slog.String("type", string(d.Type)),
		slog.String("subject", redact.Email(d.SubjectEmail)),
	)

	writeJSON(w, http.StatusCreated, d)
}
