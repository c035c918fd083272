package httpserver

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipline/tipline/internal/models"
	"github.com/tipline/tipline/internal/transport"
)

func (env *httpEnv) promote(t *testing.T, email string, role models.Role) {
	t.Helper()
	require.NoError(t, env.db.Model(&models.User{}).Where("email = ?", email).Update("role", role).Error)
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func TestTipHTTP_CreateRequiresAuth(t *testing.T) {
	t.Parallel()

	env := newHTTPEnv(t)
	login, _ := env.registerAndLogin(t, "tipster@example.com")

	body := transport.CreateTipRequest{Match: "A vs B", Pick: "home win", Odds: 1.9}

	rec := env.do(t, http.MethodPost, "/api/v1/tips", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/tips", body, bearer(login.AccessToken))
	require.Equal(t, http.StatusCreated, rec.Code)

	var tip models.Tip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tip))
	assert.Equal(t, login.User.ID, tip.AuthorID)

	rec = env.do(t, http.MethodPost, "/api/v1/tips", transport.CreateTipRequest{Match: "A vs B", Pick: "home win", Odds: 0.5}, bearer(login.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTipHTTP_GetTip_ViewCounting(t *testing.T) {
	t.Parallel()

	env := newHTTPEnv(t)
	login, _ := env.registerAndLogin(t, "author@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/tips", transport.CreateTipRequest{Match: "A vs B", Pick: "home win", Odds: 1.9}, bearer(login.AccessToken))
	require.Equal(t, http.StatusCreated, rec.Code)
	var tip models.Tip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tip))

	// Anonymous read counts.
	rec = env.do(t, http.MethodGet, "/api/v1/tips/"+tip.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Tip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 1, got.Views)

	// The author reading their own tip does not.
	rec = env.do(t, http.MethodGet, "/api/v1/tips/"+tip.ID.String(), nil, bearer(login.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 1, got.Views)

	rec = env.do(t, http.MethodGet, "/api/v1/tips/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTipHTTP_AdminHide_RequiresModerator(t *testing.T) {
	t.Parallel()

	env := newHTTPEnv(t)
	author, _ := env.registerAndLogin(t, "plain@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/tips", transport.CreateTipRequest{Match: "A vs B", Pick: "home win", Odds: 1.9}, bearer(author.AccessToken))
	require.Equal(t, http.StatusCreated, rec.Code)
	var tip models.Tip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tip))

	rec = env.do(t, http.MethodDelete, "/api/v1/admin/tips/"+tip.ID.String(), nil, bearer(author.AccessToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.do(t, http.MethodPost, "/api/v1/auth/register", transport.RegisterRequest{
		Email: "mod@example.com", Username: "mod", Password: "Secret123",
	}, nil)
	// The role lands in the access token, so the promotion must precede login.
	env.promote(t, "mod@example.com", models.RoleModerator)
	login := env.do(t, http.MethodPost, "/api/v1/auth/login", transport.LoginRequest{
		Email: "mod@example.com", Password: "Secret123",
	}, nil)
	require.Equal(t, http.StatusCreated, login.Code)
	var mod transport.AuthResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &mod))

	rec = env.do(t, http.MethodDelete, "/api/v1/admin/tips/"+tip.ID.String(), nil, bearer(mod.AccessToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// A hidden tip is gone for anonymous and ordinary readers even by direct
	// id, while the author and moderators still reach it.
	rec = env.do(t, http.MethodGet, "/api/v1/tips/"+tip.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/tips/"+tip.ID.String(), nil, bearer(author.AccessToken))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/tips/"+tip.ID.String(), nil, bearer(mod.AccessToken))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Hidden tips drop out of the public list.
	rec = env.do(t, http.MethodGet, "/api/v1/tips", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Meta struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Zero(t, list.Meta.Total)
}

func TestTipHTTP_Comments(t *testing.T) {
	t.Parallel()

	env := newHTTPEnv(t)
	login, _ := env.registerAndLogin(t, "commenter@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/tips", transport.CreateTipRequest{Match: "A vs B", Pick: "home win", Odds: 1.9}, bearer(login.AccessToken))
	require.Equal(t, http.StatusCreated, rec.Code)
	var tip models.Tip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tip))

	rec = env.do(t, http.MethodPost, "/api/v1/tips/"+tip.ID.String()+"/comments", transport.CreateCommentRequest{Body: "nice one"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/tips/"+tip.ID.String()+"/comments", transport.CreateCommentRequest{Body: "nice one"}, bearer(login.AccessToken))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/tips/"+tip.ID.String()+"/comments", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Comments []models.Comment `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Comments, 1)
	assert.Equal(t, "nice one", body.Comments[0].Body)
}

func TestTipHTTP_Search_UnconfiguredReturns503(t *testing.T) {
	t.Parallel()

	env := newHTTPEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/search?q=derby", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
