package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "restyle/pkg/errors"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newTestContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSuccess(t *testing.T) {
	c, rec := newTestContext()

	err := Success(c, map[string]string{"id": "conv-1"})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body Response
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Nil(t, body.Error)
}

func TestErrorWithAppError(t *testing.T) {
	c, rec := newTestContext()

	err := Error(c, apperrors.Forbidden("Admin accounts cannot participate in chat", nil))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body Response
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
}

func TestErrorWithUnknownError(t *testing.T) {
	c, rec := newTestContext()

	err := Error(c, assert.AnError)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body Response
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, "An unexpected error occurred", body.Error.Message)
}

func TestSuccessPaginated(t *testing.T) {
	c, rec := newTestContext()

	err := SuccessPaginated(c, []string{"a", "b"}, 5, 2, 2)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data PaginatedResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(5), body.Data.Total)
	assert.Equal(t, 2, body.Data.Page)
	assert.Equal(t, 3, body.Data.TotalPages)
}
