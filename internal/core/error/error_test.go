package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantNotFound(t *testing.T) {
	err := fmt.Errorf("lookup: %w", TenantNotFound("abc"))

	assert.True(t, errors.Is(err, ErrTenantNotFound))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	assert.Equal(t, TenantNotFoundMessage, MessageOf(err))
	assert.Contains(t, err.Error(), "abc")
}

func TestStatusOfPlainError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Equal(t, SystemErrorMessage, MessageOf(err))
}

func TestWrapRedis(t *testing.T) {
	require.NoError(t, WrapRedis(nil))

	notFound := WrapRedis(redis.Nil)
	assert.Equal(t, http.StatusNotFound, StatusOf(notFound))
	assert.True(t, errors.Is(notFound, redis.Nil))

	other := WrapRedis(errors.New("conn refused"))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(other))
}

func TestWrapSQLite(t *testing.T) {
	require.NoError(t, WrapSQLite(nil))

	base := errors.New("disk full")
	err := WrapSQLite(base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
}

func TestAppErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(nil, http.StatusTeapot, "short and stout"))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusTeapot, appErr.Status)
	assert.Equal(t, "short and stout", appErr.Error())
}
