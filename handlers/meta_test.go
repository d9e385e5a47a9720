package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetadataDoesNotConsume(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.create(t, `{"content":"hello","ttl_seconds":60,"max_views":1}`)

	for i := 0; i < 3; i++ {
		w := env.do(http.MethodGet, "/api/v1/meta/"+id, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		assert.Equal(t, id, resp["id"])
		assert.Equal(t, "ok", resp["status"])
		assert.Equal(t, float64(0), resp["views_used"])
		assert.Equal(t, float64(1), resp["remaining_views"])
		assert.Equal(t, float64(5), resp["size"])
		assert.NotContains(t, resp, "content")
	}

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/pastes/"+id, "", nil).Code)

	w := env.do(http.MethodGet, "/api/v1/meta/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "view_limit_reached", decode(t, w)["status"])

	w = env.do(http.MethodGet, "/api/v1/meta/"+id, "", at(time.Hour))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "expired", decode(t, w)["status"])
}

func TestGetMetadataErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/v1/meta/missing1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/meta/bad.id", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBurnPaste(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.create(t, `{"content":"x"}`)

	w := env.do(http.MethodPost, "/api/v1/burn/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["burned"])

	// idempotent
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/burn/"+id, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/pastes/"+id, "", nil).Code)

	w = env.do(http.MethodGet, "/api/v1/meta/"+id, "", nil)
	assert.Equal(t, "burned", decode(t, w)["status"])

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/v1/burn/missing1", "", nil).Code)
}

func TestReapPastes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, `{"content":"a","ttl_seconds":5}`)
	env.create(t, `{"content":"b","ttl_seconds":5}`)
	env.create(t, `{"content":"c"}`)

	w := env.do(http.MethodPost, "/api/v1/reap", "", at(time.Minute))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["deleted"])

	w = env.do(http.MethodPost, "/api/v1/reap", "", at(time.Minute))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["deleted"])
}
