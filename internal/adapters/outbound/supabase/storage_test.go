package supabase

import (
	"context"
	"net/http"
	"testing"

	"menu360/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	c, api := newTestClient(t, func(r *http.Request) (int, string) {
		if r.Method == "GET" {
			return 400, `{"statusCode":"404","error":"Bucket not found","message":"Bucket not found"}`
		}
		return 200, `{"name":"menu-images"}`
	})
	s := NewStorage(c, "")

	require.NoError(t, s.EnsureBucket(context.Background()))
	require.Len(t, api.calls, 2)
	assert.Equal(t, "/storage/v1/bucket/menu-images", api.calls[0].path)
	assert.Equal(t, "/storage/v1/bucket", api.calls[1].path)
	assert.Contains(t, api.calls[1].body, `"public":true`)
}

func TestEnsureBucketKeepsExisting(t *testing.T) {
	c, api := newTestClient(t, func(*http.Request) (int, string) { return 200, `{"id":"menu-images"}` })
	require.NoError(t, NewStorage(c, "").EnsureBucket(context.Background()))
	assert.Len(t, api.calls, 1)
}

func TestEnsureBucketSurfacesAuthErrors(t *testing.T) {
	c, _ := newTestClient(t, func(*http.Request) (int, string) { return 401, `{"message":"invalid key"}` })
	err := NewStorage(c, "").EnsureBucket(context.Background())
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUploadAndPublicURL(t *testing.T) {
	c, api := newTestClient(t, func(*http.Request) (int, string) { return 200, `{"Key":"menu-images/r1/a.png"}` })
	s := NewStorage(c, "menu-images")

	require.NoError(t, s.Upload(context.Background(), "r1/i1 new.png", "image/png", []byte("png")))
	call := api.calls[0]
	assert.Equal(t, "/storage/v1/object/menu-images/r1/i1 new.png", call.path)
	assert.Equal(t, "image/png", call.header.Get("Content-Type"))
	assert.Equal(t, "true", call.header.Get("x-upsert"))
	assert.Equal(t, "png", call.body)

	assert.Equal(t, c.BaseURL()+"/storage/v1/object/public/menu-images/r1/a.png", s.PublicURL("r1/a.png"))

	require.NoError(t, s.Delete(context.Background(), "r1/a.png"))
	assert.Equal(t, "DELETE", api.calls[1].method)
	assert.Contains(t, api.calls[1].body, `"prefixes":["r1/a.png"]`)
}
