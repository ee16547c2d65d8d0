package archive

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/keys"
)

func buildArchive(t *testing.T, payload claims.Payload, binary []byte) []byte {
	t.Helper()
	issuer, err := keys.Generate(keys.KindHost)
	require.NoError(t, err)
	subj, err := keys.Generate(keys.KindProvider)
	require.NoError(t, err)
	tok, err := claims.Sign(issuer, subj.PublicKeyID(), payload)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tok, "provider.bin", binary))
	return buf.Bytes()
}

func TestOpenRoundTrip(t *testing.T) {
	raw := buildArchive(t, claims.Payload{Name: "cache", Provider: true, ContractID: "mesh:keyvalue"}, []byte("binary-bytes"))

	payload, c, err := Open(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("binary-bytes"), payload)
	assert.Equal(t, "cache", c.Mesh.Name)
	assert.True(t, c.Mesh.Provider)
}

func TestOpenRejectsNonProviderClaims(t *testing.T) {
	raw := buildArchive(t, claims.Payload{Name: "component"}, []byte("x"))
	_, _, err := Open(raw)
	assert.Error(t, err)
}

func TestOpenComponent(t *testing.T) {
	raw := buildArchive(t, claims.Payload{Name: "billing"}, []byte("wasm"))
	payload, c, err := OpenComponent(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("wasm"), payload)
	assert.Equal(t, "billing", c.Mesh.Name)

	prov := buildArchive(t, claims.Payload{Name: "cache", Provider: true}, []byte("bin"))
	_, _, err = OpenComponent(prov)
	assert.Error(t, err)
}

func TestOpenRejectsGarbage(t *testing.T) {
	_, _, err := Open([]byte("definitely not gzip"))
	assert.Error(t, err)
}

func TestFetchAndVerifyFromFile(t *testing.T) {
	raw := buildArchive(t, claims.Payload{Name: "cache", Provider: true}, []byte("bin"))
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.tar.gz")
	require.NoError(t, os.WriteFile(path, raw, 0644))

	svc := NewService(t.TempDir(), nil)
	payload, c, err := svc.FetchAndVerify(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, []byte("bin"), payload)
	assert.Equal(t, "cache", c.Mesh.Name)

	// Bare paths work too.
	_, _, err = svc.FetchAndVerify(context.Background(), path)
	require.NoError(t, err)
}

func TestFetchAndVerifyHTTPWithCache(t *testing.T) {
	raw := buildArchive(t, claims.Payload{Name: "cache", Provider: true}, []byte("bin"))

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	svc := NewService(t.TempDir(), nil)
	_, _, err := svc.FetchAndVerify(context.Background(), srv.URL+"/cache.tar.gz")
	require.NoError(t, err)
	_, _, err = svc.FetchAndVerify(context.Background(), srv.URL+"/cache.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "second fetch should be served from the disk cache")
}

func TestFetchRejectsUnknownScheme(t *testing.T) {
	svc := NewService(t.TempDir(), nil)
	_, _, err := svc.FetchAndVerify(context.Background(), "ftp://example/cache.tar.gz")
	assert.Error(t, err)
}
