// Package archive fetches and verifies signed provider archives. An
// archive is a gzipped tar with a claims.jwt entry next to the module
// binary; the claims signature is checked before any payload is returned.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/claims"
)

// ClaimsEntry is the archive member holding the signed claim token.
const ClaimsEntry = "claims.jwt"

// Service resolves archive references. Remote archives are cached on disk
// keyed by reference, so repeated bootstraps don't refetch.
type Service struct {
	cacheDir   string
	httpClient *http.Client
	log        *zap.Logger
}

func NewService(cacheDir string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cacheDir:   cacheDir,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
}

// FetchAndVerify resolves reference to archive bytes, opens the archive,
// and returns the verified provider payload and claims.
func (s *Service) FetchAndVerify(ctx context.Context, reference string) ([]byte, *claims.Claims, error) {
	raw, err := s.fetch(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	return Open(raw)
}

// FetchComponent is FetchAndVerify for component archives: the claims
// must not describe a provider.
func (s *Service) FetchComponent(ctx context.Context, reference string) ([]byte, *claims.Claims, error) {
	raw, err := s.fetch(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	return OpenComponent(raw)
}

func (s *Service) fetch(ctx context.Context, reference string) ([]byte, error) {
	u, err := url.Parse(reference)
	if err != nil || u.Scheme == "" {
		return os.ReadFile(reference)
	}
	switch u.Scheme {
	case "file":
		return os.ReadFile(u.Path)
	case "http", "https":
		return s.fetchHTTP(ctx, reference)
	default:
		return nil, fmt.Errorf("archive: unsupported reference scheme %q", u.Scheme)
	}
}

func (s *Service) fetchHTTP(ctx context.Context, reference string) ([]byte, error) {
	cached := s.cachePath(reference)
	if data, err := os.ReadFile(cached); err == nil {
		s.log.Debug("archive cache hit", zap.String("reference", reference))
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reference, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive: fetch %s: %w", reference, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive: fetch %s: status %d", reference, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.cacheDir, 0755); err == nil {
		if err := os.WriteFile(cached, data, 0644); err != nil {
			s.log.Warn("archive cache write failed", zap.String("path", cached), zap.Error(err))
		}
	}
	return data, nil
}

func (s *Service) cachePath(reference string) string {
	sum := sha256.Sum256([]byte(reference))
	return filepath.Join(s.cacheDir, hex.EncodeToString(sum[:8])+".tar.gz")
}

// Open parses archive bytes: reads claims.jwt and the binary entry,
// verifies the claim signature, and checks the claims describe a
// provider.
func Open(raw []byte) ([]byte, *claims.Claims, error) {
	payload, c, err := parse(raw)
	if err != nil {
		return nil, nil, err
	}
	if !c.Mesh.Provider {
		return nil, nil, fmt.Errorf("archive: claims for %s do not describe a provider", c.Subject())
	}
	return payload, c, nil
}

// OpenComponent parses a component archive; the claims must not carry
// the provider marker.
func OpenComponent(raw []byte) ([]byte, *claims.Claims, error) {
	payload, c, err := parse(raw)
	if err != nil {
		return nil, nil, err
	}
	if c.Mesh.Provider {
		return nil, nil, fmt.Errorf("archive: claims for %s describe a provider, not a component", c.Subject())
	}
	return payload, c, nil
}

func parse(raw []byte) ([]byte, *claims.Claims, error) {
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("archive: not a gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	var token string
	var payload []byte
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("archive: read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, fmt.Errorf("archive: read %s: %w", hdr.Name, err)
		}
		if filepath.Base(hdr.Name) == ClaimsEntry {
			token = strings.TrimSpace(string(data))
		} else if payload == nil {
			payload = data
		}
	}
	if token == "" {
		return nil, nil, errors.New("archive: missing " + ClaimsEntry)
	}
	if payload == nil {
		return nil, nil, errors.New("archive: missing module binary")
	}

	c, err := claims.Decode(token)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: claims verification: %w", err)
	}
	return payload, c, nil
}

// Write builds an archive stream from a claim token and module binary.
// Used by provisioning tooling and tests.
func Write(w io.Writer, token string, binaryName string, binary []byte) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	entries := []struct {
		name string
		data []byte
	}{
		{ClaimsEntry, []byte(token)},
		{binaryName, binary},
	}
	for _, e := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Name:     e.name,
			Mode:     0644,
			Size:     int64(len(e.data)),
			Typeflag: tar.TypeReg,
			ModTime:  time.Now(),
		}); err != nil {
			return err
		}
		if _, err := tw.Write(e.data); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
