package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ObjectStore = (*FSStore)(nil)

// FSStore implements ObjectStore on the local filesystem. Objects live under
// a root directory, one file per key, with a sidecar metadata file for the
// content type. Presigned URLs are HMAC-signed paths served by the API.
type FSStore struct {
	root       string
	baseURL    string
	signingKey []byte
}

// FSStoreConfig holds filesystem store configuration
type FSStoreConfig struct {
	// Root is the directory objects are stored under
	Root string

	// BaseURL is prepended to presigned paths (e.g. http://localhost:8080)
	BaseURL string

	// SigningKey signs presigned URLs. Must match the API's verification key.
	SigningKey string
}

type objectMeta struct {
	ContentType string `json:"content_type"`
}

// NewFSStore creates a filesystem-backed object store rooted at cfg.Root
func NewFSStore(cfg FSStoreConfig) (*FSStore, error) {
	if cfg.Root == "" {
		return nil, errors.New("object store root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}

	return &FSStore{
		root:       cfg.Root,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		signingKey: []byte(cfg.SigningKey),
	}, nil
}

// Put stores bytes under a key, overwriting any previous object.
// The write goes through a temp file and rename so readers never see a
// partially written object.
func (s *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit object: %w", err)
	}

	if contentType != "" {
		meta, err := json.Marshal(objectMeta{ContentType: contentType})
		if err != nil {
			return err
		}
		if err := os.WriteFile(path+".meta", meta, 0o644); err != nil {
			return fmt.Errorf("write object metadata: %w", err)
		}
	}

	return nil
}

// Get retrieves the bytes stored under a key
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// ContentType returns the stored content type for a key, if recorded
func (s *FSStore) ContentType(key string) (string, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path + ".meta")
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var meta objectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", err
	}
	return meta.ContentType, nil
}

// Exists reports whether an object is stored under the key
func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PresignGet issues a time-limited retrieval URL. The signature covers the
// key and expiry, so the URL cannot be altered to reach other objects.
func (s *FSStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, err := s.keyPath(key); err != nil {
		return "", err
	}

	expires := time.Now().Add(expiry).Unix()
	sig := s.sign(key, expires)

	return fmt.Sprintf("%s/objects/%s?expires=%d&signature=%s", s.baseURL, key, expires, sig), nil
}

// VerifySignature checks a presigned URL's signature and expiry.
// The API's object handler calls this before serving a file.
func (s *FSStore) VerifySignature(key string, expires int64, signature string) error {
	if time.Now().Unix() > expires {
		return errors.New("url expired")
	}
	expected := s.sign(key, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("invalid signature")
	}
	return nil
}

// Ping checks if the storage root is writable
func (s *FSStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("object store root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("object store root %s is not a directory", s.root)
	}
	return nil
}

func (s *FSStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// keyPath maps an object key onto the filesystem, rejecting traversal.
func (s *FSStore) keyPath(key string) (string, error) {
	if key == "" {
		return "", errors.New("object key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key: %s", key)
	}
	return filepath.Join(s.root, clean), nil
}
