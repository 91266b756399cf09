package tokenstore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/core/ports"
)

const (
	fileVersion = 1
	filePerm    = 0o600
	dirPerm     = 0o700
	keyInfo     = "resident-portal token store v1"
)

// fileRecord is the on-disk layout. Token holds base64(nonce||ciphertext)
// when Sealed is set.
type fileRecord struct {
	Version int       `json:"version"`
	Token   string    `json:"token"`
	Sealed  bool      `json:"sealed"`
	SavedAt time.Time `json:"saved_at"`
}

// File keeps the credential in a JSON file so it survives restarts. With a
// secret configured the token is sealed with XChaCha20-Poly1305.
type File struct {
	path string
	aead cipher.AEAD

	mu sync.Mutex
}

var _ ports.TokenStore = (*File)(nil)

// NewFile returns a store writing to path. An empty secret stores the token
// in clear text.
func NewFile(path, secret string) (*File, error) {
	if path == "" {
		return nil, errors.New("tokenstore: file path is required")
	}
	f := &File{path: path}
	if secret == "" {
		return f, nil
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("tokenstore: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: create cipher: %w", err)
	}
	f.aead = aead
	return f, nil
}

// DefaultPath is <user config dir>/resident-portal/<profile>.json.
func DefaultPath(profile string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("tokenstore: locate config dir: %w", err)
	}
	return filepath.Join(dir, "resident-portal", profile+".json"), nil
}

func (f *File) Save(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := fileRecord{Version: fileVersion, Token: token, SavedAt: time.Now().UTC()}
	if f.aead != nil {
		nonce := make([]byte, f.aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("tokenstore: nonce: %w", err)
		}
		rec.Token = base64.StdEncoding.EncodeToString(f.aead.Seal(nonce, nonce, []byte(token), nil))
		rec.Sealed = true
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("tokenstore: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), dirPerm); err != nil {
		return fmt.Errorf("tokenstore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".token-*")
	if err != nil {
		return fmt.Errorf("tokenstore: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: write: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenstore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("tokenstore: replace: %w", err)
	}
	return nil
}

func (f *File) Load(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.ErrNoCredential
		}
		return "", fmt.Errorf("tokenstore: read: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("tokenstore: decode: %w", err)
	}
	if rec.Token == "" {
		return "", domain.ErrNoCredential
	}
	if !rec.Sealed {
		return rec.Token, nil
	}
	if f.aead == nil {
		return "", errors.New("tokenstore: credential is sealed but no key is configured")
	}

	raw, err := base64.StdEncoding.DecodeString(rec.Token)
	if err != nil || len(raw) < f.aead.NonceSize() {
		return "", errors.New("tokenstore: sealed credential is corrupt")
	}
	plain, err := f.aead.Open(nil, raw[:f.aead.NonceSize()], raw[f.aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("tokenstore: open sealed credential: %w", err)
	}
	return string(plain), nil
}

func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("tokenstore: remove: %w", err)
	}
	return nil
}
