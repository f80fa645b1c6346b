// Package session holds the logged in user's identity and bearer token and
// persists it, encrypted, per profile.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoSession = errors.New("session: not logged in")

// Session is passed explicitly to everything that talks to the backend on
// behalf of the user.
type Session struct {
	APIURL   string `json:"api_url"`
	WSURL    string `json:"ws_url"`
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
}

func (s *Session) Valid() bool {
	return s != nil && s.Token != "" && s.UserID != ""
}

// Authorization is the header value for REST calls.
func (s *Session) Authorization() string {
	return "Bearer " + s.Token
}

func ConfigDir(profileName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cldzchat", profileName)
}

func getEncryptionKey() []byte {
	paths := []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}
	var id string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			id = strings.TrimSpace(string(data))
			break
		}
	}

	if id == "" {
		hostname, _ := os.Hostname()
		id = hostname
	}

	hash := sha256.Sum256([]byte(id))
	return hash[:]
}

func newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(getEncryptionKey())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encrypt(data []byte) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func sessionPath(profileName string) (string, error) {
	dir := ConfigDir(profileName)
	if dir == "" {
		return "", fmt.Errorf("could not get config directory")
	}
	return filepath.Join(dir, "session.json"), nil
}

// Load returns the stored session for profileName, or ErrNoSession when
// there is none or it cannot be read back.
func Load(profileName string) (*Session, error) {
	path, err := sessionPath(profileName)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	decrypted, err := decrypt(string(data))
	if err != nil {
		// Written by a build that stored it in clear; re-save encrypted.
		var s Session
		if json.Unmarshal(data, &s) == nil && s.Valid() {
			_ = Save(profileName, &s)
			return &s, nil
		}
		return nil, ErrNoSession
	}

	var s Session
	if err := json.Unmarshal(decrypted, &s); err != nil || !s.Valid() {
		return nil, ErrNoSession
	}
	return &s, nil
}

func Save(profileName string, s *Session) error {
	if !s.Valid() {
		return ErrNoSession
	}
	path, err := sessionPath(profileName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	return os.WriteFile(path, []byte(encrypted), 0600)
}

// Clear forgets the stored session; used on logout and on token expiry.
func Clear(profileName string) error {
	path, err := sessionPath(profileName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
