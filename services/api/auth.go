package api

import (
	"bufio"
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const authRealm = "shutdownd"

// Credentials holds operator accounts loaded from an htpasswd file. Only
// bcrypt ($2a$, $2b$, $2y$) and {SHA} entries are accepted.
type Credentials struct {
	users map[string]string
}

// LoadHtpasswd reads an htpasswd file from disk.
func LoadHtpasswd(path string) (*Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open htpasswd file %q: %w", path, err)
	}
	defer f.Close()

	creds, err := ParseHtpasswd(f)
	if err != nil {
		return nil, fmt.Errorf("htpasswd file %q: %w", path, err)
	}
	return creds, nil
}

// ParseHtpasswd parses htpasswd lines of the form user:hash.
func ParseHtpasswd(r io.Reader) (*Credentials, error) {
	creds := &Credentials{users: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		user, hash, ok := strings.Cut(line, ":")
		if !ok || user == "" || hash == "" {
			return nil, fmt.Errorf("line %d: expected user:hash", lineNo)
		}
		if !supportedHash(hash) {
			return nil, fmt.Errorf("line %d: unsupported hash format for user %q", lineNo, user)
		}
		creds.users[user] = hash
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(creds.users) == 0 {
		return nil, errors.New("no users defined")
	}
	return creds, nil
}

func supportedHash(hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return true
	case strings.HasPrefix(hash, "{SHA}"):
		return true
	default:
		return false
	}
}

// Verify reports whether password matches the stored hash for user.
func (c *Credentials) Verify(user, password string) bool {
	if c == nil {
		return false
	}
	hash, ok := c.users[user]
	if !ok {
		return false
	}

	if encoded, isSHA := strings.CutPrefix(hash, "{SHA}"); isSHA {
		sum := sha1.Sum([]byte(password))
		expected := base64.StdEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(encoded), []byte(expected)) == 1
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type userKey struct{}

func userFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || !a.credentials.Verify(user, password) {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", authRealm))
			respondError(w, http.StatusUnauthorized, errors.New("invalid username or password"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}
