package secrets

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/sf7293/job-notifier/internal/errval"
)

// Resolver turns raw configuration values into plaintext on demand. Values are
// classified once at construction (plain vs ENC:-prefixed); encrypted ones are
// decrypted lazily, once per process lifetime, and cached for concurrent
// readers. The cache is only invalidated by a restart.
//
// Decryption failures are deliberately non-fatal: the encrypted-looking raw
// string is returned unchanged and a warning is logged, so a misconfigured key
// degrades individual credentials instead of taking the process down. The one
// fatal condition is a missing key, since that makes every encrypted value
// permanently unusable.
type Resolver struct {
	key     string
	entries map[string]*entry
}

type entry struct {
	raw       string
	encrypted bool

	once      sync.Once
	plaintext string
}

// NewResolver builds a resolver over the given name -> raw value mapping.
// It returns errval.ErrMissingEncryptionKey when the key is empty.
func NewResolver(base64Key string, values map[string]string) (*Resolver, error) {
	if base64Key == "" {
		return nil, errval.ErrMissingEncryptionKey
	}

	entries := make(map[string]*entry, len(values))
	for name, raw := range values {
		entries[name] = &entry{
			raw:       raw,
			encrypted: strings.HasPrefix(raw, EncryptedMarker),
		}
	}

	return &Resolver{
		key:     base64Key,
		entries: entries,
	}, nil
}

// Resolve returns the plaintext for the given configuration name. Unknown
// names and plain values pass through unchanged.
func (r *Resolver) Resolve(name string) string {
	e, ok := r.entries[name]
	if !ok {
		return ""
	}

	if !e.encrypted {
		return e.raw
	}

	e.once.Do(func() {
		plaintext, err := Decrypt(e.raw, r.key)
		if err != nil {
			slog.Warn("Failed to decrypt configuration value, returning it as-is", "name", name, "error", err.Error())
			e.plaintext = e.raw
			return
		}

		e.plaintext = plaintext
	})

	return e.plaintext
}
