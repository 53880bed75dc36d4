package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// KeyType names the algorithm a user key belongs to.
type KeyType string

const (
	KeyEd25519 KeyType = "ed25519"
	KeyHMAC    KeyType = "hmac"
)

// Key is one user's verification key. Raw is an ed25519 public key or an
// HMAC secret depending on Type.
type Key struct {
	Type KeyType
	Raw  []byte
}

type keyFile struct {
	Users map[string]struct {
		Type string `yaml:"type"`
		Key  string `yaml:"key"`
	} `yaml:"users"`
}

// Keyring maps users to their verification keys.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]Key
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]Key)}
}

// LoadKeyring reads a YAML keyring:
//
//	users:
//	  alice: {type: ed25519, key: <base64 public key>}
//	  bot:   {type: hmac, key: <base64 secret>}
func LoadKeyring(path string) (*Keyring, error) {
	if path == "" {
		return nil, errors.New("auth: keys_file is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read keyring")
	}
	return ParseKeyring(data)
}

func ParseKeyring(data []byte) (*Keyring, error) {
	var f keyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse keyring")
	}
	kr := NewKeyring()
	for user, e := range f.Users {
		raw, err := base64.StdEncoding.DecodeString(e.Key)
		if err != nil {
			return nil, errors.Wrapf(err, "user %s: key is not base64", user)
		}
		typ := KeyType(e.Type)
		if typ == "" {
			typ = KeyEd25519
		}
		if err := kr.Add(user, Key{Type: typ, Raw: raw}); err != nil {
			return nil, err
		}
	}
	return kr, nil
}

// Add registers or replaces a user's key.
func (k *Keyring) Add(user string, key Key) error {
	switch key.Type {
	case KeyEd25519:
		if len(key.Raw) != ed25519.PublicKeySize {
			return fmt.Errorf("user %s: ed25519 key must be %d bytes, got %d", user, ed25519.PublicKeySize, len(key.Raw))
		}
	case KeyHMAC:
		if len(key.Raw) == 0 {
			return fmt.Errorf("user %s: empty hmac key", user)
		}
	default:
		return fmt.Errorf("user %s: unknown key type %q", user, key.Type)
	}
	k.mu.Lock()
	k.keys[user] = key
	k.mu.Unlock()
	return nil
}

func (k *Keyring) Lookup(user string) (Key, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[user]
	return key, ok
}

func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}
