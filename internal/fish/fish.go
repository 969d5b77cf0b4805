// Package fish implements the FiSH Blowfish-ECB message encryption used
// by IRC clients, together with a concurrent per-destination key store.
package fish

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/crypto/blowfish"
)

const (
	// Prefix marks an encrypted FiSH message
	Prefix = "+OK "
	// mircryption uses this alternative prefix
	altPrefix = "mcps "

	alphabet = "./0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxKey   = 56
)

var (
	ErrNoKey        = errors.New("no key for destination")
	ErrInvalidKey   = errors.New("key must be between 1 and 56 bytes")
	ErrNotEncrypted = errors.New("message is not FiSH encrypted")
)

// Keys is a set of per-destination Blowfish keys.
// Keys is safe for concurrent use by multiple goroutines.
type Keys struct {
	mu      sync.RWMutex
	entries map[string]entry
	ciphers map[string]*blowfish.Cipher
}

// entry keeps a key with the name it was set under
type entry struct {
	name string
	key  string
}

// NewKeys returns a key store seeded with the given name -> key pairs
func NewKeys(seed map[string]string) (*Keys, error) {
	k := &Keys{
		entries: make(map[string]entry),
		ciphers: make(map[string]*blowfish.Cipher),
	}
	for name, key := range seed {
		if err := k.SetKey(name, key); err != nil {
			return nil, fmt.Errorf("key for %s: %w", name, err)
		}
	}
	return k, nil
}

// Canonical returns the store form of a name as operators write it:
// one leading '#' or '@' removed, case folded. "##x" and "#x" are
// different destinations.
func Canonical(name string) string {
	if strings.HasPrefix(name, "#") || strings.HasPrefix(name, "@") {
		name = name[1:]
	}
	return strings.ToLower(name)
}

// HasKey reports whether a key exists for the destination. name is a
// channel name or nick with its one sigil already removed.
func (k *Keys) HasKey(name string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.ciphers[strings.ToLower(name)]
	return ok
}

// SetKey adds or replaces the key for a destination
func (k *Keys) SetKey(name, key string) error {
	if len(key) == 0 || len(key) > maxKey {
		return ErrInvalidKey
	}
	c, err := blowfish.NewCipher([]byte(key))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	canon := Canonical(name)
	k.entries[canon] = entry{name: name, key: key}
	k.ciphers[canon] = c
	return nil
}

// RemoveKey deletes the key set under name (sigil optional), reporting
// whether one existed
func (k *Keys) RemoveKey(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	name = Canonical(name)
	_, ok := k.ciphers[name]
	delete(k.ciphers, name)
	delete(k.entries, name)
	return ok
}

// Names returns the names keys were set under, sorted
func (k *Keys) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	names := lo.MapToSlice(k.entries, func(_ string, e entry) string {
		return e.name
	})
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all name -> key pairs, keyed by the names
// they were set under so that SetKey restores the same store
func (k *Keys) Snapshot() map[string]string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return lo.MapEntries(k.entries, func(_ string, e entry) (string, string) {
		return e.name, e.key
	})
}

// Encrypt enciphers text with the destination's key (name as for
// HasKey) and returns it in FiSH wire form ("+OK " followed by the FiSH base64 encoding).
func (k *Keys) Encrypt(name, text string) (string, error) {
	c, err := k.cipher(name)
	if err != nil {
		return "", err
	}

	buf := []byte(text)
	if pad := len(buf) % blowfish.BlockSize; pad != 0 || len(buf) == 0 {
		buf = append(buf, make([]byte, blowfish.BlockSize-pad)...)
	}
	for i := 0; i < len(buf); i += blowfish.BlockSize {
		c.Encrypt(buf[i:i+blowfish.BlockSize], buf[i:i+blowfish.BlockSize])
	}
	return Prefix + encode(buf), nil
}

// Decrypt reverses Encrypt. name follows the same form as for HasKey.
func (k *Keys) Decrypt(name, message string) (string, error) {
	var body string
	switch {
	case strings.HasPrefix(message, Prefix):
		body = message[len(Prefix):]
	case strings.HasPrefix(message, altPrefix):
		body = message[len(altPrefix):]
	default:
		return "", ErrNotEncrypted
	}

	c, err := k.cipher(name)
	if err != nil {
		return "", err
	}

	buf, err := decode(body)
	if err != nil {
		return "", err
	}
	for i := 0; i < len(buf); i += blowfish.BlockSize {
		c.Decrypt(buf[i:i+blowfish.BlockSize], buf[i:i+blowfish.BlockSize])
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

func (k *Keys) cipher(name string) (*blowfish.Cipher, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	c, ok := k.ciphers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoKey, name)
	}
	return c, nil
}

// encode writes each 8-byte block as 12 characters: six for the right
// half, then six for the left, least significant bits first.
func encode(buf []byte) string {
	var sb strings.Builder
	sb.Grow(len(buf) / blowfish.BlockSize * 12)
	for i := 0; i < len(buf); i += blowfish.BlockSize {
		left := binary.BigEndian.Uint32(buf[i : i+4])
		right := binary.BigEndian.Uint32(buf[i+4 : i+8])
		for j := 0; j < 6; j++ {
			sb.WriteByte(alphabet[right&0x3f])
			right >>= 6
		}
		for j := 0; j < 6; j++ {
			sb.WriteByte(alphabet[left&0x3f])
			left >>= 6
		}
	}
	return sb.String()
}

func decode(s string) ([]byte, error) {
	if len(s) == 0 || len(s)%12 != 0 {
		return nil, ErrNotEncrypted
	}
	out := make([]byte, 0, len(s)/12*blowfish.BlockSize)
	for i := 0; i < len(s); i += 12 {
		var left, right uint32
		for j := 0; j < 6; j++ {
			v := strings.IndexByte(alphabet, s[i+j])
			if v < 0 {
				return nil, ErrNotEncrypted
			}
			right |= uint32(v) << (6 * j)
		}
		for j := 0; j < 6; j++ {
			v := strings.IndexByte(alphabet, s[i+6+j])
			if v < 0 {
				return nil, ErrNotEncrypted
			}
			left |= uint32(v) << (6 * j)
		}
		out = binary.BigEndian.AppendUint32(out, left)
		out = binary.BigEndian.AppendUint32(out, right)
	}
	return out, nil
}
