// Package crypto lets riker column values be encrypted and decrypted with an encryption key
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
)

const keySize = 32

var (
	keyMu         sync.RWMutex
	encryptionKey []byte
)

// ErrNoKey is returned when encrypting or decrypting before a key was set
var ErrNoKey = errors.New("no encryption key set for riker")

// SetEncryptionKey sets the process-wide key used by the zero Converter
func SetEncryptionKey(key []byte) error {
	if len(key) != keySize {
		return errors.New("encryption keys must be 32 bytes")
	}
	keyMu.Lock()
	defer keyMu.Unlock()
	encryptionKey = key
	return nil
}

// GetEncryptionKey returns the process-wide key
func GetEncryptionKey() ([]byte, error) {
	keyMu.RLock()
	defer keyMu.RUnlock()
	if encryptionKey == nil {
		return nil, ErrNoKey
	}
	return encryptionKey, nil
}

// GenerateNewEncryptionKey returns 32 random bytes
func GenerateNewEncryptionKey() ([]byte, error) {
	key := make([]byte, keySize)
	_, err := rand.Read(key)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptBytes encrypts with the process-wide key
func EncryptBytes(v []byte) ([]byte, error) {
	key, err := GetEncryptionKey()
	if err != nil {
		return nil, err
	}
	return encrypt(v, key)
}

// DecryptBytes decrypts with the process-wide key
func DecryptBytes(v []byte) ([]byte, error) {
	key, err := GetEncryptionKey()
	if err != nil {
		return nil, err
	}
	return decrypt(v, key)
}

/*
Converter stores column values as base64 encoded AES-GCM ciphertext. The zero
Converter uses the key set with SetEncryptionKey; NewConverter binds its own key.

Fields tagged `riker:"encrypted,column=secret"` get a Converter attached.
*/
type Converter struct {
	key []byte
}

// NewConverter returns a Converter bound to key
func NewConverter(key []byte) (*Converter, error) {
	if len(key) != keySize {
		return nil, errors.New("encryption keys must be 32 bytes")
	}
	return &Converter{key: key}, nil
}

func (c *Converter) getKey() ([]byte, error) {
	if c != nil && c.key != nil {
		return c.key, nil
	}
	return GetEncryptionKey()
}

// ToStore encrypts string or []byte values. nil stays nil.
func (c *Converter) ToStore(value interface{}) (interface{}, error) {
	var plaintext []byte
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		plaintext = []byte(v)
	case *string:
		if v == nil {
			return nil, nil
		}
		plaintext = []byte(*v)
	case []byte:
		plaintext = v
	default:
		return nil, fmt.Errorf("can only encrypt string or []byte values, got %T", value)
	}

	key, err := c.getKey()
	if err != nil {
		return nil, err
	}
	encrypted, err := encrypt(plaintext, key)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// FromStore decrypts a base64 ciphertext read from the store into []byte
func (c *Converter) FromStore(value interface{}) (interface{}, error) {
	var encoded string
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		encoded = v
	case []byte:
		encoded = string(v)
	default:
		return nil, errors.New("can only decrypt values which are stored as base64 strings")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New("base64 decoding of value failed")
	}
	key, err := c.getKey()
	if err != nil {
		return nil, err
	}
	return decrypt(ciphertext, key)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
