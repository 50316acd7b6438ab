package credentials

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"

	"github.com/customeros/mailsync/internal/logger"
)

const (
	keySalt        = "salt"
	minCipherInput = 20
)

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// Codec encrypts mailbox secrets at rest. Stored values have the form
// base64(hex(iv) + ":" + hex(ciphertext)) using AES-256-CBC.
type Codec struct {
	key []byte
	log logger.Logger
}

func NewCodec(secret string, log logger.Logger) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("credentials secret is empty")
	}
	key, err := scrypt.Key([]byte(secret), []byte(keySalt), 16384, 8, 1, 32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive credentials key")
	}
	return &Codec{key: key, log: log}, nil
}

func (c *Codec) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", errors.Wrap(err, "failed to create cipher")
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", errors.Wrap(err, "failed to generate iv")
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	encoded := hex.EncodeToString(iv) + ":" + hex.EncodeToString(out)
	return base64.StdEncoding.EncodeToString([]byte(encoded)), nil
}

// Decrypt never fails: anything that is not a value produced by Encrypt is
// returned unchanged and a warning is logged.
func (c *Codec) Decrypt(value string) string {
	if len(value) < minCipherInput {
		c.log.Warn("credential value too short to be encrypted, using as-is")
		return value
	}
	if LooksLikeOneWayHash(value) {
		c.log.Warn("credential value is a bcrypt hash and cannot be decrypted, using as-is")
		return value
	}

	iv, payload, ok := splitEncoded(value)
	if !ok {
		c.log.Warn("credential value is not in encrypted form, using as-is")
		return value
	}

	plain, err := c.decrypt(iv, payload)
	if err != nil {
		c.log.Warnf("credential value could not be decrypted, using as-is: %v", err)
		return value
	}
	return plain
}

func (c *Codec) decrypt(iv, payload []byte) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	if len(payload) == 0 || len(payload)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(payload))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, payload)
	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// IsEncrypted reports whether value is either a bcrypt hash or an Encrypt output.
func IsEncrypted(value string) bool {
	if LooksLikeOneWayHash(value) {
		return true
	}
	_, _, ok := splitEncoded(value)
	return ok
}

func LooksLikeOneWayHash(value string) bool {
	if _, err := bcrypt.Cost([]byte(value)); err == nil {
		return true
	}
	for _, prefix := range bcryptPrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

func splitEncoded(value string) (iv, payload []byte, ok bool) {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, nil, false
	}
	ivHex, payloadHex, found := strings.Cut(string(decoded), ":")
	if !found || len(ivHex) != 2*aes.BlockSize || payloadHex == "" {
		return nil, nil, false
	}
	iv, err = hex.DecodeString(ivHex)
	if err != nil {
		return nil, nil, false
	}
	payload, err = hex.DecodeString(payloadHex)
	if err != nil {
		return nil, nil, false
	}
	return iv, payload, true
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
