package credentials

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/customeros/mailsync/internal/logger"
)

func testCodec(t *testing.T) *Codec {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	codec, err := NewCodec("test-secret", log)
	require.NoError(t, err)
	return codec
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := testCodec(t)

	encrypted, err := codec.Encrypt("hunter2-imap-password")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(encrypted))
	assert.Equal(t, "hunter2-imap-password", codec.Decrypt(encrypted))

	again, err := codec.Encrypt("hunter2-imap-password")
	require.NoError(t, err)
	assert.NotEqual(t, encrypted, again, "iv must be fresh per call")
}

func TestCodec_DecryptIsLenient(t *testing.T) {
	codec := testCodec(t)

	assert.Equal(t, "short", codec.Decrypt("short"))

	plain := "this is a plain password that is long"
	assert.Equal(t, plain, codec.Decrypt(plain))

	notCipher := base64.StdEncoding.EncodeToString([]byte("00112233445566778899aabbccddeeff:zz"))
	assert.Equal(t, notCipher, codec.Decrypt(notCipher))

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, string(hash), codec.Decrypt(string(hash)))
}

func TestCodec_WrongKeyReturnsInput(t *testing.T) {
	codec := testCodec(t)
	encrypted, err := codec.Encrypt("secret-value")
	require.NoError(t, err)

	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	other, err := NewCodec("another-secret", log)
	require.NoError(t, err)

	// a wrong key almost always breaks the padding; if it does not, the output still differs
	assert.NotEqual(t, "secret-value", other.Decrypt(encrypted))
}

func TestLooksLikeOneWayHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, LooksLikeOneWayHash(string(hash)))
	assert.True(t, LooksLikeOneWayHash("$2y$10$abcdefghijklmnopqrstuv"))
	assert.False(t, LooksLikeOneWayHash("plain-password"))
	assert.False(t, IsEncrypted("plain-password"))
}

func TestNewCodec_EmptySecret(t *testing.T) {
	_, err := NewCodec("", nil)
	assert.Error(t, err)
}
