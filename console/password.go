package console

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"golang.org/x/crypto/argon2"
)

const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

var b64 = base64.RawStdEncoding

// argonHash is a decoded $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key> string.
type argonHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h argonHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads, b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func parseArgonHash(encoded string) (argonHash, error) {
	h := argonHash{}
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return h, errors.Errorf("not an argon2id hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, errors.Wrap(err, "version")
	}
	if version != argon2.Version {
		return h, errors.Errorf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return h, errors.Wrap(err, "parameters")
	}
	var err error
	if h.salt, err = b64.DecodeString(parts[4]); err != nil {
		return h, errors.Wrap(err, "salt")
	}
	if h.key, err = b64.DecodeString(parts[5]); err != nil {
		return h, errors.Wrap(err, "key")
	}
	return h, nil
}

// HashPassword returns the Argon2id hash of password in PHC string format,
// as expected in the admins table of the config.
func HashPassword(password string) (string, error) {
	h := argonHash{
		memory:  argon2Memory,
		time:    argon2Time,
		threads: argon2Threads,
		salt:    make([]byte, argon2SaltLen),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", juicebridge.WithStack(err)
	}
	h.key = argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, argon2KeyLen)
	return h.String(), nil
}

func verifyPassword(password, encoded string) bool {
	h, err := parseArgonHash(encoded)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1
}
