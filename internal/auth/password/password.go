// Package password hashes account passwords with Argon2id in the PHC string
// format.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost settings recorded in every hash.
type Params struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// Default is what new hashes are created with.
var Default = Params{
	Memory:  64 * 1024,
	Time:    1,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

var errMalformed = errors.New("malformed_password_hash")

type decoded struct {
	params Params
	salt   []byte
	key    []byte
}

// Hash returns an encoded Argon2id hash of plain using Default.
func Hash(plain string) (string, error) {
	return HashWith(plain, Default)
}

func HashWith(plain string, p Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		enc.EncodeToString(salt), enc.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches encoded. Malformed hashes never match.
func Verify(plain, encoded string) bool {
	d, err := decode(encoded)
	if err != nil {
		return false
	}
	check := argon2.IDKey([]byte(plain), d.salt, d.params.Time, d.params.Memory, d.params.Threads, d.params.KeyLen)
	return subtle.ConstantTimeCompare(d.key, check) == 1
}

// NeedsRehash reports whether encoded was made with settings other than
// Default and should be replaced after the next successful login.
func NeedsRehash(encoded string) bool {
	d, err := decode(encoded)
	if err != nil {
		return true
	}
	return d.params.Memory != Default.Memory ||
		d.params.Time != Default.Time ||
		d.params.Threads != Default.Threads ||
		d.params.KeyLen != Default.KeyLen
}

func decode(encoded string) (*decoded, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, errMalformed
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errMalformed
	}

	var d decoded
	if n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.params.Memory, &d.params.Time, &d.params.Threads); err != nil || n != 3 {
		return nil, errMalformed
	}

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, errMalformed
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.key) == 0 {
		return nil, errMalformed
	}
	d.params.SaltLen = len(d.salt)
	d.params.KeyLen = uint32(len(d.key))
	return &d, nil
}
