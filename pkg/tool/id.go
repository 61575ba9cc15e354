package tool

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const tokenCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CompactUUID strips the dashes of a canonical UUID.
func CompactUUID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}

// ExpandUUID turns a 32-hex compact UUID back into canonical form.
func ExpandUUID(compact string) (string, error) {
	u, err := uuid.Parse(compact)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// RandomToken returns n characters from an unambiguous upper-case alphabet.
func RandomToken(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(tokenCharset)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = tokenCharset[idx.Int64()]
	}
	return string(out)
}
