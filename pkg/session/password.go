package session

import (
	"bytes"
	"crypto/des"
	"encoding/hex"

	"github.com/cxsign/cxsign/pkg/common"
)

// fixed key used by the login page's javascript encoder
const desKey = "u2oh6Vu^"

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

// EncryptPassword reproduces the login form's DES-ECB encoding: PKCS#7
// padding, lowercase hex output. The server accepts passwords of 8 to 16
// bytes only.
func EncryptPassword(plain string) (string, error) {
	if len(plain) < 8 || len(plain) > 16 {
		return "", common.ErrBadPassword
	}

	block, err := des.NewCipher([]byte(desKey))
	if err != nil {
		return "", err
	}

	data := pkcs7Pad([]byte(plain), block.BlockSize())
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += block.BlockSize() {
		block.Encrypt(out[i:], data[i:])
	}

	return hex.EncodeToString(out), nil
}
