package captcha

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"strconv"
)

// md5Hex matches the upstream javascript MD5 bit for bit; the stdlib
// implementation is conformance-checked by the token vector test.
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NewUUID returns the 32-character random lowercase hex string the
// protocol calls uuid().
func NewUUID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf[:])
}

// Secrets is the per-challenge secret triple derived from the server
// timestamp.
type Secrets struct {
	CaptchaKey string
	Token      string
	IV         string
}

// deriveToken computes the challenge token from its inputs. The ":"
// separating the expiry is carried pre-encoded, as the server expects
// the literal byte sequence "%3A" in the query.
func deriveToken(ts int64, captchaID string, kind Kind, captchaKey string) string {
	tsStr := strconv.FormatInt(ts, 10)
	return md5Hex(tsStr+captchaID+string(kind)+captchaKey) + "%3A" + strconv.FormatInt(ts+300000, 10)
}

// DeriveSecrets computes the secret triple. It is deterministic given
// (ts, captchaID, kind, nowMs) and the uuid stream.
func DeriveSecrets(ts int64, captchaID string, kind Kind, nowMs int64, uuid func() string) Secrets {
	if uuid == nil {
		uuid = NewUUID
	}

	tsStr := strconv.FormatInt(ts, 10)
	captchaKey := md5Hex(tsStr + uuid())

	return Secrets{
		CaptchaKey: captchaKey,
		Token:      deriveToken(ts, captchaID, kind, captchaKey),
		IV:         md5Hex(captchaID + string(kind) + strconv.FormatInt(nowMs, 10) + uuid()),
	}
}
