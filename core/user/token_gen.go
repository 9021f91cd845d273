package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	resetKeySalt = []byte("wazazi/password-reset")

	// tokens are stamped in seconds since this date
	tokenEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// tokenGenerator makes and checks password reset tokens of the form "<stamp>-<signature>".
// The signature covers the account state a reset changes (password hash, last login, email,
// active flag), so a token is single use and dies with any of those changes.
type tokenGenerator struct {
	key     [sha256.Size]byte
	timeout time.Duration
}

func newTokenGenerator(secretKey string, timeout time.Duration) tokenGenerator {
	return tokenGenerator{
		key:     sha256.Sum256(append(append([]byte{}, resetKeySalt...), secretKey...)),
		timeout: timeout,
	}
}

// encodeUID hides the raw document id from the reset link.
func encodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func (g tokenGenerator) makeToken(usr User) (string, error) {
	return g.tokenAt(usr, stampOf(NowFunc())), nil
}

func (g tokenGenerator) verifyToken(usr User, token string) error {
	stamp36, sig, ok := strings.Cut(token, "-")
	if !ok || stamp36 == "" || sig == "" {
		return errInvalidToken
	}
	stamp, err := strconv.ParseInt(stamp36, 36, 64)
	if err != nil || stamp < 0 {
		return errInvalidToken
	}

	want := g.tokenAt(usr, stamp)
	if !hmac.Equal([]byte(want), []byte(token)) {
		return errInvalidToken
	}
	if stampOf(NowFunc())-stamp > int64(g.timeout/time.Second) {
		return errTokenExpired
	}
	return nil
}

func (g tokenGenerator) tokenAt(usr User, stamp int64) string {
	stamp36 := strconv.FormatInt(stamp, 36)

	h := hmac.New(sha256.New, g.key[:])
	for _, part := range [][]byte{
		[]byte(usr.ID),
		usr.PasswordHash,
		[]byte(usr.Email),
		[]byte(strconv.FormatBool(usr.IsActive)),
		[]byte(lastLoginStamp(usr)),
		[]byte(stamp36),
	} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return stamp36 + "-" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func stampOf(t time.Time) int64 {
	return int64(t.Sub(tokenEpoch) / time.Second)
}

func lastLoginStamp(usr User) string {
	if usr.LastLogin.IsZero() {
		return ""
	}
	return usr.LastLogin.UTC().Truncate(time.Second).Format(time.RFC3339)
}
