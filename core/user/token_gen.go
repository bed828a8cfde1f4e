package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
)

var (
	tokenSalt = []byte("academia.core.user.token_gen")
	tsEncoder = base32.StdEncoding.WithPadding(base32.NoPadding)
	NowFunc   = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes the User ID for use in password reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

// MakeToken generates a password reset token for usr.
// The token is "<base32 day stamp>-<signature>"; it is invalidated as soon as the
// user's password, last login or account status changes.
func MakeToken(usr User) (string, error) {
	return makeTokenWithDay(usr, daysSince2001(NowFunc()))
}

// verifyToken checks that token is a valid, unexpired password reset token for usr.
func verifyToken(usr User, token string) error {
	stamp, _, found := strings.Cut(token, "-")
	if !found || stamp == "" {
		return errInvalidToken
	}
	raw, err := tsEncoder.DecodeString(stamp)
	if err != nil {
		return errInvalidToken
	}
	day, err := strconv.Atoi(string(raw))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	expected, err := makeTokenWithDay(usr, day)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 0 {
		return errInvalidToken
	}

	maxDays := int(core.Conf.PasswordResetTimeoutDelta / (24 * time.Hour))
	if daysSince2001(NowFunc())-day > maxDays {
		return errTokenExpired
	}
	return nil
}

func makeTokenWithDay(usr User, day int) (string, error) {
	sig, err := sign(tokenState(usr, day))
	if err != nil {
		return "", err
	}
	return tsEncoder.EncodeToString([]byte(strconv.Itoa(day))) + "-" + sig, nil
}

func daysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(val []byte) (string, error) {
	key := sha256.Sum256(append(append([]byte{}, tokenSalt...), core.Conf.SecretKey...))
	h := hmac.New(sha256.New, key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

// tokenState is the user state a token is bound to.
func tokenState(usr User, day int) []byte {
	var val bytes.Buffer
	val.WriteString(usr.ID)
	val.Write(usr.PasswordHash)
	val.WriteString(string(usr.Status))
	if !usr.LastLogin.IsZero() {
		val.WriteString(usr.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.Itoa(day))
	return val.Bytes()
}
