package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// initDataMaxAge bounds how stale a signed login blob may be.
const initDataMaxAge = 24 * time.Hour

// ErrInvalidInitData marks signature or freshness failures; the auth
// service maps it to 401 invalid_init_data.
type InitDataError struct {
	Reason string
}

func (e *InitDataError) Error() string {
	return "invalid_init_data: " + e.Reason
}

// TelegramUser is the user object embedded in initData.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// VerifyInitData validates a Telegram WebApp initData blob against the
// bot signing secret, per the platform's HMAC scheme: the data-check
// string is the sorted key=value lines excluding "hash", keyed with
// HMAC-SHA256("WebAppData", botToken).
func VerifyInitData(initData, botToken string) (*TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, &InitDataError{Reason: "malformed query string"}
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, &InitDataError{Reason: "missing hash"}
	}
	values.Del("hash")

	pairs := make([]string, 0, len(values))
	for k := range values {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	secret := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return nil, &InitDataError{Reason: "signature mismatch"}
	}

	if authDate := values.Get("auth_date"); authDate != "" {
		ts, err := strconv.ParseInt(authDate, 10, 64)
		if err != nil {
			return nil, &InitDataError{Reason: "malformed auth_date"}
		}
		if time.Since(time.Unix(ts, 0)) > initDataMaxAge {
			return nil, &InitDataError{Reason: "stale auth_date"}
		}
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, &InitDataError{Reason: "missing user"}
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, &InitDataError{Reason: "malformed user"}
	}
	if user.ID == 0 {
		return nil, &InitDataError{Reason: "missing user id"}
	}
	return &user, nil
}

// SignInitData produces a signed initData blob. Exists for tests and
// local tooling; production blobs come from Telegram.
func SignInitData(values url.Values, botToken string) string {
	values.Del("hash")
	pairs := make([]string, 0, len(values))
	for k := range values {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	secret := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}
