// Package initdata проверяет подпись initData, которую Telegram WebApp
// передаёт бэкенду, и разбирает её в структуру.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/linemk/tolo-delivery/internal/lib/apperr"
)

const (
	hashKey     = "hash"
	userKey     = "user"
	authDateKey = "auth_date"

	// ключ первого HMAC фиксирован протоколом Telegram
	webAppDataKey = "WebAppData"
)

// User - объект пользователя из поля user
type User struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
	Username    string `json:"username,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// DisplayName собирает имя для профиля
func (u *User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Username
	}
	return name
}

// InitData - проверенный набор полей.
// Если поле user не удалось разобрать как JSON, User == nil, а исходная строка лежит в RawUser.
type InitData struct {
	Fields   map[string]string
	Hash     string
	User     *User
	RawUser  string
	AuthDate time.Time
}

// Verifier проверяет initData токеном бота
type Verifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewVerifier возвращает ошибку конфигурации, если токен бота не задан.
// maxAge <= 0 отключает проверку auth_date.
func NewVerifier(botToken string, maxAge time.Duration) (*Verifier, error) {
	if botToken == "" {
		return nil, apperr.ErrNoBotToken
	}
	return &Verifier{
		secret: secretKey(botToken),
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// Verify проверяет подпись и разбирает initData.
func (v *Verifier) Verify(raw string) (*InitData, error) {
	fields, err := parse(raw)
	if err != nil {
		return nil, err
	}

	received, ok := fields[hashKey]
	if !ok {
		return nil, apperr.ErrMissingSignature
	}
	delete(fields, hashKey)

	expected := sign(v.secret, fields)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(received))) {
		return nil, apperr.ErrInvalidSignature
	}

	data := &InitData{Fields: fields, Hash: received}

	if ts, ok := fields[authDateKey]; ok {
		if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
			data.AuthDate = time.Unix(sec, 0)
		}
	}
	if v.maxAge > 0 {
		if data.AuthDate.IsZero() || v.now().Sub(data.AuthDate) > v.maxAge {
			return nil, apperr.ErrInitDataExpired
		}
	}

	if rawUser, ok := fields[userKey]; ok {
		var u User
		if err := json.Unmarshal([]byte(rawUser), &u); err == nil && u.ID != 0 {
			data.User = &u
		} else {
			data.RawUser = rawUser
		}
	}

	return data, nil
}

// Sign собирает подписанную строку initData из полей.
// Пригодится для тестов и локальной отладки WebApp.
func Sign(botToken string, fields map[string]string) string {
	values := url.Values{}
	for k, v := range fields {
		if k == hashKey {
			continue
		}
		values.Set(k, v)
	}
	values.Set(hashKey, sign(secretKey(botToken), fields))
	return values.Encode()
}

// parse разбивает строку на пары key=value. Повторяющийся ключ перезаписывает предыдущий.
func parse(raw string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, segment := range strings.Split(raw, "&") {
		if segment == "" {
			continue
		}
		key, value, _ := strings.Cut(segment, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", apperr.ErrMalformedInitData, key, err)
		}
		val, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("%w: value of %q: %v", apperr.ErrMalformedInitData, k, err)
		}
		fields[k] = val
	}
	return fields, nil
}

func secretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(webAppDataKey))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// sign считает hex(HMAC-SHA256(secret, data_check_string)), поле hash игнорируется
func sign(secret []byte, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == hashKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
