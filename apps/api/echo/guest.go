package echoapi

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kashur/backend/core/learning"
)

const guestCookieMaxAge = 365 * 24 * time.Hour

// cookieBackend keeps the guest progress of one request in a base64url encoded cookie.
// Values written during the request are read back without a round trip to the browser.
type cookieBackend struct {
	ctx     echo.Context
	secure  bool
	written map[string][]byte
}

var _ learning.ShadowBackend = (*cookieBackend)(nil)

func (b *cookieBackend) Load(key string) ([]byte, error) {
	if data, ok := b.written[key]; ok {
		return data, nil
	}
	cookie, err := b.ctx.Cookie(key)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil, nil // undecodable reads as empty
	}
	return data, nil
}

func (b *cookieBackend) Save(key string, data []byte) error {
	b.written[key] = append([]byte(nil), data...)
	b.ctx.SetCookie(b.cookie(key, base64.RawURLEncoding.EncodeToString(data), int(guestCookieMaxAge.Seconds())))
	return nil
}

func (b *cookieBackend) Clear(key string) error {
	b.written[key] = nil
	b.ctx.SetCookie(b.cookie(key, "", -1))
	return nil
}

func (b *cookieBackend) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

type guestStores struct {
	cookieName string
	secure     bool
}

func newGuestStores(cookieName string, secure bool) guestStores {
	if cookieName == "" {
		cookieName = learning.ShadowKey
	}
	return guestStores{cookieName: cookieName, secure: secure}
}

// store returns the guest progress store of the request.
func (gs guestStores) store(ctx echo.Context) *learning.ShadowStore {
	backend := &cookieBackend{ctx: ctx, secure: gs.secure, written: make(map[string][]byte)}
	return learning.NewShadowStore(backend, gs.cookieName)
}

// hasEntries reports whether the request carries a guest progress cookie.
func (gs guestStores) hasEntries(ctx echo.Context) bool {
	cookie, err := ctx.Cookie(gs.cookieName)
	return err == nil && cookie.Value != ""
}
