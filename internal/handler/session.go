package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fairyhunter13/storefront-discount-service/internal/discountstate"
	"github.com/fairyhunter13/storefront-discount-service/internal/region"
	"github.com/fairyhunter13/storefront-discount-service/internal/storefront"
)

// Cookies and headers exchanged with the storefront.
const (
	CartCookie  = "cart_id"
	ProbeCookie = "sf_probe"

	// The storefront script sends these after a successful write-then-read of
	// a throwaway cookie or local storage key.
	HeaderStorageCookie = "X-Storage-Cookie"
	HeaderStorageLocal  = "X-Storage-Local"
)

const sessionLocal = "discount_session"

// SessionRegistry hands out per-browser discount sessions.
type SessionRegistry interface {
	Get(id string) *storefront.Session
	Release(id string)
}

// SessionConfig names the session cookie and how long it lives.
type SessionConfig struct {
	Cookie string
	MaxAge time.Duration
}

// SessionMiddleware binds the browser's discount session to the request.
// The session store is also put on the user context for context-aware consumers.
func SessionMiddleware(sessions SessionRegistry, cfg SessionConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := sessions.Get(c.Cookies(cfg.Cookie))
		c.Locals(sessionLocal, sess)
		c.SetUserContext(discountstate.NewContext(c.UserContext(), sess.Store))

		c.Cookie(&fiber.Cookie{
			Name:     cfg.Cookie,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int(cfg.MaxAge.Seconds()),
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		// Echoed back by browsers that accept cookies.
		c.Cookie(&fiber.Cookie{
			Name:     ProbeCookie,
			Value:    "1",
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.Next()
	}
}

func sessionFrom(c *fiber.Ctx) (*storefront.Session, bool) {
	sess, ok := c.Locals(sessionLocal).(*storefront.Session)
	return sess, ok && sess != nil
}

// storageProbe reports what the browser said it can persist.
type storageProbe struct {
	cookie bool
	local  bool
}

func (p storageProbe) CookieWritable() bool       { return p.cookie }
func (p storageProbe) LocalStorageWritable() bool { return p.local }

func probeFrom(c *fiber.Ctx) storageProbe {
	return storageProbe{
		cookie: c.Cookies(ProbeCookie) != "" || c.Get(HeaderStorageCookie) == "1",
		local:  c.Get(HeaderStorageLocal) == "1",
	}
}

// requestBuilder derives the flow request from cookies and headers.
type requestBuilder struct {
	regions       *region.Resolver
	countryHeader string
}

func (b requestBuilder) build(c *fiber.Ctx) storefront.Request {
	return storefront.Request{
		CartID:   c.Cookies(CartCookie),
		RegionID: b.regions.Resolve(c.Get(b.countryHeader), c.Cookies(region.CountryCookie)),
		Probe:    probeFrom(c),
	}
}

func setCartCookie(c *fiber.Ctx, cartID string) {
	if cartID == "" {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     CartCookie,
		Value:    cartID,
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
