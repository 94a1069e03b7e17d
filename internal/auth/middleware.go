package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	fsession "github.com/gofiber/fiber/v2/middleware/session"

	"cafe-backend/internal/session"
)

// cookieSessionKey is the cookie-session field holding the registry id.
const cookieSessionKey = "sid"

// Middleware resolves the caller's online session and exposes it as the
// "room" local for the table handlers.
type Middleware struct {
	Registry *session.Registry
	Cookies  *fsession.Store
	Secret   string
}

func NewMiddleware(registry *session.Registry, cookies *fsession.Store, secret string) *Middleware {
	return &Middleware{Registry: registry, Cookies: cookies, Secret: secret}
}

// RequireSession authenticates a request from either surface: a bearer token
// (mobile) or the browser cookie session. Unresolved browser requests go to
// the login page; unresolved token requests get a JSON 404 so clients can't
// probe which session ids exist.
func (m *Middleware) RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid, bearer := m.sessionID(c)
		if sid != "" {
			if room := m.Registry.Lookup(sid); room != nil {
				c.Locals("room", room)
				return c.Next()
			}
		}

		if bearer || wantsJSON(c) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return c.Redirect("/login")
	}
}

// sessionID extracts the registry session id from the request. The second
// return reports whether it came from a bearer token.
func (m *Middleware) sessionID(c *fiber.Ctx) (string, bool) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			sid, err := ParseSessionToken(parts[1], m.Secret)
			if err != nil {
				return "", true
			}
			return sid, true
		}
	}

	sess, err := m.Cookies.Get(c)
	if err != nil {
		return "", false
	}
	sid, _ := sess.Get(cookieSessionKey).(string)
	return sid, false
}

func wantsJSON(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON) ||
		strings.HasPrefix(c.Path(), "/api/")
}

// RoomFrom extracts the resolved RoomContext from a request.
func RoomFrom(c *fiber.Ctx) *session.RoomContext {
	room, _ := c.Locals("room").(*session.RoomContext)
	return room
}
