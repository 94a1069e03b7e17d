package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	fsession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cafe-backend/internal/session"
)

// Handler owns the login/logout surface for both the browser and the mobile
// client.
type Handler struct {
	Client   *Client
	Registry *session.Registry
	Cookies  *fsession.Store
	Secret   string
	Log      *zap.Logger
}

func NewHandler(client *Client, registry *session.Registry, cookies *fsession.Store, secret string, log *zap.Logger) *Handler {
	return &Handler{Client: client, Registry: registry, Cookies: cookies, Secret: secret, Log: log}
}

// Routes mounts the authentication endpoints. These are the only routes not
// behind the session gate.
func (h *Handler) Routes(app fiber.Router) {
	app.Get("/login", h.LoginPage)
	app.Post("/login", h.LoginPost)
	app.Get("/logout", h.Logout)
	app.Post("/api/login", h.MobileLogin)
}

func (h *Handler) LoginPage(c *fiber.Ctx) error {
	return c.Render("login/login", fiber.Map{
		"failed":  c.Query("success") == "false",
		"captcha": c.Query("captcha") == "false",
	})
}

// LoginPost verifies the captcha, delegates the credentials and registers an
// online session. Failures redirect back with a flag; the page never sees
// upstream errors.
func (h *Handler) LoginPost(c *fiber.Ctx) error {
	ok, err := h.Client.VerifyCaptcha(c.Context(), c.FormValue("g-recaptcha-response"), c.IP())
	if err != nil {
		h.Log.Warn("captcha verification unavailable", zap.Error(err))
	}
	if err == nil && !ok {
		return c.Redirect("/login?captcha=false")
	}

	account, err := h.Client.Login(c.Context(), c.FormValue("username"), c.FormValue("password"))
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			h.Log.Error("identity service login failed", zap.Error(err))
		}
		return c.Redirect("/login?success=false")
	}

	sid, err := h.registerSession(account)
	if err != nil {
		return err
	}

	sess, err := h.Cookies.Get(c)
	if err != nil {
		return err
	}
	sess.Set(cookieSessionKey, sid)
	if err := sess.Save(); err != nil {
		return err
	}
	return c.Redirect("/orders")
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	sess, err := h.Cookies.Get(c)
	if err == nil {
		if sid, ok := sess.Get(cookieSessionKey).(string); ok {
			h.Registry.Remove(sid)
		}
		if err := sess.Destroy(); err != nil {
			h.Log.Warn("destroy cookie session", zap.Error(err))
		}
	}
	return c.Redirect("/login")
}

// MobileLogin is the JSON login for the mobile client: same delegation, but
// the session id travels back inside a signed bearer token.
func (h *Handler) MobileLogin(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad request"})
	}

	account, err := h.Client.Login(c.Context(), body.Username, body.Password)
	if err != nil {
		// Unknown user and bad password answer identically.
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}

	sid, err := h.registerSession(account)
	if err != nil {
		return err
	}
	token, err := GenerateSessionToken(sid, h.Secret)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"userId":   account.UserID,
			"name":     account.Name,
			"lastname": account.Lastname,
			"isCheff":  account.IsChef,
			"room":     account.Room,
		},
	})
}

// registerSession puts the account online, displacing any previous session
// of the same user.
func (h *Handler) registerSession(account *Account) (string, error) {
	sid := uuid.New().String()
	displaced := h.Registry.Put(&session.RoomContext{
		SessionID: sid,
		RoomID:    account.Room,
		UserID:    account.UserID,
		IsChef:    account.IsChef,
		Name:      account.Name,
		Lastname:  account.Lastname,
		Token:     account.Token,
	})
	if displaced != "" {
		h.Log.Info("displaced previous session",
			zap.String("userId", account.UserID),
			zap.String("sessionId", displaced))
	}
	return sid, nil
}
