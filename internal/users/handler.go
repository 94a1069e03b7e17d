package users

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"cafe-backend/internal/auth"
	"cafe-backend/internal/tableapi"
)

// Handler serves the staff-management screens. Accounts live in the identity
// service; these handlers only proxy, following the same redirect-flag
// contract as the generated table controllers.
type Handler struct {
	Client *auth.Client
	Log    *zap.Logger
}

func NewHandler(client *auth.Client, log *zap.Logger) *Handler {
	return &Handler{Client: client, Log: log}
}

// Routes mounts the staff screens behind the given session middleware.
func (h *Handler) Routes(app fiber.Router, middleware ...fiber.Handler) {
	add := func(method, path string, handler fiber.Handler) {
		app.Add(method, path, append(append([]fiber.Handler{}, middleware...), handler)...)
	}
	add(fiber.MethodGet, "/staff", h.List)
	add(fiber.MethodGet, "/staffAdd", h.AddForm)
	add(fiber.MethodPost, "/staffAddPost", h.AddPost)
	add(fiber.MethodGet, "/staffUpdate", h.UpdateForm)
	add(fiber.MethodPost, "/staffUpdatePost", h.UpdatePost)
	add(fiber.MethodPost, "/staffDeletePost", h.DeletePost)
}

func (h *Handler) List(c *fiber.Ctx) error {
	room := auth.RoomFrom(c)
	if room == nil {
		return tableapi.UnauthorizedError("no resolved session for request")
	}

	accounts, err := h.Client.Users(c.Context(), room.Token, room.RoomID)
	if err != nil {
		return err
	}
	return c.Render("staff/staff", fiber.Map{"data": fiber.Map{
		"accounts": accounts,
		"name":     room.Name + " " + room.Lastname,
	}})
}

func (h *Handler) AddForm(c *fiber.Ctx) error {
	return c.Render("staff/staffAdd", fiber.Map{"data": fiber.Map{}})
}

func (h *Handler) AddPost(c *fiber.Ctx) error {
	room := auth.RoomFrom(c)
	if room == nil {
		return tableapi.UnauthorizedError("no resolved session for request")
	}

	payload := staffPayload(c)
	payload["room"] = room.RoomID

	if err := h.Client.Register(c.Context(), room.Token, payload); err != nil {
		h.Log.Error("staff register failed", zap.Error(err))
		return c.Redirect("/staff/?success=false")
	}
	return c.Redirect("/staff/?success=true")
}

func (h *Handler) UpdateForm(c *fiber.Ctx) error {
	room := auth.RoomFrom(c)
	if room == nil {
		return tableapi.UnauthorizedError("no resolved session for request")
	}

	accounts, err := h.Client.Users(c.Context(), room.Token, room.RoomID)
	if err != nil {
		return err
	}

	id := c.FormValue("ID")
	if id == "" {
		id = c.Query("id")
	}
	data := fiber.Map{"accounts": accounts}
	for _, a := range accounts {
		if a.UserID == id {
			data["values"] = a
			break
		}
	}
	return c.Render("staff/staffUpdate", fiber.Map{"data": data})
}

func (h *Handler) UpdatePost(c *fiber.Ctx) error {
	room := auth.RoomFrom(c)
	if room == nil {
		return tableapi.UnauthorizedError("no resolved session for request")
	}

	payload := staffPayload(c)
	payload["userId"] = c.FormValue(".ID")
	payload["room"] = room.RoomID

	if err := h.Client.UserUpdate(c.Context(), room.Token, payload); err != nil {
		h.Log.Error("staff update failed", zap.Error(err))
		return c.Redirect("/staff/?success=false")
	}
	return c.Redirect("/staff/?success=true")
}

func (h *Handler) DeletePost(c *fiber.Ctx) error {
	room := auth.RoomFrom(c)
	if room == nil {
		return tableapi.UnauthorizedError("no resolved session for request")
	}

	if err := h.Client.UserDelete(c.Context(), room.Token, c.FormValue("ID")); err != nil {
		h.Log.Error("staff delete failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("Something broke!")
	}
	return c.JSON(true)
}

// staffPayload collects the account fields a staff form may submit. Empty
// fields stay out of the payload so partial updates don't blank columns.
func staffPayload(c *fiber.Ctx) map[string]any {
	payload := map[string]any{}
	for _, key := range []string{"username", "password", "name", "lastname", "userLevel"} {
		if v := c.FormValue(key); v != "" {
			payload[key] = v
		}
	}
	if v := c.FormValue("isCheff"); v != "" {
		payload["isCheff"] = v == "on" || v == "true"
	}
	return payload
}
