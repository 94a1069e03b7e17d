package tableapi

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"cafe-backend/internal/session"
	"cafe-backend/internal/store"
)

// API carries the collaborators every generated controller set shares.
type API struct {
	Store   *store.Store
	Cache   *SelectCache
	Display DisplayColumnMap
	Log     *zap.Logger
}

func NewAPI(s *store.Store, cache *SelectCache, display DisplayColumnMap, log *zap.Logger) *API {
	return &API{Store: s, Cache: cache, Display: display, Log: log}
}

// Route is one mountable handler of a controller set.
type Route struct {
	Suffix  string
	Method  string
	Handler fiber.Handler
}

// ControllerSet is the six-handler surface generated for one descriptor:
// list page, add form, add submit, update form, update submit, delete.
type ControllerSet struct {
	Descriptor Descriptor

	Main       Route
	Add        Route
	AddPost    Route
	Update     Route
	UpdatePost Route
	DeletePost Route
}

// Routes returns the set in mounting order.
func (cs *ControllerSet) Routes() []Route {
	return []Route{cs.Main, cs.Add, cs.AddPost, cs.Update, cs.UpdatePost, cs.DeletePost}
}

// Controller generates the handler set for a descriptor. A descriptor
// missing its id column or carrying a bad access rule is a configuration
// error: the factory refuses rather than producing broken handlers.
func (a *API) Controller(d Descriptor) (*ControllerSet, error) {
	if d.Table == "" {
		return nil, fmt.Errorf("tableapi: descriptor %q has no table name", d.RouteName)
	}
	if d.IDColumn == "" {
		return nil, fmt.Errorf("tableapi: no id column declared for %s", d.Table)
	}
	if d.RouteURL == "" {
		d.RouteURL = d.RouteName
	}

	var access *vm.Program
	if d.AccessRule != "" {
		prog, err := expr.Compile(d.AccessRule, expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("tableapi: access rule for %s: %w", d.Table, err)
		}
		access = prog
	}

	return &ControllerSet{
		Descriptor: d,
		Main:       Route{Suffix: d.RouteURL, Method: fiber.MethodGet, Handler: a.main(d, access)},
		Add:        Route{Suffix: d.RouteURL + "Add", Method: fiber.MethodGet, Handler: a.addForm(d, access)},
		AddPost:    Route{Suffix: d.RouteURL + "AddPost", Method: fiber.MethodPost, Handler: a.addPost(d, access)},
		Update:     Route{Suffix: d.RouteURL + "Update", Method: fiber.MethodGet, Handler: a.updateForm(d, access)},
		UpdatePost: Route{Suffix: d.RouteURL + "UpdatePost", Method: fiber.MethodPost, Handler: a.updatePost(d, access)},
		DeletePost: Route{Suffix: d.RouteURL + "DeletePost", Method: fiber.MethodPost, Handler: a.deletePost(d, access)},
	}, nil
}

// displayFor resolves the display column map for one descriptor: its own
// override when present, otherwise the shared catalog map.
func (a *API) displayFor(d Descriptor) DisplayColumnMap {
	if d.DisplayColumns != nil {
		return d.DisplayColumns
	}
	return a.Display
}

// roomFor asserts the session middleware resolved a room. List and detail
// handlers treat a missing room as a hard failure, not a redirect.
func (a *API) roomFor(c *fiber.Ctx, access *vm.Program) (*session.RoomContext, error) {
	room, _ := c.Locals("room").(*session.RoomContext)
	if room == nil {
		return nil, UnauthorizedError("no resolved session for request")
	}
	if access != nil {
		out, err := expr.Run(access, map[string]any{
			"user": map[string]any{
				"roomId": room.RoomID,
				"userId": room.UserID,
				"isChef": room.IsChef,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("evaluate access rule: %w", err)
		}
		if allowed, ok := out.(bool); !ok || !allowed {
			return nil, ForbiddenError("access rule denied")
		}
	}
	return room, nil
}

func (a *API) main(d Descriptor, access *vm.Program) fiber.Handler {
	view := d.RouteName + "/" + d.RouteName
	return func(c *fiber.Ctx) error {
		room, err := a.roomFor(c, access)
		if err != nil {
			return err
		}

		cursor := c.Query("lastId")
		data := fiber.Map{}

		serve := func(sqlText string, params []any, fallback bool) error {
			rows, err := store.QueryRows(c.Context(), a.Store.DB, sqlText, params...)
			if err != nil {
				return err
			}

			var fkValues PossibleValueSet
			if d.Relational {
				fkValues, err = ResolvePossibleValues(c.Context(), a.Store, d.Table, a.displayFor(d), room.RoomID)
				if err != nil {
					return err
				}
			}

			for _, row := range rows {
				CoerceRowDates(row)
				substituteDisplayValues(row, fkValues)
			}
			if rows == nil {
				rows = []map[string]any{}
			}

			data["columnData"] = rows
			data["idColumn"] = d.IDColumn
			data["tableHeader"] = NicifyString(d.Table)
			if fkValues != nil {
				data["fkValues"] = fkValues
			}

			var names []string
			if !fallback {
				if plan, err := a.Cache.Plan(c.Context(), d.Table); err == nil {
					for _, col := range plan.Columns {
						names = append(names, col.Name)
					}
				}
			}
			// Wildcard rows carry no plan; the row's own keys are the only
			// column list there is.
			if names == nil && len(rows) > 0 {
				for k := range rows[0] {
					names = append(names, k)
				}
				sort.Strings(names)
			}
			if names == nil {
				names = []string{}
			}
			labels := make([]string, len(names))
			for i, n := range names {
				labels[i] = NicifyString(n)
			}
			data["datafield"] = names
			data["datafieldTxt"] = labels
			return nil
		}

		err = a.Cache.Serve(c.Context(), d.Table, SelectOptions{RoomID: room.RoomID, Cursor: cursor}, serve)
		if err != nil {
			return fmt.Errorf("list %s: %w", d.Table, err)
		}

		if cursor != "" {
			return c.JSON(data)
		}
		data["name"] = room.Name + " " + room.Lastname
		return c.Render(view, fiber.Map{"data": data})
	}
}

func (a *API) addForm(d Descriptor, access *vm.Program) fiber.Handler {
	view := d.RouteName + "/" + d.RouteName + "Add"
	return func(c *fiber.Ctx) error {
		room, err := a.roomFor(c, access)
		if err != nil {
			return err
		}

		data := fiber.Map{}
		if d.Relational {
			fkValues, err := ResolvePossibleValues(c.Context(), a.Store, d.Table, a.displayFor(d), room.RoomID)
			if err != nil {
				return fmt.Errorf("add form %s: %w", d.Table, err)
			}
			data["fkValues"] = fkValues
		}
		return c.Render(view, fiber.Map{"data": data})
	}
}

func (a *API) addPost(d Descriptor, access *vm.Program) fiber.Handler {
	target := "/" + d.RouteName
	return func(c *fiber.Ctx) error {
		room, err := a.roomFor(c, access)
		if err != nil {
			return err
		}

		fields := ParseForm(c.Body())
		fields = append(fields, FormField{Key: "Room", Values: []string{room.RoomID}})

		sqlText, params, err := BuildInsert(a.Store.Dialect, d.Table, fields, d.Handlers.add(), a.allowedColumns(c, d.Table))
		if err == nil {
			_, err = store.Exec(c.Context(), a.Store.DB, sqlText, params...)
		}
		if err != nil {
			// Mutation errors never surface raw; the browser only sees the flag.
			a.Log.Error("insert failed", zap.String("table", d.Table), zap.Error(err))
			return c.Redirect(target + "/?success=false")
		}
		return c.Redirect(target + "/?success=true")
	}
}

func (a *API) updateForm(d Descriptor, access *vm.Program) fiber.Handler {
	view := d.RouteName + "/" + d.RouteName + "Update"
	return func(c *fiber.Ctx) error {
		room, err := a.roomFor(c, access)
		if err != nil {
			return err
		}

		id := c.FormValue("ID")
		if id == "" {
			id = c.Query("id")
		}

		data := fiber.Map{}
		if d.Relational {
			fkValues, err := ResolvePossibleValues(c.Context(), a.Store, d.Table, a.displayFor(d), room.RoomID)
			if err != nil {
				return fmt.Errorf("update form %s: %w", d.Table, err)
			}
			data["fkValues"] = fkValues
		}

		serve := func(sqlText string, params []any, _ bool) error {
			rows, err := store.QueryRows(c.Context(), a.Store.DB, sqlText, params...)
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				data["values"] = rows[0]
			}
			return nil
		}

		err = a.Cache.Serve(c.Context(), d.Table, SelectOptions{RoomID: room.RoomID, ID: id}, serve)
		if err != nil {
			return fmt.Errorf("update form %s: %w", d.Table, err)
		}
		return c.Render(view, fiber.Map{"data": data})
	}
}

func (a *API) updatePost(d Descriptor, access *vm.Program) fiber.Handler {
	target := "/" + d.RouteName
	return func(c *fiber.Ctx) error {
		room, err := a.roomFor(c, access)
		if err != nil {
			return err
		}

		fields := ParseForm(c.Body())
		fields = append(fields, FormField{Key: "Room", Values: []string{room.RoomID}})

		sqlText, params, err := BuildUpdate(a.Store.Dialect, d.Table, d.IDColumn, fields, d.Handlers.update(), a.allowedColumns(c, d.Table), room.RoomID)
		if err == nil {
			_, err = store.Exec(c.Context(), a.Store.DB, sqlText, params...)
		}
		if err != nil {
			a.Log.Error("update failed", zap.String("table", d.Table), zap.Error(err))
			return c.Redirect(target + "/?success=false")
		}
		return c.Redirect(target + "/?success=true")
	}
}

func (a *API) deletePost(d Descriptor, access *vm.Program) fiber.Handler {
	return func(c *fiber.Ctx) error {
		room, err := a.roomFor(c, access)
		if err != nil {
			return err
		}

		sqlText, params, err := BuildDelete(a.Store.Dialect, d.Table, d.IDColumn, c.FormValue("ID"), room.RoomID)
		if err == nil {
			_, err = store.Exec(c.Context(), a.Store.DB, sqlText, params...)
		}
		if err != nil {
			a.Log.Error("delete failed", zap.String("table", d.Table), zap.Error(err))
			// Delete is invoked from scripts, not form submits; answer with
			// a status instead of a redirect, and keep the message vague.
			return c.Status(fiber.StatusInternalServerError).SendString("Something broke!")
		}
		return c.JSON(true)
	}
}

// allowedColumns derives the identifier allow-list from cached table
// metadata. nil when metadata is unavailable, which degrades the column
// check to the stripping shim.
func (a *API) allowedColumns(c *fiber.Ctx, table string) map[string]bool {
	plan, err := a.Cache.Plan(c.Context(), table)
	if err != nil {
		a.Log.Warn("no column metadata for identifier allow-list",
			zap.String("table", table), zap.Error(err))
		return nil
	}
	allowed := make(map[string]bool, len(plan.Columns))
	for _, col := range plan.Columns {
		allowed[col.Name] = true
	}
	return allowed
}

// substituteDisplayValues swaps raw foreign key values for their display
// labels in a fetched row. Linear per cell; fine at list-page sizes.
func substituteDisplayValues(row map[string]any, fkValues PossibleValueSet) {
	if fkValues == nil {
		return
	}
	for key, val := range row {
		options, ok := fkValues[key]
		if !ok {
			continue
		}
		for _, opt := range options {
			if fmt.Sprintf("%v", opt.Value) == fmt.Sprintf("%v", val) {
				row[key] = opt.DisplayValue
				break
			}
		}
	}
}
