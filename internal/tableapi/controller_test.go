package tableapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"cafe-backend/internal/session"
)

func newTestApp(t *testing.T, room *session.RoomContext) (*fiber.App, *API, sqlmock.Sqlmock) {
	t.Helper()
	s, mock := newMockStore(t)
	api := NewAPI(s, NewSelectCache(s, zap.NewNop()), DisplayColumns, zap.NewNop())

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
			}
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		},
	})
	app.Use(func(c *fiber.Ctx) error {
		if room != nil {
			c.Locals("room", room)
		}
		return c.Next()
	})
	return app, api, mock
}

func mountSet(t *testing.T, app *fiber.App, api *API, d Descriptor) {
	t.Helper()
	set, err := api.Controller(d)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	for _, r := range set.Routes() {
		app.Add(r.Method, "/"+r.Suffix, r.Handler)
	}
}

func TestAddPost_InjectsRoomAndRedirects(t *testing.T) {
	room := &session.RoomContext{SessionID: "s1", RoomID: "room-1", UserID: "u1"}
	app, api, mock := newTestApp(t, room)
	mountSet(t, app, api, Descriptor{
		RouteName: "products",
		Table:     "Product",
		IDColumn:  "ProductID",
		Handlers:  ColumnHandlers{Default: CheckboxColumnHandler("ProductIsActive")},
	})

	// Identifier allow-list comes from cached table metadata.
	mock.ExpectQuery("INFORMATION_SCHEMA.COLUMNS").
		WithArgs("Product").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE"}).
			AddRow("ProductID", "int").
			AddRow("ProductName", "varchar").
			AddRow("ProductIsActive", "bit").
			AddRow("Room", "varchar"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO [Product] ([ProductName], [ProductIsActive], [Room]) VALUES (@p1, @p2, @p3)")).
		WithArgs("Latte", 1, "room-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	req, _ := http.NewRequest("POST", "/productsAddPost",
		strings.NewReader("ProductName=Latte&ProductIsActive=on&ProductIsActive=off"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/products/?success=true" {
		t.Fatalf("expected success redirect, got %s", loc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddPost_FailureRedirectsWithFlag(t *testing.T) {
	room := &session.RoomContext{SessionID: "s1", RoomID: "room-1", UserID: "u1"}
	app, api, mock := newTestApp(t, room)
	mountSet(t, app, api, Descriptor{RouteName: "products", Table: "Product", IDColumn: "ProductID"})

	mock.ExpectQuery("INFORMATION_SCHEMA.COLUMNS").
		WithArgs("Product").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE"}).
			AddRow("ProductID", "int").
			AddRow("ProductName", "varchar").
			AddRow("Room", "varchar"))
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("constraint violation"))

	req, _ := http.NewRequest("POST", "/productsAddPost", strings.NewReader("ProductName=Latte"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	// The browser only ever learns the flag, never the database error.
	if loc := resp.Header.Get("Location"); loc != "/products/?success=false" {
		t.Fatalf("expected failure redirect, got %s", loc)
	}
}

func TestMain_CursorRequestServesJSON(t *testing.T) {
	room := &session.RoomContext{SessionID: "s1", RoomID: "room-1", UserID: "u1", Name: "Ana", Lastname: "Petrova"}
	app, api, mock := newTestApp(t, room)
	mountSet(t, app, api, Descriptor{RouteName: "orders", Table: "OrderInfo", IDColumn: "OrderID"})

	mock.ExpectQuery("INFORMATION_SCHEMA.COLUMNS").
		WithArgs("OrderInfo").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE"}).
			AddRow("OrderID", "int").
			AddRow("OrderTotal", "decimal").
			AddRow("Room", "varchar"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE [OrderID] < @p1 AND [Room] = @p2")).
		WithArgs("42", "room-1").
		WillReturnRows(sqlmock.NewRows([]string{"OrderID", "OrderTotal", "Room"}).
			AddRow(41, "9.50", "room-1").
			AddRow(40, "4.00", "room-1"))

	req, _ := http.NewRequest("GET", "/orders?lastId=42", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	rows, ok := data["columnData"].([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("expected 2 rows in columnData, got %v", data["columnData"])
	}
	if data["idColumn"] != "OrderID" {
		t.Fatalf("expected idColumn OrderID, got %v", data["idColumn"])
	}
	if _, ok := data["name"]; ok {
		t.Fatal("cursor responses must not carry the page header name")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMain_FallbackDerivesFieldsFromRows(t *testing.T) {
	room := &session.RoomContext{SessionID: "s1", RoomID: "room-1", UserID: "u1"}
	app, api, mock := newTestApp(t, room)
	mountSet(t, app, api, Descriptor{RouteName: "orders", Table: "OrderInfo", IDColumn: "OrderID"})

	// Metadata is gone for both the cached attempt and the regeneration, so
	// the request is served by the unscoped wildcard.
	metaErr := errors.New("table metadata unavailable")
	mock.ExpectQuery("INFORMATION_SCHEMA.COLUMNS").WithArgs("OrderInfo").WillReturnError(metaErr)
	mock.ExpectQuery("INFORMATION_SCHEMA.COLUMNS").WithArgs("OrderInfo").WillReturnError(metaErr)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM OrderInfo")).
		WillReturnRows(sqlmock.NewRows([]string{"OrderID", "Room"}).AddRow(41, "room-1"))

	req, _ := http.NewRequest("GET", "/orders?lastId=42", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	fields, ok := data["datafield"].([]any)
	if !ok || len(fields) != 2 {
		t.Fatalf("expected headers derived from row keys, got %v", data["datafield"])
	}
	if fields[0] != "OrderID" || fields[1] != "Room" {
		t.Fatalf("expected sorted row keys, got %v", fields)
	}
	if data["tableHeader"] != "Order Info" {
		t.Fatalf("expected table header, got %v", data["tableHeader"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletePost_AnswersJSONTrue(t *testing.T) {
	room := &session.RoomContext{SessionID: "s1", RoomID: "room-1", UserID: "u1"}
	app, api, mock := newTestApp(t, room)
	mountSet(t, app, api, Descriptor{RouteName: "products", Table: "Product", IDColumn: "ProductID"})

	mock.ExpectExec(regexp.QuoteMeta("DELETE TOP(1) FROM [Product] WHERE [ProductID] = @p1 AND [Room] = @p2")).
		WithArgs(5, "room-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req, _ := http.NewRequest("POST", "/productsDeletePost", strings.NewReader("ID=5"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "true" {
		t.Fatalf("expected bare true, got %s", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletePost_FailureStaysVague(t *testing.T) {
	room := &session.RoomContext{SessionID: "s1", RoomID: "room-1", UserID: "u1"}
	app, api, mock := newTestApp(t, room)
	mountSet(t, app, api, Descriptor{RouteName: "products", Table: "Product", IDColumn: "ProductID"})

	mock.ExpectExec("DELETE TOP").WillReturnError(errors.New("deadlock victim"))

	req, _ := http.NewRequest("POST", "/productsDeletePost", strings.NewReader("ID=5"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if got := string(body); got != "Something broke!" {
		t.Fatalf("expected vague message, got %q", got)
	}
}

func TestDeletePost_MalformedIDDeletesNothing(t *testing.T) {
	room := &session.RoomContext{SessionID: "s1", RoomID: "room-1", UserID: "u1"}
	app, api, mock := newTestApp(t, room)
	mountSet(t, app, api, Descriptor{RouteName: "products", Table: "Product", IDColumn: "ProductID"})

	for _, body := range []string{"ID=", "ID=abc", ""} {
		req, _ := http.NewRequest("POST", "/productsDeletePost", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusInternalServerError {
			t.Fatalf("body %q: expected 500, got %d", body, resp.StatusCode)
		}
	}
	// No statement may have reached the store.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected store activity: %v", err)
	}
}

func TestHandlers_RejectWithoutSession(t *testing.T) {
	app, api, _ := newTestApp(t, nil)
	mountSet(t, app, api, Descriptor{RouteName: "products", Table: "Product", IDColumn: "ProductID"})

	req, _ := http.NewRequest("GET", "/products", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestController_AccessRuleDeniesNonChef(t *testing.T) {
	room := &session.RoomContext{SessionID: "s1", RoomID: "room-1", UserID: "u1", IsChef: false}
	app, api, _ := newTestApp(t, room)
	mountSet(t, app, api, Descriptor{
		RouteName:  "financial",
		Table:      "Financial",
		IDColumn:   "FinancialID",
		AccessRule: "user.isChef",
	})

	req, _ := http.NewRequest("GET", "/financial", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestController_RequiresIDColumn(t *testing.T) {
	_, api, _ := newTestApp(t, nil)
	if _, err := api.Controller(Descriptor{RouteName: "broken", Table: "Broken"}); err == nil {
		t.Fatal("expected error for descriptor without id column")
	}
}

func TestCatalogDescriptorsAllBuild(t *testing.T) {
	_, api, _ := newTestApp(t, nil)
	for _, d := range Descriptors {
		if _, err := api.Controller(d); err != nil {
			t.Fatalf("descriptor %s: %v", d.RouteName, err)
		}
	}
}
