package tableapi

import (
	"github.com/gofiber/fiber/v2"
)

// DisplayColumns maps each referenced table to the column shown in place
// of its key when it appears as a foreign key target.
var DisplayColumns = DisplayColumnMap{
	"Category":        "CategoryName",
	"Channel":         "ChannelName",
	"Company":         "CompanyName",
	"OrderStatus":     "OrderStatusName",
	"Payment":         "PaymentType",
	"PermissionsType": "PermissionName",
	"Position":        "PositionName",
	"Product":         "ProductName",
	"QuantityType":    "QuantityTypeName",
	"Supplier":        "SupplierName",
	"TableInfo":       "TableName",
	"TableStatus":     "TableStatusName",
	"UserLevel":       "UserLevelName",
}

// Descriptors is the full back-office catalog. Order matters only for
// route registration readability.
var Descriptors = []Descriptor{
	{RouteName: "assignment", Table: "Assignment", IDColumn: "AssignmentID", Relational: true},
	{RouteName: "categories", Table: "Category", IDColumn: "CategoryID"},
	{RouteName: "channels", Table: "Channel", IDColumn: "ChannelID"},
	{RouteName: "companies", Table: "Company", IDColumn: "CompanyID"},
	{RouteName: "financial", Table: "Financial", IDColumn: "FinancialID", Relational: true},
	{RouteName: "messages", Table: "Message", IDColumn: "MessageID", Relational: true},
	{RouteName: "notifications", Table: "Notification", IDColumn: "NotificationID", Relational: true},
	{
		RouteName:  "orders",
		Table:      "OrderInfo",
		IDColumn:   "OrderID",
		Relational: true,
		Handlers:   ColumnHandlers{Default: CheckboxColumnHandler("OrderOnline")},
	},
	{RouteName: "payment", Table: "Payment", IDColumn: "PaymentID"},
	{RouteName: "positions", Table: "Position", IDColumn: "PositionID"},
	{
		RouteName:  "products",
		Table:      "Product",
		IDColumn:   "ProductID",
		Relational: true,
		Handlers:   ColumnHandlers{Default: CheckboxColumnHandler("ProductIsActive")},
	},
	{RouteName: "permissions", Table: "Permissions", IDColumn: "PermissionsID", Relational: true},
	{RouteName: "suppliers", Table: "Supplier", IDColumn: "SupplierID"},
	{RouteName: "tableinfo", Table: "TableInfo", IDColumn: "TableID", Relational: true},
	{RouteName: "userlevel", Table: "UserLevel", IDColumn: "UserLevelID"},
	{RouteName: "reservations", Table: "Reservation", IDColumn: "ReservationID", Relational: true},
}

// Mount generates and registers a controller set per descriptor behind
// the given middleware.
func Mount(router fiber.Router, api *API, middleware ...fiber.Handler) error {
	for _, d := range Descriptors {
		set, err := api.Controller(d)
		if err != nil {
			return err
		}
		for _, r := range set.Routes() {
			handlers := append(append([]fiber.Handler{}, middleware...), r.Handler)
			router.Add(r.Method, "/"+r.Suffix, handlers...)
		}
	}
	return nil
}
