package tableapi

import (
	"context"
	"reflect"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"cafe-backend/internal/store"
)

var testDisplay = DisplayColumnMap{
	"Category":    "CategoryName",
	"OrderStatus": "OrderStatusName",
}

func TestBuildOptionsBatch_RoomScopingAndGlobalExemption(t *testing.T) {
	refs := []store.ForeignKeyRef{
		{Column: "Category", ReferencedTable: "Category", ReferencedColumn: "CategoryID"},
		{Column: "Status", ReferencedTable: "OrderStatus", ReferencedColumn: "OrderStatusID"},
	}

	sqlText, params := buildOptionsBatch(&store.MSSQLDialect{}, refs, testDisplay, "r1")

	want := "SELECT 'Category' AS [fkColumn], [CategoryID] AS [value], [CategoryName] AS [displayValue] FROM [Category] WHERE [Room] = @p1;\n" +
		"SELECT 'Status' AS [fkColumn], [OrderStatusID] AS [value], [OrderStatusName] AS [displayValue] FROM [OrderStatus]"
	if sqlText != want {
		t.Fatalf("batch:\n got %s\nwant %s", sqlText, want)
	}
	if !reflect.DeepEqual(params, []any{"r1"}) {
		t.Fatalf("params: %v", params)
	}
}

func TestBuildOptionsBatch_ReusesRoomPlaceholder(t *testing.T) {
	refs := []store.ForeignKeyRef{
		{Column: "Category", ReferencedTable: "Category", ReferencedColumn: "CategoryID"},
		{Column: "Supplier", ReferencedTable: "Supplier", ReferencedColumn: "SupplierID"},
	}

	sqlText, params := buildOptionsBatch(&store.MSSQLDialect{}, refs, testDisplay, "r1")

	// Both statements are room scoped; the id travels once and the named
	// placeholder repeats.
	if got := len(params); got != 1 {
		t.Fatalf("expected a single room parameter, got %v", params)
	}
	if n := len(regexp.MustCompile(`@p1`).FindAllString(sqlText, -1)); n != 2 {
		t.Fatalf("expected @p1 in both statements, found %d in:\n%s", n, sqlText)
	}
}

func TestResolvePossibleValues_BatchKeyedByCorrelationColumn(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("sys.foreign_keys").
		WithArgs("OrderInfo").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "referenced_table", "referenced_column"}).
			AddRow("Category", "Category", "CategoryID").
			AddRow("Status", "OrderStatus", "OrderStatusID"))

	categoryRows := sqlmock.NewRows([]string{"fkColumn", "value", "displayValue"}).
		AddRow("Category", 1, "Drinks").
		AddRow("Category", 2, "Food")
	statusRows := sqlmock.NewRows([]string{"fkColumn", "value", "displayValue"}).
		AddRow("Status", 10, "Open")

	mock.ExpectQuery(regexp.QuoteMeta("AS [fkColumn]")).
		WithArgs("r1").
		WillReturnRows(categoryRows, statusRows)

	got, err := ResolvePossibleValues(context.Background(), s, "OrderInfo", testDisplay, "r1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(got["Category"]) != 2 || len(got["Status"]) != 1 {
		t.Fatalf("unexpected grouping: %+v", got)
	}
	if got["Category"][0].DisplayValue != "Drinks" {
		t.Fatalf("expected display label, got %v", got["Category"][0].DisplayValue)
	}
	if got["Status"][0].DisplayValue != "Open" {
		t.Fatalf("expected display label, got %v", got["Status"][0].DisplayValue)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolvePossibleValues_SyntheticLabelWithoutDisplayColumn(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("sys.foreign_keys").
		WithArgs("Assignment").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "referenced_table", "referenced_column"}).
			AddRow("Shift", "Shift", "ShiftID"))

	// Shift has no display column configured, so the statement selects only
	// the correlation tag and the value.
	mock.ExpectQuery(regexp.QuoteMeta("AS [fkColumn]")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"fkColumn", "value"}).AddRow("Shift", 7))

	got, err := ResolvePossibleValues(context.Background(), s, "Assignment", testDisplay, "r1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got["Shift"][0].DisplayValue != "value=7" {
		t.Fatalf("expected synthetic label, got %v", got["Shift"][0].DisplayValue)
	}
}

func TestResolvePossibleValues_PostgresPerStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := &store.Store{DB: db, Dialect: &store.PostgresDialect{}}

	mock.ExpectQuery("table_constraints").
		WithArgs("OrderInfo").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "referenced_table", "referenced_column"}).
			AddRow("Category", "Category", "CategoryID").
			AddRow("Status", "OrderStatus", "OrderStatusID"))

	// No batching: one round trip per reference, each with its own
	// parameter list. The global lookup statement carries none.
	mock.ExpectQuery(regexp.QuoteMeta(`'Category' AS "fkColumn"`)).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"fkColumn", "value", "displayValue"}).
			AddRow("Category", 1, "Drinks"))
	mock.ExpectQuery(regexp.QuoteMeta(`'Status' AS "fkColumn"`)).
		WillReturnRows(sqlmock.NewRows([]string{"fkColumn", "value", "displayValue"}).
			AddRow("Status", 10, "Open"))

	got, err := ResolvePossibleValues(context.Background(), s, "OrderInfo", testDisplay, "r1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got["Category"]) != 1 || len(got["Status"]) != 1 {
		t.Fatalf("unexpected grouping: %+v", got)
	}
	if got["Category"][0].DisplayValue != "Drinks" || got["Status"][0].DisplayValue != "Open" {
		t.Fatalf("unexpected labels: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolvePossibleValues_NoForeignKeys(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("sys.foreign_keys").
		WithArgs("Category").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "referenced_table", "referenced_column"}))

	got, err := ResolvePossibleValues(context.Background(), s, "Category", testDisplay, "r1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %+v", got)
	}
}
