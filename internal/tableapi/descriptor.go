package tableapi

// ColumnHandler transforms one submitted column value before it becomes a
// statement parameter. index is the column's position in the submitted form.
type ColumnHandler func(column string, value any, index int) any

// ColumnHandlers selects the handler per mutation kind. Add and Update fall
// back to Default when unset.
type ColumnHandlers struct {
	Default ColumnHandler
	Add     ColumnHandler
	Update  ColumnHandler
}

func (h ColumnHandlers) add() ColumnHandler {
	if h.Add != nil {
		return h.Add
	}
	return h.Default
}

func (h ColumnHandlers) update() ColumnHandler {
	if h.Update != nil {
		return h.Update
	}
	return h.Default
}

// DisplayColumnMap maps a referenced table name to the column shown to users
// in place of the raw foreign key value. Read-only after initialization and
// shared across descriptors.
type DisplayColumnMap map[string]string

// Descriptor declares one table's routing and CRUD configuration. Immutable
// after construction; one descriptor feeds exactly one controller set.
type Descriptor struct {
	RouteName string
	RouteURL  string // defaults to RouteName
	Table     string
	IDColumn  string

	// Relational tables get foreign key option sets resolved for their
	// forms and list views.
	Relational     bool
	DisplayColumns DisplayColumnMap

	// AccessRule is an optional boolean expression evaluated against the
	// caller's session before any generated handler runs, e.g. "user.isChef".
	AccessRule string

	Handlers ColumnHandlers
}

// Global lookup tables are status/type enumerations shared across all rooms.
// They carry no Room column, so room scoping must skip them — both in the
// formatted select and in foreign key option queries.
var globalLookupTables = map[string]bool{
	"TableStatus":     true,
	"QuantityType":    true,
	"PermissionsType": true,
	"OrderStatus":     true,
	"MessageStatus":   true,
}

// IsGlobalLookup reports whether the table is exempt from room scoping.
func IsGlobalLookup(table string) bool {
	return globalLookupTables[table]
}
