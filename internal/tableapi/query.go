package tableapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"cafe-backend/internal/store"
)

// listRowCap bounds every list-shaped select; older rows load through the
// lastId cursor instead.
const listRowCap = 20

// idSentinel is the form field that carries the target row id on update
// forms. It never names a real column.
const idSentinel = ".ID"

// FormField is one submitted form entry. Duplicated field names collapse
// into a single field whose Values holds each occurrence in order.
type FormField struct {
	Key    string
	Values []string
}

// ParseForm decodes a urlencoded body preserving submission order, which
// map-based parsers discard. Statement column order follows form order.
func ParseForm(body []byte) []FormField {
	var fields []FormField
	index := make(map[string]int)

	for _, pair := range strings.Split(string(body), "&") {
		if pair == "" {
			continue
		}
		rawKey, rawVal, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			continue
		}
		if i, ok := index[key]; ok {
			fields[i].Values = append(fields[i].Values, val)
			continue
		}
		index[key] = len(fields)
		fields = append(fields, FormField{Key: key, Values: []string{val}})
	}
	return fields
}

// SelectPlan is a formatted select generated from live column metadata:
// every column listed explicitly, temporal columns wrapped in a bare-date
// cast. Text holds the rendered SELECT list and FROM clause; per-request
// predicates are appended by BuildSelect.
type SelectPlan struct {
	Table   string
	Columns []store.ColumnMeta
	Text    string
}

// FirstColumn returns the table's first column, which doubles as the keyset
// cursor and the single-row lookup key.
func (p *SelectPlan) FirstColumn() string {
	if len(p.Columns) == 0 {
		return ""
	}
	return p.Columns[0].Name
}

// NewSelectPlan renders the formatted select for the given column set.
func NewSelectPlan(d store.Dialect, table string, columns []store.ColumnMeta) (*SelectPlan, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("tableapi: no columns for table %s", table)
	}

	parts := make([]string, len(columns))
	for i, c := range columns {
		if c.IsDate() {
			parts[i] = d.DateCastExpr(c.Name)
		} else {
			parts[i] = d.QuoteIdent(c.Name)
		}
	}

	text := fmt.Sprintf("SELECT %s%s FROM %s",
		d.TopClause(listRowCap), strings.Join(parts, ", "), d.QuoteIdent(table))

	return &SelectPlan{Table: table, Columns: columns, Text: text}, nil
}

// SelectOptions shape one request's select: plain list (newest first, row
// capped), keyset page (Cursor), or single-row lookup (ID).
type SelectOptions struct {
	RoomID string
	ID     string
	Cursor string
}

// BuildSelect appends the request predicates to a plan. Every statement
// against a room-scoped table carries the room equality filter; global
// lookup tables carry none.
func BuildSelect(d store.Dialect, p *SelectPlan, opts SelectOptions) (string, []any) {
	pb := d.NewParamBuilder()
	first := d.QuoteIdent(p.FirstColumn())

	var where []string
	if opts.Cursor != "" {
		where = append(where, fmt.Sprintf("%s < %s", first, pb.Add(opts.Cursor)))
	}
	if !IsGlobalLookup(p.Table) {
		where = append(where, fmt.Sprintf("%s = %s", d.QuoteIdent("Room"), pb.Add(opts.RoomID)))
	}
	if opts.ID != "" {
		where = append(where, fmt.Sprintf("%s = %s", first, pb.Add(opts.ID)))
	}

	sqlText := p.Text
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	// Newest first on plain lists; cursor pages skip the sort, id lookups
	// don't need one.
	if opts.ID == "" && opts.Cursor == "" {
		sqlText += fmt.Sprintf(" ORDER BY %s DESC", first)
	}
	sqlText += d.LimitSuffix(listRowCap)

	return sqlText, pb.Params()
}

// mutationValue runs one submitted value through the shared pipeline: date
// normalization, then the descriptor's column handler, then stringification
// of any leftover multi-value slice.
func mutationValue(f FormField, index int, handler ColumnHandler) any {
	var value any
	if len(f.Values) > 1 {
		vs := make([]string, len(f.Values))
		for i, v := range f.Values {
			vs[i] = HTMLDateToSQLDate(v)
		}
		value = vs
	} else {
		value = HTMLDateToSQLDate(f.Values[0])
	}

	if handler != nil {
		value = handler(f.Key, value, index)
	}
	if vs, ok := value.([]string); ok {
		value = strings.Join(vs, ",")
	}
	return value
}

// safeColumn passes an identifier through the legacy stripping shim and the
// plan-derived allow-list. A nil allow-list (wildcard fallback in play)
// degrades to shim-only.
func safeColumn(key string, allowed map[string]bool) (string, error) {
	name := SQLLiteral(key)
	if allowed != nil && !allowed[name] {
		return "", fmt.Errorf("tableapi: column %q not in table metadata", name)
	}
	return name, nil
}

// BuildInsert synthesizes an INSERT from the submitted fields, in form
// order. The caller injects the Room field before building.
func BuildInsert(d store.Dialect, table string, fields []FormField, handler ColumnHandler, allowed map[string]bool) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("tableapi: empty payload for insert into %s", table)
	}

	pb := d.NewParamBuilder()
	cols := make([]string, 0, len(fields))
	vals := make([]string, 0, len(fields))
	for i, f := range fields {
		name, err := safeColumn(f.Key, allowed)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, d.QuoteIdent(name))
		vals = append(vals, pb.Add(mutationValue(f, i, handler)))
	}

	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table), strings.Join(cols, ", "), strings.Join(vals, ", "))
	return sqlText, pb.Params(), nil
}

// BuildUpdate synthesizes an UPDATE from the submitted fields, skipping the
// id column and the ".ID" sentinel, targeted by the sentinel's value. The
// room id joins the WHERE clause so an id collision can never reach another
// room's row.
func BuildUpdate(d store.Dialect, table, idColumn string, fields []FormField, handler ColumnHandler, allowed map[string]bool, roomID string) (string, []any, error) {
	id := ""
	for _, f := range fields {
		if f.Key == idSentinel && len(f.Values) > 0 {
			id = f.Values[0]
		}
	}
	if id == "" {
		return "", nil, fmt.Errorf("tableapi: update payload for %s has no %s field", table, idSentinel)
	}

	pb := d.NewParamBuilder()
	var sets []string
	for i, f := range fields {
		if f.Key == idColumn || f.Key == idSentinel {
			continue
		}
		name, err := safeColumn(f.Key, allowed)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", d.QuoteIdent(name), pb.Add(mutationValue(f, i, handler))))
	}
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("tableapi: update payload for %s has no columns", table)
	}

	sqlText := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.QuoteIdent(table), strings.Join(sets, ", "), d.QuoteIdent(idColumn), pb.Add(id))
	if !IsGlobalLookup(table) {
		sqlText += fmt.Sprintf(" AND %s = %s", d.QuoteIdent("Room"), pb.Add(roomID))
	}
	return sqlText, pb.Params(), nil
}

// BuildDelete synthesizes a single-row delete constrained by both id and
// room. The double guard keeps an id collision from ever touching another
// room's row. A non-numeric id is an error: coercing it would target row 0.
func BuildDelete(d store.Dialect, table, idColumn, id, roomID string) (string, []any, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return "", nil, fmt.Errorf("tableapi: delete id %q for %s is not numeric", id, table)
	}

	pb := d.NewParamBuilder()
	where := fmt.Sprintf("%s = %s AND %s = %s",
		d.QuoteIdent(idColumn), pb.Add(n),
		d.QuoteIdent("Room"), pb.Add(roomID))
	return d.DeleteOneSQL(d.QuoteIdent(table), where), pb.Params(), nil
}

// FetchSelectPlan fetches live column metadata and renders a fresh formatted
// select for the table.
func FetchSelectPlan(ctx context.Context, s *store.Store, table string) (*SelectPlan, error) {
	columns, err := s.Dialect.TableColumns(ctx, s.DB, table)
	if err != nil {
		return nil, fmt.Errorf("fetch columns for %s: %w", table, err)
	}
	return NewSelectPlan(s.Dialect, table, columns)
}
