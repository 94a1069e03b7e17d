package tableapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"cafe-backend/internal/store"
)

// Option is one selectable foreign key value with its display label.
type Option struct {
	Value        any `json:"value"`
	DisplayValue any `json:"displayValue"`
}

// PossibleValueSet maps an owning column name to its selectable options.
// Built per request and per room; never cached across rooms.
type PossibleValueSet map[string][]Option

// correlationColumn tags every option row with the owning foreign key
// column, so result sets are matched by key rather than by position. A
// positional match silently desyncs if the store ever omits a result set.
const correlationColumn = "fkColumn"

// ResolvePossibleValues discovers the table's foreign keys and fetches the
// candidate (value, displayValue) pairs for each of them, room-scoped unless
// the referenced table is a global lookup table. All reference queries run
// in one multi-statement round trip when the dialect supports it.
func ResolvePossibleValues(ctx context.Context, s *store.Store, table string, displayMap DisplayColumnMap, roomID string) (PossibleValueSet, error) {
	refs, err := s.Dialect.ForeignKeys(ctx, s.DB, table)
	if err != nil {
		return nil, fmt.Errorf("foreign keys for %s: %w", table, err)
	}
	if len(refs) == 0 {
		return PossibleValueSet{}, nil
	}

	result := make(PossibleValueSet, len(refs))
	if s.Dialect.SupportsBatch() {
		sqlText, params := buildOptionsBatch(s.Dialect, refs, displayMap, roomID)
		sets, err := store.QueryMultiSets(ctx, s.DB, sqlText, params...)
		if err != nil {
			return nil, fmt.Errorf("possible values for %s: %w", table, err)
		}
		for _, set := range sets {
			collectOptions(result, set)
		}
		return result, nil
	}

	for _, ref := range refs {
		sqlText, params := buildOptionsSelect(s.Dialect, s.Dialect.NewParamBuilder(), ref, displayMap, roomID)
		rows, err := store.QueryRows(ctx, s.DB, sqlText, params...)
		if err != nil {
			return nil, fmt.Errorf("possible values for %s.%s: %w", table, ref.Column, err)
		}
		collectOptions(result, rows)
	}
	return result, nil
}

// buildOptionsBatch renders one statement per reference, joined into a
// single batch. The room id is added once; its placeholder is reused by
// every room-scoped statement.
func buildOptionsBatch(d store.Dialect, refs []store.ForeignKeyRef, displayMap DisplayColumnMap, roomID string) (string, []any) {
	pb := d.NewParamBuilder()
	stmts := make([]string, len(refs))
	for i, ref := range refs {
		stmts[i], _ = buildOptionsSelect(d, pb, ref, displayMap, roomID)
	}
	return strings.Join(stmts, ";\n"), pb.Params()
}

func buildOptionsSelect(d store.Dialect, pb store.ParamBuilder, ref store.ForeignKeyRef, displayMap DisplayColumnMap, roomID string) (string, []any) {
	selects := []string{
		fmt.Sprintf("%s AS %s", SQLString(ref.Column), d.QuoteIdent(correlationColumn)),
		fmt.Sprintf("%s AS %s", d.QuoteIdent(ref.ReferencedColumn), d.QuoteIdent("value")),
	}
	if display, ok := displayMap[ref.ReferencedTable]; ok {
		selects = append(selects, fmt.Sprintf("%s AS %s", d.QuoteIdent(display), d.QuoteIdent("displayValue")))
	}

	sqlText := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), d.QuoteIdent(ref.ReferencedTable))
	if !IsGlobalLookup(ref.ReferencedTable) {
		sqlText += fmt.Sprintf(" WHERE %s = %s", d.QuoteIdent("Room"), roomPlaceholder(pb, roomID))
	}
	return sqlText, pb.Params()
}

// roomPlaceholder adds the room id on first use and reuses its placeholder
// afterwards; placeholders are names and may appear in several statements of
// one batch. The room id is always the builder's first parameter.
func roomPlaceholder(pb store.ParamBuilder, roomID string) string {
	if pb.Count() == 0 {
		return pb.Add(roomID)
	}
	return pb.Placeholder(1)
}

// collectOptions groups option rows by their correlation column and applies
// the synthetic display fallback so every option has a non-empty label.
func collectOptions(result PossibleValueSet, rows []map[string]any) {
	for _, row := range rows {
		column := cast.ToString(row[correlationColumn])
		if column == "" {
			continue
		}
		opt := Option{Value: row["value"]}
		if dv, ok := row["displayValue"]; ok && dv != nil {
			opt.DisplayValue = dv
		} else {
			opt.DisplayValue = fmt.Sprintf("value=%v", opt.Value)
		}
		result[column] = append(result[column], opt)
	}
}
