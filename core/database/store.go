package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"

	"github.com/jmoiron/sqlx"
)

// Row is a column -> value map for writes. Slice values other than []byte
// must be wrapped (pq.Array, entity.RawJSON) since bare slices are expanded
// as IN lists.
type Row map[string]any

type Operator string

const (
	OpEq    Operator = "="
	OpNe    Operator = "<>"
	OpLt    Operator = "<"
	OpLte   Operator = "<="
	OpGt    Operator = ">"
	OpGte   Operator = ">="
	OpIn    Operator = "IN"
	OpNotIn Operator = "NOT IN"
)

type Condition struct {
	Column string
	Op     Operator
	Value  any
}

// Filter is a conjunction of conditions.
type Filter []Condition

func Eq(column string, value any) Condition     { return Condition{column, OpEq, value} }
func Ne(column string, value any) Condition     { return Condition{column, OpNe, value} }
func Lt(column string, value any) Condition     { return Condition{column, OpLt, value} }
func Lte(column string, value any) Condition    { return Condition{column, OpLte, value} }
func Gt(column string, value any) Condition     { return Condition{column, OpGt, value} }
func Gte(column string, value any) Condition    { return Condition{column, OpGte, value} }
func In(column string, values any) Condition    { return Condition{column, OpIn, values} }
func NotIn(column string, values any) Condition { return Condition{column, OpNotIn, values} }

type Order struct {
	Column string
	Desc   bool
}

type selectOptions struct {
	columns []string
	orderBy []Order
	limit   int
	offset  int
}

type SelectOption func(*selectOptions)

func OrderBy(column string, desc bool) SelectOption {
	return func(o *selectOptions) { o.orderBy = append(o.orderBy, Order{column, desc}) }
}

// Columns narrows a select to the named columns instead of *.
func Columns(names ...string) SelectOption {
	return func(o *selectOptions) { o.columns = append(o.columns, names...) }
}

func Limit(n int) SelectOption  { return func(o *selectOptions) { o.limit = n } }
func Offset(n int) SelectOption { return func(o *selectOptions) { o.offset = n } }

type upsertOptions struct {
	doNothing bool

	guardColumn string
	guardValues []any
	guarded     map[string]bool
}

type UpsertOption func(*upsertOptions)

// DoNothing keeps existing rows untouched on conflict.
func DoNothing() UpsertOption { return func(o *upsertOptions) { o.doNothing = true } }

// KeepWhen leaves the keep columns of a conflicting row as stored while its
// column holds one of values. The decision is made by the database at write
// time, so it holds against concurrent writers.
func KeepWhen(column string, values []any, keep ...string) UpsertOption {
	return func(o *upsertOptions) {
		o.guardColumn = column
		o.guardValues = values
		o.guarded = make(map[string]bool, len(keep))
		for _, c := range keep {
			o.guarded[c] = true
		}
	}
}

var (
	ErrUnfilteredWrite = errors.New("database: update or delete requires a filter")
	ErrEmptyRows       = errors.New("database: no rows to write")

	identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// Store is the generic persistence surface used by the repositories:
// Insert, Upsert, Select, Get, Update, Delete and Count over plain table
// names and Filters. It works the same on a pool or inside WithTx.
type Store struct {
	ext sqlx.ExtContext
	db  *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{ext: db, db: db}
}

func (s *Store) Select(ctx context.Context, dest any, table string, filter Filter, opts ...SelectOption) error {
	query, args, err := buildSelect("*", table, filter, opts...)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, s.ext, dest, query, args...)
}

// Get loads a single row. It returns sql.ErrNoRows when nothing matches.
func (s *Store) Get(ctx context.Context, dest any, table string, filter Filter) error {
	query, args, err := buildSelect("*", table, filter, Limit(1))
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, s.ext, dest, query, args...)
}

func (s *Store) Count(ctx context.Context, table string, filter Filter) (int, error) {
	query, args, err := buildSelect("COUNT(*)", table, filter)
	if err != nil {
		return 0, err
	}
	var n int
	if err := sqlx.GetContext(ctx, s.ext, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// Insert writes one row and scans the stored row back into dest when dest
// is not nil.
func (s *Store) Insert(ctx context.Context, table string, row Row, dest any) error {
	query, args, err := buildInsert(table, []Row{row}, nil, upsertOptions{}, dest != nil)
	if err != nil {
		return err
	}
	if dest == nil {
		_, err = s.ext.ExecContext(ctx, query, args...)
		return err
	}
	return s.ext.QueryRowxContext(ctx, query, args...).StructScan(dest)
}

// Upsert inserts rows and on conflict over conflictKeys overwrites every
// other written column. It returns the number of rows written.
func (s *Store) Upsert(ctx context.Context, table string, rows []Row, conflictKeys []string, opts ...UpsertOption) (int64, error) {
	if len(conflictKeys) == 0 {
		return 0, fmt.Errorf("database: upsert into %s without conflict keys", table)
	}
	var o upsertOptions
	for _, opt := range opts {
		opt(&o)
	}
	query, args, err := buildInsert(table, rows, conflictKeys, o, false)
	if err != nil {
		return 0, err
	}
	res, err := s.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Update(ctx context.Context, table string, filter Filter, patch Row) (int64, error) {
	query, args, err := buildUpdate(table, filter, patch)
	if err != nil {
		return 0, err
	}
	res, err := s.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, table string, filter Filter) (int64, error) {
	query, args, err := buildDelete(table, filter)
	if err != nil {
		return 0, err
	}
	res, err := s.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// WithTx runs fn inside a transaction. Nested calls reuse the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Error("Store:WithTx:Rollback:Error", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func buildSelect(columns, table string, filter Filter, opts ...SelectOption) (string, []any, error) {
	if err := checkIdent(table); err != nil {
		return "", nil, err
	}
	var o selectOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(o.columns) > 0 {
		for _, c := range o.columns {
			if err := checkIdent(c); err != nil {
				return "", nil, err
			}
		}
		columns = strings.Join(o.columns, ", ")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columns)
	b.WriteString(" FROM ")
	b.WriteString(table)

	where, args, err := filter.render()
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if len(o.orderBy) > 0 {
		parts := make([]string, 0, len(o.orderBy))
		for _, ob := range o.orderBy {
			if err := checkIdent(ob.Column); err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if ob.Desc {
				dir = "DESC"
			}
			parts = append(parts, ob.Column+" "+dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if o.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", o.limit)
	}
	if o.offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", o.offset)
	}
	return bind(b.String(), args)
}

func buildInsert(table string, rows []Row, conflictKeys []string, o upsertOptions, returning bool) (string, []any, error) {
	if err := checkIdent(table); err != nil {
		return "", nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", nil, ErrEmptyRows
	}

	columns := sortedKeys(rows[0])
	for _, c := range columns {
		if err := checkIdent(c); err != nil {
			return "", nil, err
		}
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("database: row %d of %s has %d columns, want %d", i, table, len(row), len(columns))
		}
		for _, c := range columns {
			v, ok := row[c]
			if !ok {
				return "", nil, fmt.Errorf("database: row %d of %s is missing column %s", i, table, c)
			}
			args = append(args, normalizeArg(v))
		}
		values = append(values, placeholder)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES %s", table, strings.Join(columns, ", "), strings.Join(values, ", "))

	if len(conflictKeys) > 0 {
		for _, k := range conflictKeys {
			if err := checkIdent(k); err != nil {
				return "", nil, err
			}
		}
		isKey := make(map[string]bool, len(conflictKeys))
		for _, k := range conflictKeys {
			isKey[k] = true
		}
		var guard string
		if len(o.guarded) > 0 {
			if err := checkIdent(o.guardColumn); err != nil {
				return "", nil, err
			}
			if len(o.guardValues) == 0 {
				return "", nil, fmt.Errorf("database: upsert guard on %s without values", o.guardColumn)
			}
			guard = fmt.Sprintf("%s.%s IN (%s)", table, o.guardColumn,
				strings.TrimSuffix(strings.Repeat("?, ", len(o.guardValues)), ", "))
		}
		var sets []string
		for _, c := range columns {
			switch {
			case isKey[c]:
			case o.guarded[c]:
				sets = append(sets, fmt.Sprintf("%s = CASE WHEN %s THEN %s.%s ELSE EXCLUDED.%s END", c, guard, table, c, c))
				for _, v := range o.guardValues {
					args = append(args, normalizeArg(v))
				}
			default:
				sets = append(sets, c+" = EXCLUDED."+c)
			}
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s)", strings.Join(conflictKeys, ", "))
		if o.doNothing || len(sets) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET ")
			b.WriteString(strings.Join(sets, ", "))
		}
	}
	if returning {
		b.WriteString(" RETURNING *")
	}
	return bind(b.String(), args)
}

func buildUpdate(table string, filter Filter, patch Row) (string, []any, error) {
	if err := checkIdent(table); err != nil {
		return "", nil, err
	}
	if len(filter) == 0 {
		return "", nil, ErrUnfilteredWrite
	}
	if len(patch) == 0 {
		return "", nil, ErrEmptyRows
	}

	columns := sortedKeys(patch)
	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+len(filter))
	for _, c := range columns {
		if err := checkIdent(c); err != nil {
			return "", nil, err
		}
		sets = append(sets, c+" = ?")
		args = append(args, normalizeArg(patch[c]))
	}

	where, whereArgs, err := filter.render()
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)
	return bind(fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where), args)
}

func buildDelete(table string, filter Filter) (string, []any, error) {
	if err := checkIdent(table); err != nil {
		return "", nil, err
	}
	if len(filter) == 0 {
		return "", nil, ErrUnfilteredWrite
	}
	where, args, err := filter.render()
	if err != nil {
		return "", nil, err
	}
	return bind(fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args)
}

func (f Filter) render() (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(f))
	var args []any
	for _, c := range f {
		if err := checkIdent(c.Column); err != nil {
			return "", nil, err
		}
		v := normalizeArg(c.Value)
		switch c.Op {
		case OpEq, OpNe:
			if v == nil {
				if c.Op == OpEq {
					parts = append(parts, c.Column+" IS NULL")
				} else {
					parts = append(parts, c.Column+" IS NOT NULL")
				}
				continue
			}
			parts = append(parts, fmt.Sprintf("%s %s ?", c.Column, c.Op))
			args = append(args, v)
		case OpLt, OpLte, OpGt, OpGte:
			parts = append(parts, fmt.Sprintf("%s %s ?", c.Column, c.Op))
			args = append(args, v)
		case OpIn, OpNotIn:
			rv := reflect.ValueOf(v)
			if v == nil || rv.Kind() != reflect.Slice {
				return "", nil, fmt.Errorf("database: %s on %s needs a slice", c.Op, c.Column)
			}
			if rv.Len() == 0 {
				// IN () matches nothing, NOT IN () matches everything
				if c.Op == OpIn {
					parts = append(parts, "FALSE")
				} else {
					parts = append(parts, "TRUE")
				}
				continue
			}
			parts = append(parts, fmt.Sprintf("%s %s (?)", c.Column, c.Op))
			args = append(args, v)
		default:
			return "", nil, fmt.Errorf("database: unsupported operator %q", c.Op)
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

// bind expands IN slices and rewrites ? placeholders for postgres.
func bind(query string, args []any) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args, nil
}

// normalizeArg turns typed nil pointers into untyped nil so they bind as
// NULL and render as IS NULL.
func normalizeArg(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil
	}
	return v
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("database: invalid identifier %q", name)
	}
	return nil
}

func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
