package sqlcoll

import (
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/kailas-cloud/selectd/internal/collection"
	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/domain/search/filter"
)

// where translates the filter expression; nil means no WHERE clause.
func (s *Store) where(q collection.Query) (sq.Sqlizer, error) {
	expr := q.Where
	if expr.IsEmpty() {
		return nil, nil
	}
	and := sq.And{}
	for _, c := range expr.Must() {
		part, err := s.condition(c)
		if err != nil {
			return nil, err
		}
		and = append(and, part)
	}
	if len(expr.Should()) > 0 {
		or := sq.Or{}
		for _, c := range expr.Should() {
			part, err := s.condition(c)
			if err != nil {
				return nil, err
			}
			or = append(or, part)
		}
		and = append(and, or)
	}
	for _, c := range expr.MustNot() {
		part, err := s.condition(c)
		if err != nil {
			return nil, err
		}
		if c.Op() == filter.IsNull {
			and = append(and, sq.ConcatExpr("NOT (", part, ")"))
			continue
		}
		// NULL columns never match an exclude, as in the in-memory backend.
		and = append(and, sq.Or{
			sq.Eq{c.Field(): nil},
			sq.ConcatExpr("NOT (", part, ")"),
		})
	}
	return and, nil
}

func (s *Store) condition(c filter.Condition) (sq.Sqlizer, error) {
	col := c.Field()
	if _, ok := s.allowed[col]; !ok {
		return nil, fmt.Errorf("%w: unknown column %q", domain.ErrInvalidFilter, col)
	}
	v := c.Value()
	switch c.Op() {
	case filter.Exact:
		return sq.Eq{col: v}, nil
	case filter.IExact:
		return sq.Expr("LOWER("+col+") = LOWER(?)", v), nil
	case filter.Contains:
		return like(col, "%"+escapeLike(v)+"%", false), nil
	case filter.IContains:
		return like(col, "%"+escapeLike(v)+"%", true), nil
	case filter.StartsWith:
		return like(col, escapeLike(v)+"%", false), nil
	case filter.IStartsWith:
		return like(col, escapeLike(v)+"%", true), nil
	case filter.EndsWith:
		return like(col, "%"+escapeLike(v), false), nil
	case filter.IEndsWith:
		return like(col, "%"+escapeLike(v), true), nil
	case filter.In:
		return sq.Eq{col: c.Values()}, nil
	case filter.GT:
		return sq.Gt{col: operand(v)}, nil
	case filter.GTE:
		return sq.GtOrEq{col: operand(v)}, nil
	case filter.LT:
		return sq.Lt{col: operand(v)}, nil
	case filter.LTE:
		return sq.LtOrEq{col: operand(v)}, nil
	case filter.IsNull:
		if c.Null() {
			return sq.Eq{col: nil}, nil
		}
		return sq.NotEq{col: nil}, nil
	}
	return nil, fmt.Errorf("%w: unsupported operator %q", domain.ErrInvalidFilter, c.Op())
}

func like(col, pattern string, fold bool) sq.Sqlizer {
	if fold {
		return sq.Expr("LOWER("+col+") LIKE LOWER(?) ESCAPE '"+likeEscape+"'", pattern)
	}
	return sq.Expr(col+" LIKE ? ESCAPE '"+likeEscape+"'", pattern)
}

// operand binds numeric-looking comparison values as numbers.
func operand(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
