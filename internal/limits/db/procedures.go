package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const (
	ProcIncrementSafely = "increment_number_sold_safely"
	ProcDecrementSafely = "decrement_number_sold_safely"
)

var procedureName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ProcParam is one named argument of a stored function call
type ProcParam struct {
	Name  string
	Value interface{}
}

// CallProcedure runs SELECT name(p => ?, ...) and scans the boolean result.
// Stores without the function (SQLite, an unmigrated Postgres) return an
// error and the caller falls back to plain statements.
func (d *DB) CallProcedure(ctx context.Context, name string, params ...ProcParam) (bool, error) {
	if !procedureName.MatchString(name) {
		return false, fmt.Errorf("invalid procedure name %q", name)
	}

	placeholders := make([]string, 0, len(params))
	args := make([]interface{}, 0, len(params))
	for _, p := range params {
		if !procedureName.MatchString(p.Name) {
			return false, fmt.Errorf("invalid parameter name %q for %s", p.Name, name)
		}
		placeholders = append(placeholders, p.Name+" => ?")
		args = append(args, p.Value)
	}

	query := fmt.Sprintf("SELECT %s(%s)", name, strings.Join(placeholders, ", "))
	var ok bool
	if err := d.Bun.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("call %s: %w", name, err)
	}
	return ok, nil
}
