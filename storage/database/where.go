package database

import (
	"strconv"
	"strings"
)

// Where builds the conditions of a postgres query. Conditions are joined with AND;
// each '?' of a condition is replaced by the next positional parameter.
type Where struct {
	conds []string
	args  []interface{}
}

func (w *Where) Add(cond string, args ...interface{}) {
	var b strings.Builder
	i := 0
	for _, r := range cond {
		if r == '?' && i < len(args) {
			b.WriteString(w.Arg(args[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	w.conds = append(w.conds, b.String())
}

// Arg binds v to the next positional parameter and returns its placeholder.
func (w *Where) Arg(v interface{}) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *Where) Args() []interface{} {
	return w.args
}

// String renders the " WHERE ..." clause, or nothing without conditions.
func (w *Where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Like wraps s as a case-insensitive "contains" pattern, escaping LIKE wildcards.
func Like(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
