package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// CheckKind names a built-in rule shape.
type CheckKind string

const (
	KindRowCount   CheckKind = "row_count"
	KindNotNull    CheckKind = "not_null"
	KindUnique     CheckKind = "unique"
	KindPattern    CheckKind = "pattern"
	KindPositive   CheckKind = "positive"
	KindUpperBound CheckKind = "upper_bound"
	KindRecency    CheckKind = "recency"
	KindSQL        CheckKind = "sql"
)

var ErrInvalidCheck = errors.New("invalid check")

// CheckSpec is the data form of a check as it appears in a catalog file.
// Which fields are required depends on Kind.
type CheckSpec struct {
	Kind        CheckKind    `yaml:"kind" json:"kind"`
	Name        string       `yaml:"name,omitempty" json:"name,omitempty"`
	Table       string       `yaml:"table,omitempty" json:"table,omitempty"`
	Column      string       `yaml:"column,omitempty" json:"column,omitempty"`
	Pattern     string       `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Threshold   *float64     `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	WindowHours int          `yaml:"window_hours,omitempty" json:"window_hours,omitempty"`
	Query       string       `yaml:"query,omitempty" json:"query,omitempty"`
	Expect      *Expectation `yaml:"expect,omitempty" json:"expect,omitempty"`
	Severity    Severity     `yaml:"severity,omitempty" json:"severity,omitempty"`
}

// Catalog is an ordered list of check specs. Order is report order.
type Catalog struct {
	Checks []CheckSpec `yaml:"checks" json:"checks"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Build expands every spec into a CheckDefinition. Names must be unique.
func (c Catalog) Build() ([]CheckDefinition, error) {
	defs := make([]CheckDefinition, 0, len(c.Checks))
	seen := make(map[string]int, len(c.Checks))
	for i, spec := range c.Checks {
		def, err := spec.Definition()
		if err != nil {
			return nil, fmt.Errorf("checks[%d]: %w", i, err)
		}
		if prev, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("checks[%d]: %w: name %q already used by checks[%d]", i, ErrInvalidCheck, def.Name, prev)
		}
		seen[def.Name] = i
		defs = append(defs, def)
	}
	return defs, nil
}

// Definition expands a single spec.
func (s CheckSpec) Definition() (CheckDefinition, error) {
	if !s.Severity.Valid() {
		return CheckDefinition{}, fmt.Errorf("%w: severity %q (allowed: critical, warning)", ErrInvalidCheck, s.Severity)
	}
	if s.Kind != KindSQL {
		if err := requireIdent("table", s.Table); err != nil {
			return CheckDefinition{}, err
		}
	}

	def := CheckDefinition{
		Kind:     s.Kind,
		Table:    s.Table,
		Column:   s.Column,
		Extract:  FirstScalar,
		Severity: s.Severity,
	}
	if def.Severity == "" {
		def.Severity = SeverityCritical
	}

	t, c := s.Table, s.Column
	switch s.Kind {
	case KindRowCount:
		def.Query = fmt.Sprintf("SELECT COUNT(*) FROM %s", t)
		def.Expect = ExpectPositive()
		def.Name = fmt.Sprintf("%s: row count", t)

	case KindNotNull:
		if err := requireIdent("column", c); err != nil {
			return CheckDefinition{}, err
		}
		def.Query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", t, c)
		def.Expect = ExpectZero()
		def.Name = fmt.Sprintf("%s: null %s", t, c)

	case KindUnique:
		if err := requireIdent("column", c); err != nil {
			return CheckDefinition{}, err
		}
		def.Query = fmt.Sprintf("SELECT COUNT(*) - COUNT(DISTINCT %s) FROM %s", c, t)
		def.Expect = ExpectZero()
		def.Name = fmt.Sprintf("%s: duplicate %s", t, c)

	case KindPattern:
		if err := requireIdent("column", c); err != nil {
			return CheckDefinition{}, err
		}
		if s.Pattern == "" {
			return CheckDefinition{}, fmt.Errorf("%w: pattern check on %s.%s needs a pattern", ErrInvalidCheck, t, c)
		}
		if _, err := regexp.Compile(s.Pattern); err != nil {
			return CheckDefinition{}, fmt.Errorf("%w: pattern %q: %w", ErrInvalidCheck, s.Pattern, err)
		}
		def.Query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE NOT regexp_like(%s, %s)", t, c, quoteLiteral(s.Pattern))
		def.Expect = ExpectZero()
		def.Name = fmt.Sprintf("%s: invalid %s format", t, c)

	case KindPositive:
		if err := requireIdent("column", c); err != nil {
			return CheckDefinition{}, err
		}
		def.Query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s <= 0", t, c)
		def.Expect = ExpectZero()
		def.Name = fmt.Sprintf("%s: non-positive %s", t, c)

	case KindUpperBound:
		if err := requireIdent("column", c); err != nil {
			return CheckDefinition{}, err
		}
		if s.Threshold == nil {
			return CheckDefinition{}, fmt.Errorf("%w: upper_bound check on %s.%s needs a threshold", ErrInvalidCheck, t, c)
		}
		def.Query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s > %s", t, c, formatNumber(*s.Threshold))
		def.Expect = ExpectZero()
		def.Name = fmt.Sprintf("%s: excessive %s (>%s)", t, c, formatNumber(*s.Threshold))

	case KindRecency:
		if err := requireIdent("column", c); err != nil {
			return CheckDefinition{}, err
		}
		hours := s.WindowHours
		if hours == 0 {
			hours = 24
		}
		if hours < 0 {
			return CheckDefinition{}, fmt.Errorf("%w: window_hours must be positive, got %d", ErrInvalidCheck, hours)
		}
		def.Query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s >= current_timestamp - interval '%d' hour", t, c, hours)
		def.Expect = ExpectPositive()
		def.Name = fmt.Sprintf("%s: recent rows (%dh)", t, hours)

	case KindSQL:
		if strings.TrimSpace(s.Query) == "" {
			return CheckDefinition{}, fmt.Errorf("%w: sql check needs a query", ErrInvalidCheck)
		}
		if s.Name == "" {
			return CheckDefinition{}, fmt.Errorf("%w: sql check needs a name", ErrInvalidCheck)
		}
		if s.Expect == nil {
			return CheckDefinition{}, fmt.Errorf("%w: sql check %q needs an expectation", ErrInvalidCheck, s.Name)
		}
		if s.Table != "" {
			if err := requireIdent("table", s.Table); err != nil {
				return CheckDefinition{}, err
			}
		}
		def.Query = strings.TrimSpace(s.Query)

	default:
		return CheckDefinition{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidCheck, s.Kind)
	}

	if s.Expect != nil {
		if !s.Expect.Op.Valid() {
			return CheckDefinition{}, fmt.Errorf("%w: expect.op %q (allowed: eq, ne, gt, ge, lt, le)", ErrInvalidCheck, s.Expect.Op)
		}
		def.Expect = *s.Expect
	}
	if s.Name != "" {
		def.Name = s.Name
	}
	return def, nil
}

func requireIdent(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidCheck, field)
	}
	if !identRe.MatchString(v) {
		return fmt.Errorf("%w: %s %q is not a plain identifier", ErrInvalidCheck, field, v)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DefaultCatalog is the sample policy for the demo lakehouse: a products
// dimension and a sales fact table.
func DefaultCatalog() Catalog {
	excessiveQty := 100.0
	return Catalog{Checks: []CheckSpec{
		{Kind: KindRowCount, Table: "products"},
		{Kind: KindRowCount, Table: "sales"},
		{Kind: KindNotNull, Table: "products", Column: "id"},
		{Kind: KindNotNull, Table: "products", Column: "sku"},
		{Kind: KindUnique, Table: "products", Column: "sku"},
		{Kind: KindPattern, Table: "products", Column: "sku", Pattern: `^P-[0-9]{3}$`},
		{Kind: KindNotNull, Table: "sales", Column: "qty"},
		{Kind: KindPositive, Table: "sales", Column: "qty"},
		{Kind: KindNotNull, Table: "sales", Column: "price"},
		{Kind: KindPositive, Table: "sales", Column: "price"},
		{Kind: KindUpperBound, Table: "sales", Column: "qty", Threshold: &excessiveQty, Severity: SeverityWarning},
		{Kind: KindRecency, Table: "sales", Column: "sale_ts", WindowHours: 24, Severity: SeverityWarning},
	}}
}
