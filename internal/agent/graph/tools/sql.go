package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	_ "modernc.org/sqlite"
)

const (
	ToolSQLListTables = "sql_db_list_tables"
	ToolSQLSchema     = "sql_db_schema"
	ToolSQLQuery      = "sql_db_query"
)

const (
	sqlSampleRows = 3
	sqlMaxRows    = 50
)

// SQLDatabase exposes a database to the model through three read-only tools.
type SQLDatabase struct {
	db *sql.DB
}

// OpenSQLite opens path read-only with the modernc sqlite driver.
func OpenSQLite(path string) (*SQLDatabase, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLDatabase{db: db}, nil
}

func NewSQLDatabase(db *sql.DB) *SQLDatabase {
	return &SQLDatabase{db: db}
}

func (s *SQLDatabase) Close() error { return s.db.Close() }

// Tables lists user tables in name order.
func (s *SQLDatabase) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Schema returns the CREATE statement and a few sample rows for each table.
func (s *SQLDatabase) Schema(ctx context.Context, tables []string) (string, error) {
	var sb strings.Builder
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		var ddl string
		err := s.db.QueryRowContext(ctx, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, t).Scan(&ddl)
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("table %q does not exist", t)
		}
		if err != nil {
			return "", err
		}
		sample, err := s.render(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT %d`, t, sqlSampleRows))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%s\n\n/*\n%d rows from %s table:\n%s\n*/\n\n", strings.TrimSpace(ddl), sqlSampleRows, t, sample)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Query runs a read-only statement and renders at most sqlMaxRows rows.
func (s *SQLDatabase) Query(ctx context.Context, query string) (string, error) {
	if err := checkReadOnly(query); err != nil {
		return "", err
	}
	return s.render(ctx, query)
}

func (s *SQLDatabase) render(ctx context.Context, query string) (string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(strings.Join(cols, "\t"))

	n := 0
	for rows.Next() {
		if n == sqlMaxRows {
			fmt.Fprintf(&sb, "\n... (more than %d rows)", sqlMaxRows)
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		cells := make([]string, len(cols))
		for i, v := range vals {
			cells[i] = cell(v)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.Join(cells, "\t"))
		n++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if n == 0 {
		sb.WriteString("\n(no rows)")
	}
	return sb.String(), nil
}

func cell(v any) string {
	switch vv := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(vv)
	default:
		return fmt.Sprint(vv)
	}
}

var readOnlyPrefixes = []string{"select", "with", "pragma", "explain"}

// checkReadOnly accepts a single SELECT, WITH, PRAGMA or EXPLAIN statement.
func checkReadOnly(query string) error {
	q := strings.TrimSpace(query)
	q = strings.TrimSuffix(q, ";")
	if q == "" {
		return fmt.Errorf("empty query")
	}
	if strings.Contains(q, ";") {
		return fmt.Errorf("only a single statement is allowed")
	}
	lower := strings.ToLower(q)
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(lower, p) {
			return nil
		}
	}
	return fmt.Errorf("only read-only statements are allowed")
}

// ===================================
// SQL Tools
// ===================================

type SQLSchemaInput struct {
	Tables string `json:"table_names"`
}

type SQLQueryInput struct {
	Query string `json:"query"`
}

// Tools returns the list-tables, schema and query tools. Database errors are
// returned as text so the model can correct its query.
func (s *SQLDatabase) Tools() []tool.InvokableTool {
	listTables := utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolSQLListTables,
			Desc:        "List the tables in the database. Call this first to know what you can query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, _ *struct{}) (string, error) {
			tables, err := s.Tables(ctx)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			return strings.Join(tables, ", "), nil
		},
	)

	tableSchema := utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSQLSchema,
			Desc: "Get the schema and sample rows of the given tables. Check the tables exist with sql_db_list_tables first.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"table_names": {Type: schema.String, Desc: "Comma-separated list of table names.", Required: true},
			}),
		},
		func(ctx context.Context, in *SQLSchemaInput) (string, error) {
			out, err := s.Schema(ctx, strings.Split(in.Tables, ","))
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			return out, nil
		},
	)

	query := utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSQLQuery,
			Desc: "Run a read-only SQL query and get the result rows. If the query fails, rewrite it and try again.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "A detailed and correct SQL query.", Required: true},
			}),
		},
		func(ctx context.Context, in *SQLQueryInput) (string, error) {
			out, err := s.Query(ctx, in.Query)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			return out, nil
		},
	)

	return []tool.InvokableTool{listTables, tableSchema, query}
}
