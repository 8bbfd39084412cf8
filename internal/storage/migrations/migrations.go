// Package migrations embeds the cache schemas of the SQL backends.
package migrations

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Migration is one embedded SQL file split into statements.
type Migration struct {
	Name       string
	Statements []string
}

// Postgres returns the PostgreSQL migrations in lexical order.
func Postgres() ([]Migration, error) { return Load(PostgresFS, "postgres") }

// Clickhouse returns the ClickHouse migrations in lexical order.
func Clickhouse() ([]Migration, error) { return Load(ClickhouseFS, "clickhouse") }

// SQLite returns the SQLite migrations in lexical order.
func SQLite() ([]Migration, error) { return Load(SQLiteFS, "sqlite") }

// Load reads every .sql file in dir, sorted by name, and splits each into
// statements. Migrations are expected to be idempotent.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	out := make([]Migration, 0, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}

		// Validate SQL doesn't contain semicolons in strings (would break splitter)
		if err := validateNoSemicolonInStrings(string(data)); err != nil {
			return nil, fmt.Errorf("validate migration %s: %w", file, err)
		}

		stmts := splitStatements(string(data))
		if len(stmts) == 0 {
			continue
		}
		out = append(out, Migration{Name: file, Statements: stmts})
	}
	return out, nil
}

// splitStatements splits SQL content into individual statements by semicolon.
//
// The splitter does NOT handle semicolons inside string literals, inside
// block comments, or dollar-quoted strings. Migrations use -- comments only
// and keep semicolons out of literals; validateNoSemicolonInStrings enforces
// the literal rule at load time.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings checks that SQL doesn't contain semicolons inside
// single-quoted strings, which would break the statement splitter.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			// Handle escaped quotes ''
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon found inside string literal")
		}
	}
	return nil
}
