// cleanup-project removes every table, column, link and rule of one project.
//
// Usage: go run ./scripts/cleanup-project <project-id>
//
// Database connection: Uses standard PG* environment variables
//
// Flags:
//
//	-dry-run   Show what would be deleted without actually deleting (default: true)
//	-rules     Only delete the project's rules
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// countQueries lists what a cleanup touches, in display order.
var countQueries = []struct {
	label string
	query string
}{
	{"tables", `SELECT count(*) FROM linkage_tables WHERE project_id = $1`},
	{"columns", `SELECT count(*) FROM linkage_columns WHERE project_id = $1`},
	{"links", `SELECT count(*) FROM linkage_links WHERE project_id = $1`},
	{"rules", `SELECT count(*) FROM linkage_rules WHERE project_id = $1`},
}

func main() {
	dryRun := flag.Bool("dry-run", true, "Show what would be deleted without actually deleting")
	rulesOnly := flag.Bool("rules", false, "Only delete the project's rules")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-dry-run=false] [-rules] <project-id>\n", os.Args[0])
		os.Exit(1)
	}

	projectID, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid project ID: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	// Set RLS context for project
	if _, err := conn.Exec(ctx, "SELECT set_config('app.current_project_id', $1, false)", projectID.String()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set RLS context: %v\n", err)
		os.Exit(1)
	}

	if err := printCounts(ctx, conn, projectID); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count project data: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Println("\nDRY RUN - no changes made. Run with -dry-run=false to delete.")
		return
	}

	// Columns, links and rules cascade from their table.
	query := `DELETE FROM linkage_tables WHERE project_id = $1`
	what := "tables"
	if *rulesOnly {
		query = `DELETE FROM linkage_rules WHERE project_id = $1`
		what = "rules"
	}

	result, err := conn.Exec(ctx, query, projectID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDeleted %d %s\n", result.RowsAffected(), what)
}

func printCounts(ctx context.Context, conn *pgx.Conn, projectID uuid.UUID) error {
	fmt.Printf("Project %s:\n", projectID)
	for _, q := range countQueries {
		var n int64
		if err := conn.QueryRow(ctx, q.query, projectID).Scan(&n); err != nil {
			return fmt.Errorf("count %s: %w", q.label, err)
		}
		fmt.Printf("  %-8s %d\n", q.label, n)
	}
	return nil
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "ekaya")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "ekaya_linkage")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
