package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"portfolio/api/internal/authpw"
	"portfolio/api/internal/config"
	"portfolio/api/internal/content"
	"portfolio/api/internal/merge"
	"portfolio/api/internal/store"
)

const commandTimeout = 30 * time.Second

type options struct {
	databaseURL   string
	migrationsDir string
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{databaseURL: cfg.DatabaseURL, migrationsDir: cfg.MigrationsDir}

	root := &cobra.Command{
		Use:           "siteadmin",
		Short:         "Operate the site content service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", opts.databaseURL, "Postgres connection URL (DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.migrationsDir, "migrations", opts.migrationsDir, "migrations directory (MIGRATIONS_DIR)")

	root.AddCommand(
		newHashPasswordCmd(),
		newDoctorCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func newHashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := authpw.HashPassword(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default 10)")
	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newDoctorCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check database connection, read access and write access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, _ *sql.DB, data *store.PostgresStore) error {
				report := store.Diagnose(ctx, data)
				if asJSON {
					if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					printReport(cmd.OutOrStdout(), report)
				}
				if !report.OK {
					return errors.New("one or more checks failed")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printReport(w io.Writer, report store.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range []string{"connection", "read", "write"} {
		check, ok := report.Checks[name]
		if !ok {
			continue
		}
		line := fmt.Sprintf("%s\t%s\t%dms", name, check.Status, check.DurationMs)
		if check.Error != "" {
			line += "\t" + check.Error
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
}

func newExportCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored document, merged over the defaults, as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, _ *sql.DB, data *store.PostgresStore) error {
				stored, err := data.LoadContent(ctx)
				if err != nil {
					return err
				}
				doc := merge.Document(content.DefaultTree(), stored)
				if out == "" || out == "-" {
					return writeJSON(cmd.OutOrStdout(), doc)
				}
				return writeJSONFile(out, doc)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd(opts *options) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge a JSON document over the defaults and save it; running APIs pick it up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocumentFile(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				return writeJSON(cmd.OutOrStdout(), doc)
			}
			return withStore(cmd.Context(), opts, func(ctx context.Context, _ *sql.DB, data *store.PostgresStore) error {
				if err := data.SaveContent(ctx, doc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d sections from %s\n", len(doc), args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the merged document instead of saving it")
	return cmd
}

// readDocumentFile loads a JSON object from path and merges it over the
// canonical default.
func readDocumentFile(path string) (content.Tree, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := content.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return merge.Document(content.DefaultTree(), doc), nil
}

func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or list database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, db *sql.DB, _ *store.PostgresStore) error {
				if err := store.ApplyMigrations(ctx, db, opts.migrationsDir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, db *sql.DB, _ *store.PostgresStore) error {
				rolledBack, err := store.RollbackMigrations(ctx, db, opts.migrationsDir, steps)
				for _, version := range rolledBack {
					fmt.Fprintln(cmd.OutOrStdout(), "rolled back", version)
				}
				return err
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, db *sql.DB, _ *store.PostgresStore) error {
				migrations, err := store.Migrations(ctx, db, opts.migrationsDir)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, m := range migrations {
					state := "pending"
					if m.Applied {
						state = "applied"
					}
					fmt.Fprintf(tw, "%s\t%s\n", m.Version, state)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func withStore(ctx context.Context, opts *options, fn func(context.Context, *sql.DB, *store.PostgresStore) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	db, err := store.Open(ctx, opts.databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db, store.NewPostgresStore(db))
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeJSONFile(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeJSON(file, value); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
