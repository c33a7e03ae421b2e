package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"field-visit-service/internal/adapters/repositories"
	"field-visit-service/internal/config"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/platform/db"
	"field-visit-service/internal/ports"
	"field-visit-service/internal/services"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type storeFlags struct {
	sqlite     bool
	sqlitePath string
}

func newRootCmd() *cobra.Command {
	var flags storeFlags

	root := &cobra.Command{
		Use:           "dbtool",
		Short:         "Schema and ledger maintenance for the field visit service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flags.sqlite, "sqlite", false, "use the local SQLite file instead of DATABASE_URL")
	root.PersistentFlags().StringVar(&flags.sqlitePath, "sqlite-path", config.Get("SQLITE_PATH", "data/device.db"), "local SQLite file")

	root.AddCommand(newMigrateCmd(&flags))
	root.AddCommand(newImportCmd(&flags))
	root.AddCommand(newReportCmd(&flags))
	return root
}

// openStore opens the selected database, applies its schema and returns a ledger over it.
func openStore(flags *storeFlags) (*sql.DB, ports.WorkLedger, error) {
	if flags.sqlite {
		conn, err := db.OpenSQLite(flags.sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := repositories.InitSchema(conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return conn, repositories.NewSqliteWorkLedger(conn), nil
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil, errors.New("DATABASE_URL is required (or pass --sqlite)")
	}
	conn, err := db.Open(databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := repositories.InitPostgresSchema(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, repositories.NewSQLWorkLedger(conn), nil
}

func newMigrateCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := openStore(flags)
			if err != nil {
				return err
			}
			defer conn.Close()

			target := "postgres"
			if flags.sqlite {
				target = flags.sqlitePath
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready: %s\n", target)
			return nil
		},
	}
}

func newImportCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <records.json>",
		Short: "Append completed visit records from a JSON file to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, ledger, err := openStore(flags)
			if err != nil {
				return err
			}
			defer conn.Close()

			n, err := repositories.ImportRecordsJSON(cmd.Context(), ledger, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records from %s\n", n, args[0])
			return nil
		},
	}
}

func newReportCmd(flags *storeFlags) *cobra.Command {
	var (
		from, to     string
		users        []string
		schedulePath string
		timezone     string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the normal/overtime split for a date range as JSON rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := domain.ParseDate(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			toDate, err := domain.ParseDate(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if toDate.Before(fromDate) {
				return errors.New("--to must not be before --from")
			}

			schedule, err := config.LoadSchedule(schedulePath, timezone)
			if err != nil {
				return err
			}

			conn, ledger, err := openStore(flags)
			if err != nil {
				return err
			}
			defer conn.Close()

			loc := schedule.Loc()
			summary, err := services.BuildReport(cmd.Context(), ledger, ports.LedgerQuery{
				UserIDs: users,
				From:    fromDate.Start(loc),
				To:      toDate.Start(loc).AddDate(0, 0, 1),
			}, schedule)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, row := range services.Rows(summary.Clip(fromDate, toDate)) {
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day (inclusive), YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&users, "user", nil, "user id; repeat or comma-separate (default: all users)")
	cmd.Flags().StringVar(&schedulePath, "schedule", config.Get("SCHEDULE_PATH", ""), "weekly schedule YAML")
	cmd.Flags().StringVar(&timezone, "tz", config.Get("TIMEZONE", "UTC"), "time zone when the schedule file names none")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
