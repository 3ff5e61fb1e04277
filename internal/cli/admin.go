package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tableside/internal/clock"
	"github.com/roach88/tableside/internal/config"
	"github.com/roach88/tableside/internal/harness"
	"github.com/roach88/tableside/internal/idempotency"
	"github.com/roach88/tableside/internal/store"
)

// DatabaseOptions holds the --db flag shared by the operator commands.
type DatabaseOptions struct {
	*RootOptions
	Database string
}

func (o *DatabaseOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database (overrides config)")
}

// openStore loads config and opens the configured database.
func (o *DatabaseOptions) openStore() (config.Config, *store.Store, error) {
	cfg, err := loadConfig(o.RootOptions, o.Database)
	if err != nil {
		return config.Config{}, nil, err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return config.Config{}, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return cfg, st, nil
}

// MigrateResult reports the schema state after migrate.
type MigrateResult struct {
	Database      string `json:"database"`
	SchemaVersion int    `json:"schema_version"`
}

func (r MigrateResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s: schema version %d\n", r.Database, r.SchemaVersion)
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DatabaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Create the database if it does not exist and apply pending schema
migrations. Migrations are also applied by every other command that opens
the database; migrate does nothing else.

Example:
  tableside migrate --db ./tableside.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			version, err := st.SchemaVersion(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read schema version", err)
			}
			return formatter(rootOpts, cmd).Success(MigrateResult{Database: cfg.Database, SchemaVersion: version})
		},
	}
	opts.bind(cmd)
	return cmd
}

// SeedResult counts the reference rows applied by seed.
type SeedResult struct {
	Locations int `json:"locations"`
	Tables    int `json:"tables"`
	MenuItems int `json:"menu_items"`
	Staff     int `json:"staff"`
	Admins    int `json:"admins"`
}

func (r SeedResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Seeded %d location(s), %d table(s), %d menu item(s), %d staff, %d admin(s)\n",
		r.Locations, r.Tables, r.MenuItems, r.Staff, r.Admins)
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DatabaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <seed-file>",
		Short: "Load reference data from YAML",
		Long: `Upsert locations, tables, menu items, staff memberships and admins
from a YAML seed file. Running the same file twice is a no-op.

Example:
  tableside seed --db ./tableside.db ./seed.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := harness.LoadSeed(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load seed", err)
			}
			_, st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.ApplySeed(cmd.Context(), seed); err != nil {
				return WrapExitError(ExitFailure, "failed to apply seed", err)
			}
			return formatter(rootOpts, cmd).Success(SeedResult{
				Locations: len(seed.Locations),
				Tables:    len(seed.Tables),
				MenuItems: len(seed.MenuItems),
				Staff:     len(seed.Staff),
				Admins:    len(seed.Admins),
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// SweepResult reports how many idempotency records were purged.
type SweepResult struct {
	Purged int64 `json:"purged"`
}

func (r SweepResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Purged %d idempotency record(s)\n", r.Purged)
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DatabaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired idempotency records",
		Long: `Delete idempotency records older than idempotency.retention. The serve
command runs the same sweep every idempotency.sweep_interval.

Example:
  tableside sweep --db ./tableside.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			logger := newLogger(cfg, cmd.ErrOrStderr())
			sweeper := idempotency.NewSweeper(st, clock.System{}, cfg.Idempotency.Retention, cfg.Idempotency.SweepInterval, logger)
			n, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "sweep failed", err)
			}
			return formatter(rootOpts, cmd).Success(SweepResult{Purged: n})
		},
	}
	opts.bind(cmd)
	return cmd
}
