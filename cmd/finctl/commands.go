package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"finance-a2a-backend/internal/auth"
	"finance-a2a-backend/internal/config"
	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/services"
	"finance-a2a-backend/internal/store/postgres"
)

// env lazily connects to the database for commands that need it.
type env struct {
	cfg  *config.Config
	pool *pgxpool.Pool
}

func (e *env) load() error {
	if e.cfg != nil {
		return nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

func (e *env) db(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool != nil {
		return e.pool, nil
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, e.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	e.pool = pool
	return pool, nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	e := &env{}
	rootCmd := &cobra.Command{
		Use:           "finctl",
		Short:         "Operator tooling for the finance A2A host agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}

	rootCmd.AddCommand(newMigrateCmd(e))
	rootCmd.AddCommand(newWhitelistCmd(e))
	rootCmd.AddCommand(newSessionsCmd(e))
	rootCmd.AddCommand(newHashKeyCmd())
	rootCmd.AddCommand(newTokenCmd(e))
	return rootCmd
}

func newMigrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := e.db(cmd.Context())
			if err != nil {
				return err
			}
			applied, err := postgres.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("applied"), v)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which migrations have been applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := e.db(cmd.Context())
			if err != nil {
				return err
			}
			status, err := postgres.Status(cmd.Context(), pool)
			if err != nil {
				return err
			}
			for _, s := range status {
				mark := color.YellowString("pending")
				if s.Applied {
					mark = color.GreenString("applied")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", mark, s.Version)
			}
			return nil
		},
	})
	return cmd
}

func whitelistService(cmd *cobra.Command, e *env) (*services.WhitelistService, error) {
	pool, err := e.db(cmd.Context())
	if err != nil {
		return nil, err
	}
	return services.NewWhitelistService(postgres.NewPostgresStore(pool)), nil
}

func newWhitelistCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage access and report quotas",
	}

	add := &cobra.Command{
		Use:   "add EMAIL",
		Short: "Whitelist an email, optionally capping its reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := whitelistService(cmd, e)
			if err != nil {
				return err
			}
			req := models.WhitelistRequest{}
			allowed := true
			req.IsWhitelisted = &allowed
			if cmd.Flags().Changed("max-reports") {
				n, _ := cmd.Flags().GetInt("max-reports")
				req.MaxReports = &n
			}
			entry, err := svc.Upsert(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			printWhitelist(cmd.OutOrStdout(), []models.UserWhitelist{*entry})
			return nil
		},
	}
	add.Flags().Int("max-reports", 0, "Report cap (0 means unlimited)")

	remove := &cobra.Command{
		Use:   "remove EMAIL",
		Short: "Remove a whitelist entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := whitelistService(cmd, e)
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.RedString("removed"), args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List whitelist entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := whitelistService(cmd, e)
			if err != nil {
				return err
			}
			entries, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			printWhitelist(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}

func printWhitelist(w io.Writer, entries []models.UserWhitelist) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tWHITELISTED\tMAX REPORTS\tUPDATED")
	for _, e := range entries {
		maxReports := "unlimited"
		if e.MaxReports > 0 {
			maxReports = strconv.Itoa(e.MaxReports)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", e.Email, e.IsWhitelisted, maxReports, e.UpdatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func newSessionsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage conversation sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "close SESSION_ID",
		Short: "Close a session regardless of owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := e.db(cmd.Context())
			if err != nil {
				return err
			}
			svc := services.NewSessionService(postgres.NewPostgresStore(pool))
			if err := svc.CloseSession(cmd.Context(), "", args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("closed"), args[0])
			return nil
		},
	})
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key KEY",
		Short: "Print the bcrypt hash for AGENT_KEY_HASH or ADMIN_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newTokenCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Issue an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.load(); err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = e.cfg.Auth.TokenExpiration
			}
			token, err := auth.NewAccessToken(args[0], email, e.cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email claim")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to JWT_EXPIRATION)")
	return cmd
}
