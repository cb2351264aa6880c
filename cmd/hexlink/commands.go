package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"hexlink.local/internal/app/shortener"
	"hexlink.local/internal/app/shortener/repo"
	"hexlink.local/internal/platform/config"

	"github.com/spf13/cobra"
)

const prompt = "Enter a URL to shorten (e.g., 'https://example.com'):"

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "hexlink",
		Short:         "Shorten and resolve links.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver: postgres, sqlite, json or memory")
	root.PersistentFlags().StringVar(&cfg.JSONPath, "json-path", cfg.JSONPath, "links file for the json store")
	root.PersistentFlags().StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "database file for the sqlite store")
	root.PersistentFlags().StringVar(&cfg.DBDSN, "dsn", cfg.DBDSN, "postgres connection string")

	root.AddCommand(
		newShortenCmd(&cfg),
		newResolveCmd(&cfg),
		newListCmd(&cfg),
		newMigrateCmd(&cfg),
	)
	return root
}

// withBackend opens the configured store for the duration of fn.
func withBackend(ctx context.Context, cfg *config.Config, fn func(repo.Backend) error) error {
	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	b, err := repo.Open(openCtx, *cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

func newShortenCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "shorten [url]",
		Short: "Create a short link. Reads the URL from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 1 {
				raw = args[0]
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), prompt)
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				raw = line
			}
			raw = cleanInput(raw)

			mode, err := shortener.ParseMode(cfg.ShortenMode)
			if err != nil {
				return err
			}
			return withBackend(cmd.Context(), cfg, func(b repo.Backend) error {
				svc := shortener.NewService(b, b, shortener.Options{DomainPrefix: cfg.DomainPrefix, Mode: mode})
				link, err := svc.Shorten(cmd.Context(), raw)
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "❌", err)
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "✅", link.ShortURL)
				return nil
			})
		},
	}
}

func newResolveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Print the original URL stored under id.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), cfg, func(b repo.Backend) error {
				svc := shortener.NewService(b, b, shortener.Options{DomainPrefix: cfg.DomainPrefix})
				link, err := svc.Resolve(cmd.Context(), strings.TrimSpace(args[0]))
				if errors.Is(err, shortener.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "❌ no link stored under %q\n", args[0])
					return err
				}
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "❌", err)
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), link.URL)
				return nil
			})
		},
	}
}

func newListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every stored link, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), cfg, func(b repo.Backend) error {
				links, err := b.List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSHORT URL\tURL\tCREATED")
				for _, l := range links {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, cfg.DomainPrefix+l.ID, l.URL, l.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), cfg, func(b repo.Backend) error {
				if pg, ok := b.(*repo.PostgresStore); ok {
					res, err := pg.Migrate(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d, skipped %d\n", len(res.AppliedFiles), len(res.SkippedFiles))
					return nil
				}
				// 其他后端在首次访问时建表
				if _, err := b.ListIdentifiers(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s store ready\n", cfg.StoreDriver)
				return nil
			})
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read url: %w", err)
	}
	return line, nil
}

// cleanInput 去掉首尾空白和末尾的 '/'。
func cleanInput(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
