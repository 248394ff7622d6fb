package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sjsage522/promobot/config"
	"sjsage522/promobot/internal/affiliate"
	"sjsage522/promobot/internal/audit"
	"sjsage522/promobot/internal/offer"
	"sjsage522/promobot/internal/seen"
	"sjsage522/promobot/logger"
	"sjsage522/promobot/services/publisher"
	"sjsage522/promobot/services/worker"
)

// pageDelay separates listing page requests
var pageDelay = 2 * time.Second

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "promobot",
		Short: "Publishes marketplace deals to a Telegram channel",
		Long: `promobot scrapes the marketplace offers listing, filters and ranks genuine
discounts, resolves referral links and posts the best offers to a Telegram channel.

Run a single instance per data directory or redis prefix.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		runCommand(),
		onceCommand(),
		loginCommand(),
		linksCommand(),
		statsCommand(),
		purgeCommand(),
	)
	return root
}

// loadConfig loads and validates the configuration
func loadConfig() (*config.Config, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withServices runs fn with initialized services
func withServices(ctx context.Context, fn func(*Services) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := initializeServices(ctx, cfg)
	if err != nil {
		notifyFatal(ctx, cfg, err)
		return err
	}
	defer s.Cleanup()
	return fn(s)
}

// notifyFatal alerts the operator about a startup failure
func notifyFatal(ctx context.Context, cfg *config.Config, err error) {
	n := publisher.NewTelegramNotifier(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramPersonalChatID, nil)
	_ = n.Notify(ctx, publisher.LevelError, "Error crítico en el bot", err.Error())
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run publishing cycles until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(s *Services) error {
				if err := requireTelegram(s.Config); err != nil {
					return err
				}
				logger.Default.Info().
					Str("environment", s.Config.Environment).
					Dur("cycle_interval", s.Config.CycleInterval).
					Msg("Starting application")
				return worker.NewWorker(s.Orchestrator(), s.Config.CycleInterval).Start(cmd.Context())
			})
		},
	}
}

func onceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single publishing cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(s *Services) error {
				if err := requireTelegram(s.Config); err != nil {
					return err
				}
				summary, err := worker.NewWorker(s.Orchestrator(), 0).RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d published, %d failed, %d candidates\n",
					summary.RunID, summary.Published, summary.Failed, summary.Candidates)
				return nil
			})
		},
	}
}

func loginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Open the browser and capture a marketplace session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(s *Services) error {
				if err := s.Resolver.Login(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session saved to %s\n", s.Config.SessionPath)
				return nil
			})
		},
	}
}

func linksCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "links <file>",
		Short: "Resolve referral links for a file of product URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, err := readURLs(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(s *Services) error {
				results := s.Resolver.ResolveBatch(cmd.Context(), urls)

				w := cmd.OutOrStdout()
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				if err := writeLinksCSV(w, results); err != nil {
					return err
				}

				resolved := 0
				for _, r := range results {
					if r.Affiliate {
						resolved++
					}
				}
				logger.Info("Resolved %d/%d referral links", resolved, len(results))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write CSV to this file instead of stdout")
	return cmd
}

// readURLs reads one URL per line, skipping blanks and # comments
func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}

func writeLinksCSV(w io.Writer, results []affiliate.BatchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"url", "link", "affiliate"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write([]string{r.URL, r.Link, strconv.FormatBool(r.Affiliate)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show today's published offer statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openAuditDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := db.TodayStats(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStats(w io.Writer, st audit.Stats) {
	fmt.Fprintf(w, "Publicadas hoy:   %d\n", st.Total)
	fmt.Fprintf(w, "Con afiliado:     %d (%.1f%%)\n", st.Affiliate, st.AffiliateRate())
	fmt.Fprintf(w, "Sin afiliado:     %d\n", st.Plain)
	if st.Total > 0 {
		fmt.Fprintf(w, "Descuento prom.:  %.1f%%\n", st.AvgDiscount)
		fmt.Fprintf(w, "Descuento máx.:   %.1f%%\n", st.MaxDiscount)
		fmt.Fprintf(w, "Descuento mín.:   %.1f%%\n", st.MinDiscount)
	}
}

func purgeCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "purge [key]",
		Short: "Forget a published product so it can be posted again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("pass a product key or --all")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			backend, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			c := seen.New(backend, seen.WithMaxRecent(cfg.TitleCacheSize))
			if err := c.Load(ctx); err != nil {
				return err
			}
			if all {
				if err := c.PurgeAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "seen cache cleared")
				return nil
			}
			found, err := c.Purge(ctx, offer.Canonical(args[0], ""))
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not in the seen cache\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s purged\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "forget every published product")
	return cmd
}
