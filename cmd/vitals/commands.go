package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-health-go/pkg/authclient"
	"github.com/ovaphlow/pitchfork/service-health-go/pkg/healthapi"
)

// exitSessionEnded is returned when the backend refused to renew the session.
const exitSessionEnded = 2

func credentialFlags(cmd *cobra.Command, email, password *string) {
	cmd.Flags().StringVar(email, "email", "", "Account email (default from config)")
	cmd.Flags().StringVar(password, "password", "", "Account password (default from config)")
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func loginCmd(g *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials and print the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			s, err := newSession(cfg, logger)
			if err != nil {
				return err
			}
			res, err := s.login(cmd.Context(), pick(email, cfg.Email), pick(password, cfg.Password))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", res.Message)
			fmt.Fprintf(out, "user:    %s <%s>\n", res.User.FullName, res.User.Email)
			fmt.Fprintf(out, "expires: %s\n", res.Session.ExpiresAt.Local().Format(time.RFC1123))
			return s.api.Logout(cmd.Context())
		},
	}
	credentialFlags(cmd, &email, &password)
	return cmd
}

func healthCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			s, err := newSession(cfg, logger)
			if err != nil {
				return err
			}
			h, err := s.api.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", h.Service, h.Version, h.Status)
			return nil
		},
	}
}

func dashboardCmd(g *globalFlags) *cobra.Command {
	var (
		email, password string
		watch           time.Duration
		metricsAddr     string
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Log in and show the dashboard, optionally refreshing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			s, err := newSession(cfg, logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Warnw("metrics server failed", "err", err)
					}
				}()
				defer srv.Close()
			}

			if _, err := s.login(ctx, pick(email, cfg.Email), pick(password, cfg.Password)); err != nil {
				return err
			}
			return s.watchDashboard(ctx, cmd.OutOrStdout(), watch)
		},
	}
	credentialFlags(cmd, &email, &password)
	cmd.Flags().DurationVar(&watch, "watch", 0, "Reload the dashboard at this interval until interrupted")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve client metrics on this address (e.g. :9091)")
	return cmd
}

// watchDashboard prints the dashboard once, or every interval until ctx ends
// or the session is invalidated.
func (s *session) watchDashboard(ctx context.Context, out io.Writer, every time.Duration) error {
	for {
		d, err := s.api.Dashboard(ctx)
		switch {
		case errors.Is(err, authclient.ErrSessionInvalidated), errors.Is(err, authclient.ErrNoCredential):
			return &exitError{code: exitSessionEnded, err: fmt.Errorf("session ended, run `vitals login` again: %w", err)}
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			if every <= 0 {
				return err
			}
			s.logger.Warnw("dashboard load failed", "err", err)
		default:
			printDashboard(out, d)
		}
		if every <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.invalidated:
			return &exitError{code: exitSessionEnded, err: errors.New("session ended, run `vitals login` again")}
		case <-time.After(every):
		}
	}
}

func printDashboard(out io.Writer, d *healthapi.Dashboard) {
	name := d.Profile.FullName
	if name == "" {
		name = d.User.Email
	}
	fmt.Fprintf(out, "== %s ==\n", name)
	fmt.Fprintf(out, "email:   %s\n", d.User.Email)
	if d.Profile.AvatarURL != "" {
		fmt.Fprintf(out, "avatar:  %s\n", d.Profile.AvatarURL)
	}
	fmt.Fprintf(out, "member:  since %s\n", d.User.CreatedAt.Local().Format("2006-01-02"))
	fmt.Fprintf(out, "api:     %s (%s %s)\n", d.Health.Status, d.Health.Service, d.Health.Version)
}
