package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/aryan0dhankhar/portal/internal/bootstrap"
	"github.com/aryan0dhankhar/portal/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/portal/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/portal/internal/security/auth"
	"github.com/aryan0dhankhar/portal/internal/service"
	"github.com/aryan0dhankhar/portal/pkg/config"
	"github.com/aryan0dhankhar/portal/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx := context.Background()
	command, args := os.Args[1], os.Args[2:]

	var err error
	switch command {
	case "seed":
		err = runSeed(ctx, args)
	case "hash-password":
		err = runHashPassword(args, os.Stdout)
	case "token":
		err = runToken(args, os.Stdout)
	case "secret":
		err = runSecret(args, os.Stdout)
	case "login":
		err = runLogin(ctx, args, os.Stdout)
	case "logout":
		err = newClientFromEnv().logout()
		if err == nil {
			fmt.Println("Logged out")
		}
	case "me", "kpis", "tickets", "weekly", "franchise":
		err = runQuery(ctx, command, newClientFromEnv(), os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runSeed applies the schema and seeds the demo tenant once, using the
// same configuration as the server
func runSeed(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("seed", pflag.ExitOnError)
	attempts := fs.Int("attempts", 1, "connection attempts before giving up")
	delay := fs.Duration("delay", 2*time.Second, "delay between attempts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.NewLogger(cfg.LogLevel)

	pool, err := database.NewConnectionPool(&database.Config{
		URL:           cfg.DatabaseURL,
		MaxOpenConns:  2,
		MaxIdleConns:  1,
		SQLMigrations: cfg.DBMigrations,
	}, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	var locker bootstrap.Locker
	if cfg.RedisURL != "" {
		rc, err := redis.NewClient(ctx, cfg.RedisURL, "portal:", log)
		if err != nil {
			log.Warn("redis unavailable, seeding without lock", slog.String("error", err.Error()))
		} else {
			defer rc.Close()
			locker = rc
		}
	}

	seeder := bootstrap.NewSeeder(pool, pool.DB(), auth.NewPasswordHasher(cfg.BcryptCost), cfg.Seed, locker, log)
	supervisor := bootstrap.NewSupervisor(seeder, *attempts, *delay, log)
	if err := supervisor.Run(ctx); err != nil {
		return err
	}
	if !supervisor.State().Seeded() {
		return fmt.Errorf("store unreachable after %d attempts", *attempts)
	}
	fmt.Println("Seed complete")
	return nil
}

func runHashPassword(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("hash-password", pflag.ExitOnError)
	password := fs.StringP("password", "p", "", "plaintext password")
	cost := fs.Int("cost", 10, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		return fmt.Errorf("--password is required")
	}

	digest, err := auth.NewPasswordHasher(*cost).Hash(*password)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, digest)
	return nil
}

func runToken(args []string, out io.Writer) error {
	if len(args) < 1 || args[0] != "issue" {
		return fmt.Errorf("usage: portal token issue --subject <email>")
	}
	fs := pflag.NewFlagSet("token issue", pflag.ExitOnError)
	subject := fs.StringP("subject", "s", "", "token subject (user email)")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to ACCESS_TOKEN_EXPIRE_MINUTES)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	lifetime := cfg.AccessTokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecretKey, cfg.JWTAlgorithm, cfg.AppName, lifetime)
	if err != nil {
		return err
	}
	token, exp, err := tokens.Issue(*subject, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.UTC().Format(time.RFC3339))
	return nil
}

func runSecret(args []string, out io.Writer) error {
	if len(args) < 1 || args[0] != "generate" {
		return fmt.Errorf("usage: portal secret generate [--bytes n]")
	}
	fs := pflag.NewFlagSet("secret generate", pflag.ExitOnError)
	n := fs.IntP("bytes", "n", 32, "random bytes")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *n < 16 {
		return fmt.Errorf("--bytes must be at least 16")
	}

	buf := make([]byte, *n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("read random: %w", err)
	}
	fmt.Fprintln(out, hex.EncodeToString(buf))
	return nil
}

func runLogin(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("login", pflag.ExitOnError)
	email := fs.StringP("email", "e", "", "user email")
	password := fs.StringP("password", "p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("--email and --password are required")
	}

	if err := newClientFromEnv().login(ctx, *email, *password); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s\n", *email)
	return nil
}

func runQuery(ctx context.Context, command string, client *apiClient, out io.Writer) error {
	switch command {
	case "tickets":
		var tickets []service.Ticket
		if err := client.get(ctx, "/dashboard/ai-tickets", &tickets); err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSEVERITY\tSTATUS\tTITLE")
		for _, t := range tickets {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, t.Severity, t.Status, t.Title)
		}
		return w.Flush()
	case "weekly":
		var points []service.WeeklyPoint
		if err := client.get(ctx, "/charts/weekly", &points); err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tREVENUE\tCHECKS")
		for _, p := range points {
			fmt.Fprintf(w, "%s\t%.2f\t%d\n", p.Day, p.Revenue, p.Checks)
		}
		return w.Flush()
	}

	paths := map[string]string{
		"me":        "/auth/me",
		"kpis":      "/dashboard/kpis",
		"franchise": "/franchise/summary",
	}
	var raw json.RawMessage
	if err := client.get(ctx, paths[command], &raw); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(pretty))
	return err
}

func newClientFromEnv() *apiClient {
	return newAPIClient(apiURL(), tokenFile())
}

func apiURL() string {
	if u := os.Getenv("PORTAL_API"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func tokenFile() string {
	if p := os.Getenv("PORTAL_TOKEN_FILE"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "portal", "token")
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Portal CLI

Usage:
  portal <command> [options]

Admin commands (read the server environment):
  seed                 Create the schema and the demo tenant
  hash-password        Print a bcrypt digest (--password, --cost)
  token issue          Sign an access token (--subject, --ttl)
  secret generate      Print a random hex secret (--bytes)

API commands:
  login                Log in and store the token (--email, --password)
  logout               Forget the stored token
  me                   Show the current user
  kpis                 Show today's KPIs
  tickets              List AI recommendations
  weekly               Show the weekly revenue chart
  franchise            Show franchise dues

Environment Variables:
  PORTAL_API           API endpoint (default: http://localhost:8080)
  PORTAL_TOKEN_FILE    Token location (default: <user config dir>/portal/token)
`)
}
