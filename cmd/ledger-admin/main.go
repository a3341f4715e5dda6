package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"ledger/internal/auth"
	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/sheets"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

const usage = `Usage:
  ledger-admin adduser -email EMAIL -name NAME
  ledger-admin export -owner USER_ID|EMAIL
  ledger-admin rows [-year YEAR] [-owner USER_ID|EMAIL]
  ledger-admin resetpassword -email EMAIL [-base-url URL]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentAdmin)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() { _ = be.Cleanup() }()

	var err error
	switch os.Args[1] {
	case "adduser":
		err = addUser(ctx, be.Store, os.Args[2:])
	case "export":
		sheet := must(cli.Sheet(ctx, logger, cfg))
		err = export(ctx, be.Store, worker.NewExportWorker(be.Store, sheet, logger), os.Args[2:])
	case "resetpassword":
		provider := auth.NewLocalProvider(be.Store, nil, auth.Config{}, logger)
		defer provider.Close()
		err = resetPassword(ctx, provider, "http://localhost:"+cfg.Port, os.Args[2:])
	case "rows":
		err = listRows(ctx, be.Store, must(cli.Sheet(ctx, logger, cfg)), os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		logger.Error("Command failed", log.FieldError, err, "command", os.Args[1])
		cancel()
		_ = be.Cleanup()
		os.Exit(1)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return v
}

func addUser(ctx context.Context, users storage.UserStore, args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	email := fs.String("email", "", "login email")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr := strings.ToLower(strings.TrimSpace(*email))
	if !core.ValidEmail(addr) {
		return fmt.Errorf("invalid email %q", *email)
	}
	displayName := strings.TrimSpace(*name)
	if displayName == "" {
		return errors.New("-name is required")
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	u := core.User{
		ID:           uuid.NewString(),
		Email:        addr,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return fmt.Errorf("%s is already registered", addr)
		}
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Printf("Created user %s (%s)\n", u.ID, u.Email)
	return nil
}

// resetPassword prints a one-time link the user can follow to choose a new
// password.
func resetPassword(ctx context.Context, provider *auth.LocalProvider, defaultBase string, args []string) error {
	fs := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	email := fs.String("email", "", "login email of the account")
	base := fs.String("base-url", defaultBase, "public URL of the web app")
	if err := fs.Parse(args); err != nil {
		return err
	}
	token, err := provider.IssueResetToken(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Printf("%s/reset-password?token=%s\n", strings.TrimRight(*base, "/"), url.QueryEscape(token))
	return nil
}

// readPassword reads without echo from a terminal, or one line from a pipe.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var stdin = bufio.NewReader(os.Stdin)

// resolveOwner accepts a user id or an email address.
func resolveOwner(ctx context.Context, users storage.UserStore, owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if !strings.Contains(owner, "@") {
		return owner, nil
	}
	u, err := users.GetUserByEmail(ctx, strings.ToLower(owner))
	if err != nil {
		return "", fmt.Errorf("look up %s: %w", owner, err)
	}
	return u.ID, nil
}

func listRows(ctx context.Context, users storage.UserStore, reader sheets.RowReader, args []string) error {
	fs := flag.NewFlagSet("rows", flag.ContinueOnError)
	year := fs.Int("year", time.Now().Year(), "calendar year of the export tab")
	owner := fs.String("owner", "", "only rows for this user id or email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ownerID, err := resolveOwner(ctx, users, *owner)
	if err != nil {
		return err
	}

	rows, err := reader.ListRows(ctx, *year)
	if err != nil {
		return fmt.Errorf("read %d rows: %w", *year, err)
	}
	n, err := sheets.WriteReport(os.Stdout, rows, ownerID)
	if err != nil {
		return err
	}
	fmt.Printf("%d rows in %d\n", n, *year)
	return nil
}

func export(ctx context.Context, users storage.UserStore, w *worker.ExportWorker, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	owner := fs.String("owner", "", "user id or email whose expenses are exported")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*owner) == "" {
		return errors.New("-owner is required")
	}
	ownerID, err := resolveOwner(ctx, users, *owner)
	if err != nil {
		return err
	}

	n, err := w.Snapshot(ctx, ownerID)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d expenses\n", n)
	return nil
}
