// Command maintenance runs operator tasks against the enrollment database:
// section recounts, roster snapshots and staff token issuance.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/internal/repository"
	"github.com/noah-isme/sd-enrollment-api/internal/service"
	"github.com/noah-isme/sd-enrollment-api/pkg/config"
	"github.com/noah-isme/sd-enrollment-api/pkg/database"
	"github.com/noah-isme/sd-enrollment-api/pkg/export"
	"github.com/noah-isme/sd-enrollment-api/pkg/logger"
)

const usage = `usage: maintenance <command> [flags]

commands:
  recount                       recompute every section's student count
  snapshot -name <name>         capture the current roster
  token -user <id> -role <role> issue a staff access token`

const systemActor = "system:maintenance"

var errUsage = errors.New(usage)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		logr.Fatal("maintenance failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "token":
		return issueToken(cfg, args[1:], out)
	case "recount", "snapshot":
	default:
		return errUsage
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	validate := dto.NewValidator()
	audit := repository.NewAuditRepository(db)

	if args[0] == "recount" {
		sections := service.NewSectionService(repository.NewSectionRepository(db), validate, logr, audit, nil)
		drifts, err := sections.RecountAll(ctx)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			fmt.Fprintf(out, "%s\t%s\tstored=%d\tactual=%d\n", d.SectionID, d.Name, d.Stored, d.Actual)
		}
		fmt.Fprintf(out, "%d section(s) corrected\n", len(drifts))
		return nil
	}

	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "snapshot name")
	if err := fs.Parse(args[1:]); err != nil || strings.TrimSpace(*name) == "" {
		return errUsage
	}
	snapshots := service.NewSnapshotService(repository.NewSnapshotRepository(db), export.NewRenderer(), validate, logr, audit, nil)
	group, err := snapshots.TakeSnapshot(ctx, dto.CreateSnapshotRequest{Name: *name}, systemActor)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "snapshot %s (%s) captured %d section(s), %d student(s)\n", group.Name, group.ID, group.SectionCount, group.StudentCount)
	return nil
}

func issueToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "subject user id")
	role := fs.String("role", string(models.RoleRegistrar), "ADMIN, REGISTRAR or SUPERADMIN")
	email := fs.String("email", "", "email claim")
	fullName := fs.String("name", "", "full name claim")
	if err := fs.Parse(args); err != nil || *user == "" {
		return errUsage
	}

	auth := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	signed, expires, err := auth.IssueToken(*user, models.UserRole(strings.ToUpper(*role)), *email, *fullName)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\nexpires %s\n", signed, expires.Format("2006-01-02 15:04:05 MST"))
	return nil
}
