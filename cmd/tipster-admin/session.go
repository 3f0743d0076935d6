package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tipsterhq/tipster-web/internal/bootstrap"
	"github.com/tipsterhq/tipster-web/internal/data"
	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
)

const commandTimeout = 30 * time.Second

type sessionOptions struct {
	BrowsingID string
	All        bool
	DryRun     bool
	Yes        bool
}

type commandFlags struct {
	name        string
	defaultID   string
	allowAll    bool
	destructive bool
}

func parseSessionFlags(cf commandFlags, args []string) (sessionOptions, error) {
	fs := flag.NewFlagSet(cf.name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts sessionOptions
	fs.StringVar(
		&opts.BrowsingID,
		"browsing-session",
		cf.defaultID,
		"Browsing session ID (defaults to SESSION_BROWSING_ID)",
	)
	if cf.allowAll {
		fs.BoolVar(&opts.All, "all", false, "Apply to every browsing session")
	}
	if cf.destructive {
		fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
		fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	}

	if err := fs.Parse(args); err != nil {
		return sessionOptions{}, err
	}

	opts.BrowsingID = strings.TrimSpace(opts.BrowsingID)
	if opts.All && opts.BrowsingID != "" && opts.BrowsingID != cf.defaultID {
		return sessionOptions{}, errors.New("--all cannot be combined with --browsing-session")
	}
	if !opts.All && opts.BrowsingID == "" {
		return sessionOptions{}, errors.New("--browsing-session is required (or set SESSION_BROWSING_ID)")
	}
	return opts, nil
}

func (cmdCtx *commandContext) sessionFlags(name string, allowAll, destructive bool) commandFlags {
	return commandFlags{
		name:        name,
		defaultID:   cmdCtx.Config.Session.BrowsingID,
		allowAll:    allowAll,
		destructive: destructive,
	}
}

type keyed interface {
	Key() string
}

func keyTTL(ctx context.Context, client redis.UniversalClient, store any) (time.Duration, bool) {
	k, ok := store.(keyed)
	if !ok {
		return 0, false
	}
	ttl, err := client.TTL(ctx, k.Key()).Result()
	if err != nil {
		return 0, false
	}
	return ttl, true
}

func runMarkerStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseSessionFlags(cmdCtx.sessionFlags("marker-status", false, false), args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	return withStores(cmdCtx, opts.BrowsingID, func(client redis.UniversalClient, stores bootstrap.Stores) error {
		marker, ok, getErr := stores.Markers.Get(ctx)
		if getErr != nil {
			return fmt.Errorf("read marker: %w", getErr)
		}
		report := markerReport{
			BrowsingID: opts.BrowsingID,
			Marker:     marker,
			Present:    ok,
			Now:        time.Now(),
			Window:     cmdCtx.Config.Session.SuppressionWindow,
		}
		report.TTL, report.HasTTL = keyTTL(ctx, client, stores.Markers)
		return printMarkerReport(os.Stdout, report)
	})
}

type markerReport struct {
	BrowsingID string
	Marker     domainauth.Marker
	Present    bool
	Now        time.Time
	Window     time.Duration
	TTL        time.Duration
	HasTTL     bool
}

func printMarkerReport(w io.Writer, r markerReport) error {
	if err := writef(w, "Browsing session: %s\n", r.BrowsingID); err != nil {
		return err
	}
	if !r.Present {
		return writeln(w, "Marker: none (the next auth failure will redirect to login)")
	}

	state := "expired (the next auth failure will redirect to login)"
	if r.Marker.Within(r.Now, r.Window) {
		state = "active (redirects are suppressed)"
	}
	if err := writef(w, "Marker set at: %s (%s ago)\n",
		r.Marker.SetAt.UTC().Format(time.RFC3339), r.Now.Sub(r.Marker.SetAt).Round(time.Millisecond)); err != nil {
		return err
	}
	if err := writef(w, "Suppression window: %s, %s\n", r.Window, state); err != nil {
		return err
	}
	if r.HasTTL {
		return writef(w, "Key TTL: %s\n", renderTTL(r.TTL))
	}
	return nil
}

func runClearMarker(cmdCtx *commandContext, args []string) error {
	opts, err := parseSessionFlags(cmdCtx.sessionFlags("clear-marker", false, true), args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(confirmRequest{
		Out:    os.Stdout,
		In:     os.Stdin,
		Action: "clear the redirect-suppression marker",
		Target: "browsing session " + opts.BrowsingID,
		DryRun: opts.DryRun,
		Yes:    opts.Yes,
	}); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	return withStores(cmdCtx, opts.BrowsingID, func(_ redis.UniversalClient, stores bootstrap.Stores) error {
		if opts.DryRun {
			_, ok, getErr := stores.Markers.Get(ctx)
			if getErr != nil {
				return fmt.Errorf("read marker: %w", getErr)
			}
			return writef(os.Stdout, "Dry run: marker present=%t; nothing deleted\n", ok)
		}
		if clearErr := stores.Markers.Clear(ctx); clearErr != nil {
			return fmt.Errorf("clear marker: %w", clearErr)
		}
		return writef(os.Stdout, "Cleared marker for browsing session %s\n", opts.BrowsingID)
	})
}

func runCredentialStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseSessionFlags(cmdCtx.sessionFlags("credential-status", false, false), args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	return withStores(cmdCtx, opts.BrowsingID, func(client redis.UniversalClient, stores bootstrap.Stores) error {
		report := credentialReport{BrowsingID: opts.BrowsingID, Now: time.Now()}
		cred, loadErr := stores.Credentials.Load(ctx)
		switch {
		case apperrors.IsNotFound(loadErr):
		case loadErr != nil:
			return fmt.Errorf("load credential: %w", loadErr)
		default:
			report.Credential = cred
			report.Present = true
			report.TTL, report.HasTTL = keyTTL(ctx, client, stores.Credentials)
		}
		return printCredentialReport(os.Stdout, report)
	})
}

type credentialReport struct {
	BrowsingID string
	Credential domainauth.Credential
	Present    bool
	Now        time.Time
	TTL        time.Duration
	HasTTL     bool
}

// printCredentialReport never prints token material.
func printCredentialReport(w io.Writer, r credentialReport) error {
	if err := writef(w, "Browsing session: %s\n", r.BrowsingID); err != nil {
		return err
	}
	if !r.Present {
		return writeln(w, "Credential: none (visitors start signed out)")
	}
	subject := r.Credential.Subject
	if subject == "" {
		subject = "(unknown)"
	}
	if err := writef(w, "Credential subject: %s\n", subject); err != nil {
		return err
	}
	if err := writef(w, "Issued at: %s\n", formatTime(r.Credential.IssuedAt)); err != nil {
		return err
	}
	expires := formatTime(r.Credential.ExpiresAt)
	if !r.Credential.ExpiresAt.IsZero() {
		expires += fmt.Sprintf(" (in %s)", r.Credential.ExpiresAt.Sub(r.Now).Round(time.Second))
	}
	if err := writef(w, "Expires at: %s\n", expires); err != nil {
		return err
	}
	if r.HasTTL {
		return writef(w, "Key TTL: %s\n", renderTTL(r.TTL))
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func runForgetCredential(cmdCtx *commandContext, args []string) error {
	opts, err := parseSessionFlags(cmdCtx.sessionFlags("forget-credential", false, true), args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(confirmRequest{
		Out:    os.Stdout,
		In:     os.Stdin,
		Action: "delete the stored credential",
		Target: "browsing session " + opts.BrowsingID,
		DryRun: opts.DryRun,
		Yes:    opts.Yes,
	}); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	return withStores(cmdCtx, opts.BrowsingID, func(_ redis.UniversalClient, stores bootstrap.Stores) error {
		if opts.DryRun {
			_, loadErr := stores.Credentials.Load(ctx)
			present := loadErr == nil
			if loadErr != nil && !apperrors.IsNotFound(loadErr) {
				return fmt.Errorf("load credential: %w", loadErr)
			}
			return writef(os.Stdout, "Dry run: credential present=%t; nothing deleted\n", present)
		}
		if delErr := stores.Credentials.Delete(ctx); delErr != nil {
			return fmt.Errorf("delete credential: %w", delErr)
		}
		return writef(os.Stdout, "Deleted credential for browsing session %s\n", opts.BrowsingID)
	})
}

func runPurgeCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseSessionFlags(cmdCtx.sessionFlags("purge-cache", true, true), args)
	if err != nil {
		return err
	}
	prefix := cachePrefix(cmdCtx.Config.Redis, opts.BrowsingID, opts.All)
	target := "browsing session " + opts.BrowsingID
	if opts.All {
		target = "all browsing sessions"
	}
	if confirmErr := confirmAction(confirmRequest{
		Out:    os.Stdout,
		In:     os.Stdin,
		Action: "purge cached API responses",
		Target: target,
		DryRun: opts.DryRun,
		Yes:    opts.Yes,
	}); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	client, err := connectRedis(cmdCtx)
	if err != nil {
		return err
	}
	defer closeRedis(cmdCtx.Logger, client)

	if opts.DryRun {
		n, countErr := countKeys(ctx, client, prefix)
		if countErr != nil {
			return countErr
		}
		return writef(os.Stdout, "Dry run: %d cached responses under %s*\n", n, prefix)
	}

	deleted, err := data.NewRedisCacheRepo(client).DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	if deleted == 0 {
		return writeln(os.Stdout, "No cached responses found in Redis")
	}
	return writef(os.Stdout, "Deleted %d cached responses under %s*\n", deleted, prefix)
}

func countKeys(ctx context.Context, client redis.UniversalClient, prefix string) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+"*", 500).Result()
		if err != nil {
			return total, fmt.Errorf("redis scan: %w", err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
