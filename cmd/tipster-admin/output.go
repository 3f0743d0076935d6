package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var errAborted = errors.New("aborted by user")

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}

type confirmRequest struct {
	Out    io.Writer
	In     io.Reader
	Action string
	Target string
	DryRun bool
	Yes    bool
}

// confirmAction asks for a y/N answer unless the run is a dry run or --yes was given.
func confirmAction(req confirmRequest) error {
	if req.DryRun || req.Yes {
		return nil
	}

	if err := writef(req.Out, "About to %s for %s.\n", req.Action, req.Target); err != nil {
		return fmt.Errorf("print confirmation message: %w", err)
	}
	if err := write(req.Out, "Continue? [y/N]: "); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(req.In).ReadString('\n')
	if err != nil && resp == "" {
		if writeErr := writef(req.Out, "\nFailed to read confirmation input: %v\n", err); writeErr != nil {
			return fmt.Errorf("%w: report write failed: %w", errAborted, writeErr)
		}
		return errAborted
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errAborted
}

// renderTTL formats a Redis TTL reply, which uses negative sentinels for special cases.
func renderTTL(d time.Duration) string {
	switch {
	case d == -1*time.Second || d == -1:
		return "no expiry"
	case d == -2*time.Second || d == -2:
		return "key missing"
	default:
		return d.Round(time.Second).String()
	}
}
