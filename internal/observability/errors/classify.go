package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"golang.org/x/oauth2"

	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
)

// Classify returns a low-cardinality error class suitable for metric tags and log fields.
//
// Application errors report their code, context errors their cause and token endpoint
// rejections their OAuth error code. Anything else falls back to the innermost concrete
// type name in snake_case.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) && appErr.Code != "" {
		return "app_" + string(appErr.Code)
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return "context_canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "context_deadline"
	}

	var retrieveErr *oauth2.RetrieveError
	if goerrors.As(err, &retrieveErr) {
		if code := strings.TrimSpace(retrieveErr.ErrorCode); code != "" {
			return "oauth2_" + code
		}
		return "oauth2_retrieve"
	}

	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
