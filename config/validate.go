package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags and cross-field rules. Call it after Sanitize.
func (c *AppConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateAuth, AuthConfig{})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// validateAuth requires the settings the selected auth mode needs.
func validateAuth(sl validator.StructLevel) {
	a, ok := sl.Current().Interface().(AuthConfig)
	if !ok {
		return
	}
	switch a.Mode {
	case AuthModeOAuth:
		if a.OAuth.DiscoveryURL == "" {
			sl.ReportError(a.OAuth.DiscoveryURL, "OAuth.DiscoveryURL", "DiscoveryURL", "required_for_oauth", "")
		}
		if a.OAuth.ClientID == "" {
			sl.ReportError(a.OAuth.ClientID, "OAuth.ClientID", "ClientID", "required_for_oauth", "")
		}
		if a.OAuth.ClientSecret == "" {
			sl.ReportError(a.OAuth.ClientSecret, "OAuth.ClientSecret", "ClientSecret", "required_for_oauth", "")
		}
	case AuthModeMock:
		if a.DevAuth.UserID == "" {
			sl.ReportError(a.DevAuth.UserID, "DevAuth.UserID", "UserID", "required_for_mock", "")
		}
	}
}

func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "AppConfig.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
