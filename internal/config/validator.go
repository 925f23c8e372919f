package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	feederrors "github.com/alexisbeaulieu97/feedupdate/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	channelNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	sshGitPattern      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+:[a-zA-Z0-9._/~-]+$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		// The process name becomes part of a socket or pipe name.
		_ = v.RegisterValidation("channel_name", func(fl validator.FieldLevel) bool {
			return channelNamePattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// Validate checks cfg against its schema and the feed location rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return feederrors.NewValidationError("config", "configuration is nil", nil)
	}
	if err := validatorInstance().Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	switch cfg.Feed.Kind {
	case FeedHTTP:
		if !isHTTPURL(cfg.Feed.Location) {
			return feederrors.NewValidationError("feed.location", "http feeds need an http(s) url", nil)
		}
	case FeedGit:
		if !isGitURL(cfg.Feed.Location) {
			return feederrors.NewValidationError("feed.location", fmt.Sprintf("%q is not a git url or path", cfg.Feed.Location), nil)
		}
	}
	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return feederrors.NewValidationError(field, msg, err)
	}

	return feederrors.NewValidationError("config", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func isGitURL(raw string) bool {
	if strings.TrimSpace(raw) == "" || strings.Contains(raw, "\x00") {
		return false
	}
	if isHTTPURL(raw) || sshGitPattern.MatchString(raw) {
		return true
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme == "file" {
		return true
	}
	return strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../")
}
