package woocommerce

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
)

const (
	placeholderURL    = "https://your-store-url.com"
	placeholderKey    = "your_consumer_key"
	placeholderSecret = "your_consumer_secret"
	defaultVersion    = "v3"

	restPrefix = "/wp-json/wc"
)

// Config identifies a store and the REST credentials used against it.
type Config struct {
	BaseURL        string `validate:"required,http_url"`
	ConsumerKey    string `validate:"required"`
	ConsumerSecret string `validate:"required"`
	APIVersion     string `validate:"required,startswith=v"`
}

// DefaultConfig returns placeholder values meant for local demos only.
func DefaultConfig() Config {
	return Config{
		BaseURL:        placeholderURL,
		ConsumerKey:    placeholderKey,
		ConsumerSecret: placeholderSecret,
		APIVersion:     defaultVersion,
	}
}

// MergeConfig layers the non-empty fields of overrides on top of DefaultConfig.
func MergeConfig(overrides Config) Config {
	cfg := DefaultConfig()
	if v := strings.TrimSpace(overrides.BaseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(overrides.ConsumerKey); v != "" {
		cfg.ConsumerKey = v
	}
	if v := strings.TrimSpace(overrides.ConsumerSecret); v != "" {
		cfg.ConsumerSecret = v
	}
	if v := strings.TrimSpace(overrides.APIVersion); v != "" {
		cfg.APIVersion = v
	}
	return cfg
}

// RootURL is the request root every resource path is appended to.
func (c Config) RootURL() string {
	return fmt.Sprintf("%s%s/%s", strings.TrimRight(c.BaseURL, "/"), restPrefix, c.APIVersion)
}

// IsPlaceholder reports whether the config still points at the demo store.
func (c Config) IsPlaceholder() bool {
	return c.BaseURL == placeholderURL || c.ConsumerKey == placeholderKey || c.ConsumerSecret == placeholderSecret
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	out := c
	out.ConsumerKey = mask(c.ConsumerKey)
	out.ConsumerSecret = mask(c.ConsumerSecret)
	return out
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return redactedValue
}

var validate = validator.New()

func (c Config) validate() error {
	if err := validate.Struct(c); err != nil {
		fields := []string{}
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				fields = append(fields, fe.Field())
			}
		}
		// only field names leave this function; values may be credentials
		return pkgerrors.New(pkgerrors.CodeConfiguration, "invalid store client configuration").
			WithDetails(map[string]any{"fields": fields})
	}
	return nil
}
