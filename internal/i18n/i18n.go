// Package i18n localizes the labels printed on rendered exam documents.
// Locale files are embedded so deployments need nothing on disk.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type localizerKey struct{}

var (
	bundle      *i18n.Bundle
	defaultLang string
)

// Init parses the embedded locale files into a bundle rooted at lang. That
// language also becomes the fallback for requests carrying no usable
// preference of their own.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	paths, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return fmt.Errorf("enumerate locales: %w", err)
	}
	for _, path := range paths {
		if _, err := b.LoadMessageFileFS(localeFS, path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	bundle = b
	defaultLang = lang
	slog.Debug("locale bundle ready", "default", lang, "files", len(paths))
	return nil
}

// NewLocalizer resolves translations against the given language preferences,
// most preferred first. Accept-Language header values work as-is; the Init
// language is always appended as the final fallback.
func NewLocalizer(prefs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(bundle, append(prefs, defaultLang)...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, localizerKey{}, loc)
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(localizerKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return NewLocalizer()
}

// T translates a message by ID. A missing translation echoes the ID back so
// a document renders with placeholder labels rather than gaps.
func T(ctx context.Context, msgID string) string {
	s, err := localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{MessageID: msgID})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	s, err := localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}

// Tp translates a pluralized message by ID; count selects the plural form
// and is available to the template as {{.Count}}.
func Tp(ctx context.Context, msgID string, count int) string {
	s, err := localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}
