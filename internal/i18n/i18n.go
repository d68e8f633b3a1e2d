// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package i18n localizes user-facing text such as verification emails.
package i18n

import (
	"context"
	"embed"
	"io/fs"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

var (
	mu      sync.RWMutex
	bundle  *i18n.Bundle
	matcher language.Matcher
)

type localeContextKey struct{}
type localizerContextKey struct{}

// Init loads all embedded translation files. English is the fallback.
func Init() error {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(translationFS, "translations/*.toml")
	if err != nil {
		return err
	}
	for _, file := range files {
		if _, err := b.LoadMessageFileFS(translationFS, file); err != nil {
			return err
		}
	}

	mu.Lock()
	bundle = b
	matcher = newMatcher(b.LanguageTags())
	mu.Unlock()
	return nil
}

// newMatcher puts English first so unmatched requests fall back to it.
func newMatcher(tags []language.Tag) language.Matcher {
	supported := []language.Tag{language.English}
	for _, tag := range tags {
		if tag != language.English {
			supported = append(supported, tag)
		}
	}
	return language.NewMatcher(supported)
}

func current() (*i18n.Bundle, language.Matcher) {
	mu.RLock()
	b, m := bundle, matcher
	mu.RUnlock()
	if b != nil {
		return b, m
	}
	if err := Init(); err != nil {
		// Embedded files are validated by tests; an empty bundle still falls back to message IDs.
		b = i18n.NewBundle(language.English)
		return b, newMatcher(nil)
	}
	return current()
}

// WithLocale adds the locale to the context.
func WithLocale(ctx context.Context, lang language.Tag) context.Context {
	b, _ := current()
	base, _ := lang.Base()
	locale := base.String()
	ctx = context.WithValue(ctx, localeContextKey{}, locale)
	return context.WithValue(ctx, localizerContextKey{}, i18n.NewLocalizer(b, locale))
}

// GetLocale returns the current locale from context.
func GetLocale(ctx context.Context) string {
	if locale, ok := ctx.Value(localeContextKey{}).(string); ok {
		return locale
	}
	return "en"
}

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	return TData(ctx, messageID, nil)
}

// TData translates a message with template data.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	msg, err := getLocalizer(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// MatchLanguage matches the best supported language from an Accept-Language header.
func MatchLanguage(acceptLanguage string) language.Tag {
	_, m := current()
	tag, _ := language.MatchStrings(m, acceptLanguage)
	return tag
}

func getLocalizer(ctx context.Context) *i18n.Localizer {
	if localizer, ok := ctx.Value(localizerContextKey{}).(*i18n.Localizer); ok {
		return localizer
	}
	b, _ := current()
	return i18n.NewLocalizer(b, "en")
}
