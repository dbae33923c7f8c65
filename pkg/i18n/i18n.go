package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// DefaultLocale is the fallback when negotiation finds no match.
const DefaultLocale = "en"

// Bundle holds the loaded message catalogs and the language matcher.
type Bundle struct {
	messages map[string]map[string]string
	matcher  language.Matcher
	tags     []language.Tag
}

// Load parses the embedded locale catalogs.
func Load() (*Bundle, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("reading locales: %w", err)
	}

	messages := make(map[string]map[string]string, len(entries))
	tags := make([]language.Tag, 0, len(entries))

	// Default locale first so the matcher falls back to it.
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".json")
		if name == DefaultLocale {
			names = append([]string{name}, names...)
		} else {
			names = append(names, name)
		}
	}

	for _, name := range names {
		raw, err := localeFS.ReadFile("locales/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("reading locale %s: %w", name, err)
		}
		catalog := map[string]string{}
		if err := json.Unmarshal(raw, &catalog); err != nil {
			return nil, fmt.Errorf("parsing locale %s: %w", name, err)
		}
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %s: %w", name, err)
		}
		messages[name] = catalog
		tags = append(tags, tag)
	}

	if _, ok := messages[DefaultLocale]; !ok {
		return nil, fmt.Errorf("default locale %q missing", DefaultLocale)
	}

	return &Bundle{
		messages: messages,
		matcher:  language.NewMatcher(tags),
		tags:     tags,
	}, nil
}

// Locales returns the loaded locale identifiers.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.tags))
	for _, tag := range b.tags {
		out = append(out, tag.String())
	}
	return out
}

// Negotiate picks the best supported locale for an Accept-Language header.
func (b *Bundle) Negotiate(acceptLanguage string) string {
	if b == nil || b.matcher == nil {
		return DefaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, index, _ := b.matcher.Match(tags...)
	if index < 0 || index >= len(b.tags) {
		return DefaultLocale
	}
	base, _ := b.tags[index].Base()
	return base.String()
}

// T resolves a message key for the locale, falling back to the default catalog.
func (b *Bundle) T(locale, key string) string {
	if b == nil {
		return key
	}
	if catalog, ok := b.messages[locale]; ok {
		if msg, ok := catalog[key]; ok {
			return msg
		}
	}
	if msg, ok := b.messages[DefaultLocale][key]; ok {
		return msg
	}
	return key
}

// Catalog returns the full message map for the locale, falling back to default.
func (b *Bundle) Catalog(locale string) map[string]string {
	if b == nil {
		return nil
	}
	if catalog, ok := b.messages[locale]; ok {
		return catalog
	}
	return b.messages[DefaultLocale]
}
