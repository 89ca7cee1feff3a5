// Package localization provides functionality for internationalization (i18n).
// It loads translation strings from JSON files and provides a simple way to get
// localized strings for different languages.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
)

// Keys of the notices sent to clients.
const (
	KeyAuthFailed        = "auth_failed"
	KeyTokenExpired      = "token_expired"
	KeyAccountBlocked    = "account_blocked"
	KeyAccountRemoved    = "account_removed"
	KeyEmptyMessage      = "empty_message"
	KeyMessageTooLong    = "message_too_long"
	KeyInvalidPayload    = "invalid_payload"
	KeyInvalidName       = "invalid_display_name"
	KeyNotJoined         = "not_joined"
	KeyAlreadyJoined     = "already_joined"
	KeyRateLimited       = "rate_limited"
	KeyUnknownEvent      = "unknown_event"
	KeyDeliveryFailed    = "delivery_failed"
	KeyHistoryFailed     = "history_failed"
	KeyQueryFailed       = "query_failed"
	KeyUserExists        = "user_exists"
	KeyInvalidLogin      = "invalid_login"
	KeyServerError       = "server_error"
	KeyRegistered        = "registered"
	KeyAccountBanned     = "account_banned"
	KeyInternalViolation = "internal_violation"
	KeyRoleChanged       = "role_changed"
)

//go:embed locales/*.json
var embedded embed.FS

// Localizer manages the translations for the application.
// It holds a map of languages, each with its own map of translation keys and values.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer creates and returns a new Localizer instance.
// It loads all translations from the provided directory path.
// The directory should contain JSON files named with the language code (e.g., "en.json").
func NewLocalizer(dir string) (*Localizer, error) {
	return NewLocalizerFS(os.DirFS(dir), ".")
}

// NewDefaultLocalizer loads the translations compiled into the binary.
func NewDefaultLocalizer() (*Localizer, error) {
	return NewLocalizerFS(embedded, "locales")
}

// NewLocalizerFS loads every <lang>.json file found in dir of fsys.
func NewLocalizerFS(fsys fs.FS, dir string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")

		data, err := fs.ReadFile(fsys, path.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[lang] = translations
	}

	return l, nil
}

// GetString returns the localized string for a given key and language.
// If the language or the key is not found, it returns the key itself as a fallback.
// A nil Localizer always returns the key.
func (l *Localizer) GetString(lang, key string) string {
	if l == nil {
		return key
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	// Fallback to a default language if the key is not found in the specified language
	if lang != "en" {
		if enTranslations, ok := l.translations["en"]; ok {
			if value, ok := enTranslations[key]; ok {
				return value
			}
		}
	}

	return key
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	langs := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		langs = append(langs, lang)
	}
	return langs
}
