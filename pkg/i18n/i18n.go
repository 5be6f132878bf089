package i18n

import (
	"embed"
	"encoding/json"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Supported language tags, in the order bundles are loaded.
var Supported = []string{"es", "en"}

// I18nSupport 国际化支持结构体
type I18nSupport struct {
	bundle      *i18n.Bundle
	defaultLang string
}

// NewI18nSupport 初始化国际化支持
func NewI18nSupport(defaultLang string) (*I18nSupport, error) {
	if defaultLang == "" {
		defaultLang = Supported[0]
	}
	bundle := i18n.NewBundle(language.MustParse(defaultLang))
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, lang := range Supported {
		name := path.Join("locales", lang+".json")
		data, err := localeFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(data, name); err != nil {
			return nil, err
		}
	}

	return &I18nSupport{bundle: bundle, defaultLang: defaultLang}, nil
}

// DefaultLang returns the bundle fallback language.
func (i *I18nSupport) DefaultLang() string { return i.defaultLang }

// IsSupported reports whether lang has a message file.
func (i *I18nSupport) IsSupported(lang string) bool {
	for _, l := range Supported {
		if l == lang {
			return true
		}
	}
	return false
}

// Lookup 获取翻译文本，找不到时 ok 为 false
func (i *I18nSupport) Lookup(languageTag, key string, templateData map[string]interface{}) (string, bool) {
	localizer := i18n.NewLocalizer(i.bundle, languageTag, i.defaultLang)
	translation, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		return "", false
	}
	return translation, true
}

// T 获取翻译文本，找不到时返回键名
func (i *I18nSupport) T(languageTag, key string, templateData map[string]interface{}) string {
	if s, ok := i.Lookup(languageTag, key, templateData); ok {
		return s
	}
	return key
}
