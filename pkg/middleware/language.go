package middleware

import (
	constants "AlertDesk/pkg/constant"
	"AlertDesk/pkg/i18n"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

// LanguageMiddleware picks the response language from ?lang, then
// Accept-Language, falling back to the bundle default.
func LanguageMiddleware(i18nSupport *i18n.I18nSupport) gin.HandlerFunc {
	tags := make([]language.Tag, 0, len(i18n.Supported))
	for _, l := range i18n.Supported {
		tags = append(tags, language.MustParse(l))
	}
	matcher := language.NewMatcher(tags)

	return func(c *gin.Context) {
		lang := c.Query("lang")
		if !i18nSupport.IsSupported(lang) {
			lang = i18nSupport.DefaultLang()
			if header := c.GetHeader("Accept-Language"); header != "" {
				if accepted, _, err := language.ParseAcceptLanguage(header); err == nil && len(accepted) > 0 {
					_, idx, conf := matcher.Match(accepted...)
					if conf != language.No {
						lang = i18n.Supported[idx]
					}
				}
			}
		}

		c.Set(constants.LangField, lang)
		c.Next()
	}
}
