package audit

import "strings"

// maxFieldLen — предел длины свободного текста в одном поле записи.
const maxFieldLen = 500

var fieldCleaner = strings.NewReplacer(
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
	"|", "/", // разделитель записей не должен встречаться внутри значения
)

// Sanitize приводит свободный текст к безопасному для стока виду:
// разделитель заменяется, переводы строк схлопываются в пробелы,
// длинный текст обрезается до 500 символов с многоточием.
func Sanitize(s string) string {
	s = fieldCleaner.Replace(s)
	if len(s) > maxFieldLen {
		s = s[:maxFieldLen-3] + "..."
	}
	return s
}
