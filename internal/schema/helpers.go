// file: internal/schema/helpers.go
package schema

import (
	"bytes"
)

// calculatePreview returns a log-safe prefix of data.
func calculatePreview(data []byte) string {
	const maxPreviewLen = 100
	suffix := ""
	if len(data) > maxPreviewLen {
		data = data[:maxPreviewLen]
		suffix = "..."
	}
	return string(bytes.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return '.'
		}
		return r
	}, data)) + suffix
}
