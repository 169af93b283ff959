package extract

import "strings"

// extractPlain decodes raw bytes as UTF-8 text. Invalid sequences are
// replaced with U+FFFD so one bad byte cannot poison indexing or embedding
// downstream.
func extractPlain(content []byte) (string, error) {
	return strings.ToValidUTF8(string(content), "�"), nil
}
