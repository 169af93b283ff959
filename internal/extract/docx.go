package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	// defaultDocumentPath is where the main body lives in almost every .docx.
	defaultDocumentPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	mainContentType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// textRun matches a single <w:t>...</w:t> text run, with or without
// attributes (e.g. xml:space="preserve").
var textRun = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// The Override element in [Content_Types].xml can list its attributes in
// either order, so both forms are tried.
var (
	overridePartFirst = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(mainContentType) + `"`)
	overrideTypeFirst = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(mainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// extractDOCX extracts text from .docx bytes. A docx is a zip whose main
// document part is OOXML; text content lives in <w:t> runs, which are
// collected regardless of surrounding paragraph or run attributes.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("read docx: not a zip: %w", err)
	}

	docPath := mainDocumentPath(zr)
	docXML, err := readZipFile(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}

	runs := textRun.FindAllSubmatch(docXML, -1)
	var sb strings.Builder
	for _, run := range runs {
		text := strings.TrimSpace(string(run[1]))
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// mainDocumentPath resolves the main document part via [Content_Types].xml,
// falling back to the conventional word/document.xml when the manifest is
// missing or does not declare one.
func mainDocumentPath(zr *zip.Reader) string {
	manifest, err := readZipFile(zr, contentTypesPath)
	if err != nil {
		return defaultDocumentPath
	}
	for _, re := range []*regexp.Regexp{overridePartFirst, overrideTypeFirst} {
		if m := re.FindSubmatch(manifest); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return defaultDocumentPath
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}
