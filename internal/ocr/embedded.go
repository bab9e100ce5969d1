package ocr

import (
	"bytes"
	"strings"

	rpdf "rsc.io/pdf"
)

// extractEmbeddedText pulls the text layer of each page. Returns one string
// per page (empty when the page has no text layer). The parser panics on
// some malformed files; those pages degrade to "".
func extractEmbeddedText(data []byte, pageCount int) []string {
	out := make([]string, pageCount)

	reader, err := safeNewReader(data)
	if err != nil || reader == nil {
		return out
	}

	n := reader.NumPage()
	if n > pageCount {
		n = pageCount
	}
	for pageNum := 1; pageNum <= n; pageNum++ {
		out[pageNum-1] = safePageText(reader, pageNum)
	}
	return out
}

func safeNewReader(data []byte) (r *rpdf.Reader, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r, err = nil, nil
		}
	}()
	return rpdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func safePageText(reader *rpdf.Reader, pageNum int) (text string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			text = ""
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}

	content := page.Content().Text
	if len(content) == 0 {
		return ""
	}

	var b strings.Builder
	lastY := content[0].Y
	for _, fragment := range content {
		// New line when the baseline moves.
		if fragment.Y != lastY {
			b.WriteString("\n")
			lastY = fragment.Y
		} else if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(fragment.S)
	}
	return b.String()
}
