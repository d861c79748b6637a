package processor

import (
	"bytes"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/ingestion"
)

// ExtractText normalises a document's bytes for chunking. Plain-text formats
// pass through, HTML is stripped to its text content, and the binary formats
// (pdf, docx) are chunked as-is since their text lives behind opaque
// container encodings.
func ExtractText(format ingestion.FileFormat, content []byte) []byte {
	switch format {
	case ingestion.FormatHTML:
		return stripHTML(content)
	case ingestion.FormatTXT, ingestion.FormatCSV:
		return bytes.TrimSpace(content)
	default:
		return content
	}
}

// stripHTML removes tags, collapsing runs of whitespace left behind so chunk
// boundaries land on real text. Script and style bodies are dropped entirely.
func stripHTML(content []byte) []byte {
	var (
		out      bytes.Buffer
		inTag    bool
		skipBody []byte // closing tag we are discarding until, e.g. "</script"
		lastWS   bool
	)

	lower := bytes.ToLower(content)
	for i := 0; i < len(content); i++ {
		if skipBody != nil {
			if bytes.HasPrefix(lower[i:], skipBody) {
				i += len(skipBody) - 1
				skipBody = nil
				inTag = true
			}
			continue
		}
		c := content[i]
		switch {
		case c == '<':
			inTag = true
			if bytes.HasPrefix(lower[i:], []byte("<script")) {
				skipBody = []byte("</script")
				inTag = false
			} else if bytes.HasPrefix(lower[i:], []byte("<style")) {
				skipBody = []byte("</style")
				inTag = false
			}
		case c == '>':
			if inTag {
				inTag = false
				lastWS = writeSpace(&out, lastWS)
			}
		case inTag:
			// discard attribute text
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			lastWS = writeSpace(&out, lastWS)
		default:
			out.WriteByte(c)
			lastWS = false
		}
	}
	return bytes.TrimSpace(out.Bytes())
}

func writeSpace(out *bytes.Buffer, lastWS bool) bool {
	if !lastWS && out.Len() > 0 {
		out.WriteByte(' ')
	}
	return true
}

// Chunk splits content into fixed-size pieces. The final chunk holds the
// remainder; empty content yields no chunks.
func Chunk(content []byte, size int) [][]byte {
	if len(content) == 0 {
		return nil
	}
	if size <= 0 {
		size = 4096
	}
	chunks := make([][]byte, 0, (len(content)+size-1)/size)
	for start := 0; start < len(content); start += size {
		end := start + size
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, content[start:end])
	}
	return chunks
}
