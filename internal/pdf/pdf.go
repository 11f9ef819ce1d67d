package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"rsc.io/pdf"
)

// ExtractText извлекает текст из PDF постранично
func ExtractText(path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, t := range p.Content().Text {
			sb.WriteString(t.S)
		}
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// LoadText reads a .txt or .pdf source document.
func LoadText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		txt, err := ExtractText(path)
		if err != nil {
			return "", err
		}
		return Sanitize(txt), nil
	case ".txt", ".md", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return Sanitize(string(data)), nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", path)
	}
}

// Sanitize drops NUL bytes and normalises line endings and tabs. Paragraph
// breaks survive because the splitter uses them as separators.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.TrimSpace(s)
}

// SplitText splits text on sep and greedily merges the pieces into chunks of at
// most size runes. Consecutive chunks share up to overlap runes of whole
// pieces. A piece longer than size is cut into fixed rune windows.
func SplitText(text string, size, overlap int, sep string) []string {
	if size <= 0 {
		size = 1500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var pieces []string
	for _, p := range splitOn(text, sep) {
		if runeLen(p) > size {
			pieces = append(pieces, windows(p, size, overlap)...)
			continue
		}
		pieces = append(pieces, p)
	}

	sepLen := runeLen(sep)
	var out []string
	var current []string
	total := 0
	for _, p := range pieces {
		l := runeLen(p)
		if total+l+joinCost(current, sepLen) > size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				out = append(out, doc)
			}
			for total > overlap || (total+l+joinCost(current, sepLen) > size && total > 0) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, p)
		total += l
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func joinCost(current []string, sepLen int) int {
	if len(current) == 0 {
		return 0
	}
	return sepLen
}

func splitOn(text, sep string) []string {
	var parts []string
	if sep == "" {
		parts = []string{text}
	} else {
		parts = strings.Split(text, sep)
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func windows(s string, size, overlap int) []string {
	rs := []rune(s)
	step := max(1, size-overlap)
	var out []string
	for i := 0; i < len(rs); i += step {
		end := min(i+size, len(rs))
		out = append(out, string(rs[i:end]))
		if end == len(rs) {
			break
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
