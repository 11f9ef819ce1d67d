package pdf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	in := "苯\x00的危害\r\n\r\n\t第二段 "
	assert.Equal(t, "苯的危害\n\n 第二段", Sanitize(in))
}

func TestSplitText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		sep     string
		want    []string
	}{
		{
			name: "pieces fit together",
			text: "aaaa\n\nbbbb",
			size: 20, sep: "\n\n",
			want: []string{"aaaa\n\nbbbb"},
		},
		{
			name: "no overlap when pieces too large",
			text: "a\n\nb\n\nc",
			size: 3, overlap: 1, sep: "\n\n",
			want: []string{"a", "b", "c"},
		},
		{
			name: "overlap keeps trailing piece",
			text: "aaaa\nbbbb\ncccc",
			size: 10, overlap: 4, sep: "\n",
			want: []string{"aaaa\nbbbb", "bbbb\ncccc"},
		},
		{
			name: "oversize piece is windowed",
			text: "abcdefghij",
			size: 4, overlap: 1, sep: "\n\n",
			want: []string{"abcd", "defg", "ghij"},
		},
		{
			name: "blank pieces are dropped",
			text: "\n\n  \n\n苯\n\n",
			size: 10, sep: "\n\n",
			want: []string{"苯"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitText(tt.text, tt.size, tt.overlap, tt.sep))
		})
	}
}

func TestSplitText_RespectsRuneBudget(t *testing.T) {
	para := strings.Repeat("苯是一種芳香烴。", 20)
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	chunks := SplitText(text, 200, 20, "\n\n")
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 200)
	}
}

func TestLoadText(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "benzene.txt")
	require.NoError(t, os.WriteFile(txt, []byte("苯的替代物\r\n包括二甲苯"), 0o644))

	got, err := LoadText(txt)
	require.NoError(t, err)
	assert.Equal(t, "苯的替代物\n包括二甲苯", got)

	_, err = LoadText(filepath.Join(dir, "table.xlsx"))
	assert.Error(t, err)
}

func TestExtractText_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := ExtractText(path)
	assert.Error(t, err)
}
