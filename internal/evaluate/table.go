package evaluate

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

const bom = "\ufeff"

// Table is a parsed result CSV.
type Table struct {
	Header  []string
	Records [][]string
}

// Column returns the index of name, or -1.
func (t *Table) Column(name string) int {
	return slices.Index(t.Header, name)
}

// Columns is the header written by WriteCSV.
func Columns() []string {
	return append([]string{"user_input", "retrieved_contexts", "response", "reference"}, Metrics...)
}

// WriteCSV writes rows as UTF-8 CSV with a byte order mark.
func WriteCSV(w io.Writer, rows []Row) error {
	t := &Table{Header: Columns()}
	for _, r := range rows {
		ctxs, err := json.Marshal(r.RetrievedContexts)
		if err != nil {
			return err
		}
		rec := []string{r.UserInput, string(ctxs), r.Response, r.Reference}
		for _, m := range Metrics {
			if v, ok := r.Scores[m]; ok {
				rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				rec = append(rec, "")
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t.Write(w)
}

func (t *Table) Write(w io.Writer) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Records); err != nil {
		return err
	}
	return cw.Error()
}

// ReadTable parses a CSV, dropping a leading byte order mark and trimming
// header names.
func ReadTable(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, []byte(bom)) {
		br.Discard(len(bom))
	}
	all, err := csv.NewReader(br).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("read csv: empty file")
	}
	header := make([]string, len(all[0]))
	for i, h := range all[0] {
		header[i] = strings.TrimSpace(h)
	}
	return &Table{Header: header, Records: all[1:]}, nil
}

// Merge concatenates tables that share the same header.
func Merge(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("nothing to merge")
	}
	out := &Table{Header: tables[0].Header}
	for i, t := range tables {
		if !slices.Equal(t.Header, out.Header) {
			return nil, fmt.Errorf("table %d: header %v does not match %v", i+1, t.Header, out.Header)
		}
		out.Records = append(out.Records, t.Records...)
	}
	return out, nil
}
