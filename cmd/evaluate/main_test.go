package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/katakuxiko/sasgpt/internal/evaluate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeResult(t *testing.T, path string, rows ...evaluate.Row) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, evaluate.WriteCSV(&buf, rows))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestMergeAndBins(t *testing.T) {
	dir := t.TempDir()
	r1 := filepath.Join(dir, "result1.csv")
	r2 := filepath.Join(dir, "result2.csv")
	writeResult(t, r1, evaluate.Row{Sample: evaluate.Sample{UserInput: "苯的危害"}, Scores: map[string]float64{evaluate.ContextRecall: 1, evaluate.Faithfulness: 0.9}})
	writeResult(t, r2, evaluate.Row{Sample: evaluate.Sample{UserInput: "苯的替代物"}, Scores: map[string]float64{evaluate.ContextRecall: 0, evaluate.Faithfulness: 0.1}})

	merged := filepath.Join(dir, "result.csv")
	out, err := execute(t, "merge", "-o", merged, r1, r2)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Merged 2 files into")

	f, err := os.Open(merged)
	require.NoError(t, err)
	defer f.Close()
	tbl, err := evaluate.ReadTable(f)
	require.NoError(t, err)
	assert.Len(t, tbl.Records, 2)

	out, err = execute(t, "bins", merged)
	require.NoError(t, err)
	assert.Contains(t, out, "Distribution of Context Recall")
	assert.Contains(t, out, "Distribution of Faithfulness")
}

func TestMerge_HeaderMismatch(t *testing.T) {
	dir := t.TempDir()
	r1 := filepath.Join(dir, "a.csv")
	writeResult(t, r1)
	r2 := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(r2, []byte("user_input,score\nq,1\n"), 0o644))

	_, err := execute(t, "merge", "-o", filepath.Join(dir, "out.csv"), r1, r2)
	assert.Error(t, err)
}

func TestRun_Dataset(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"0.9"}}]}`)
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []map[string]any{
			{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("llm:\n  base_url: "+srv.URL+"/v1\nlog:\n  level: error\n"), 0o644))
	dataset := filepath.Join(dir, "b_part4.json")
	require.NoError(t, os.WriteFile(dataset, []byte(`[{"user_input":"苯的替代物","retrieved_contexts":["二甲苯"],"response":"二甲苯","reference":"二甲苯"}]`), 0o644))
	output := filepath.Join(dir, "result4.csv")

	out, err := execute(t, "run", "-c", cfgPath, "--dataset", dataset, "-o", output, "--rps", "0")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Scored 1/1 samples")

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	tbl, err := evaluate.ReadTable(f)
	require.NoError(t, err)
	require.Len(t, tbl.Records, 1)
	rec := tbl.Records[0]
	assert.Equal(t, "0.9", rec[tbl.Column(evaluate.ContextRecall)])
	assert.Equal(t, "0.9", rec[tbl.Column(evaluate.Faithfulness)])
	assert.Equal(t, "1", rec[tbl.Column(evaluate.SemanticSimilarity)])
}

func TestRun_RequiresInput(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o644))
	_, err := execute(t, "run", "-c", cfgPath, "-o", filepath.Join(dir, "r.csv"))
	assert.ErrorContains(t, err, "--dataset or --from-log")
}
