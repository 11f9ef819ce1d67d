package retriever

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	id    string
	texts []string
	delay time.Duration
	err   error
}

func (s stubStore) ID() string { return s.id }

func (s stubStore) Search(ctx context.Context, _ string, k int) ([]model.DocumentChunk, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	var out []model.DocumentChunk
	for i, t := range s.texts {
		if i == k {
			break
		}
		out = append(out, model.DocumentChunk{Text: t, SourceCollectionID: s.id})
	}
	return out, nil
}

func TestRetrieve_StoreThenRankOrder(t *testing.T) {
	a := stubStore{id: "a", texts: []string{"a1", "a2"}, delay: 30 * time.Millisecond}
	b := stubStore{id: "b", texts: []string{"b1", "b2", "b3"}}

	chunks, err := New(10, nil, nil).Retrieve(context.Background(), "q", []Handle{a, b})
	require.NoError(t, err)
	require.Len(t, chunks, 5)

	var got []string
	for _, c := range chunks {
		got = append(got, c.Text)
	}
	assert.Equal(t, []string{"a1", "a2", "b1", "b2", "b3"}, got)
	assert.Equal(t, "a", chunks[0].SourceCollectionID)
	assert.Equal(t, "b", chunks[4].SourceCollectionID)
}

func TestRetrieve_KeepsDuplicates(t *testing.T) {
	a := stubStore{id: "a", texts: []string{"苯的替代物包括二甲苯"}}
	b := stubStore{id: "b", texts: []string{"苯的替代物包括二甲苯"}}

	chunks, err := New(10, nil, nil).Retrieve(context.Background(), "q", []Handle{a, b})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestRetrieve_PassesK(t *testing.T) {
	a := stubStore{id: "a", texts: []string{"1", "2", "3", "4"}}
	chunks, err := New(2, nil, nil).Retrieve(context.Background(), "q", []Handle{a})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestRetrieve_AnyFailureFailsAll(t *testing.T) {
	boom := errors.New("store unreachable")
	a := stubStore{id: "a", texts: []string{"a1"}}
	b := stubStore{id: "b", err: boom}

	sinkPath := filepath.Join(t.TempDir(), "ctx.json")
	chunks, err := New(10, NewContextSink(sinkPath), nil).Retrieve(context.Background(), "q", []Handle{a, b})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, chunks)
	assert.NoFileExists(t, sinkPath)
}

func TestRetrieve_NoStores(t *testing.T) {
	_, err := New(10, nil, nil).Retrieve(context.Background(), "q", nil)
	assert.Error(t, err)
}

func TestContextSink_KeysInEmissionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrieved_contexts.json")
	sink := NewContextSink(path)

	var texts []string
	for i := 1; i <= 12; i++ {
		texts = append(texts, fmt.Sprintf("chunk %d <b>", i))
	}
	a := stubStore{id: "a", texts: texts}
	_, err := New(20, sink, nil).Retrieve(context.Background(), "q", []Handle{a})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var obj map[string]string
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Len(t, obj, 12)
	assert.Equal(t, "chunk 1 <b>", obj["context_1"])
	assert.Equal(t, "chunk 12 <b>", obj["context_12"])

	s := string(raw)
	assert.Less(t, strings.Index(s, `"context_2"`), strings.Index(s, `"context_10"`))
	assert.Contains(t, s, "<b>")
}

func TestContextSink_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrieved_contexts.json")
	sink := NewContextSink(path)

	require.NoError(t, sink.Write([]model.DocumentChunk{{Text: "x"}, {Text: "y"}}))
	require.NoError(t, sink.Write([]model.DocumentChunk{{Text: "z"}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var obj map[string]string
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Equal(t, map[string]string{"context_1": "z"}, obj)
}

func TestContextSink_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.json")
	require.NoError(t, NewContextSink(path).Write(nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(raw))
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(stubStore{id: "a"}, stubStore{id: "b"})
	require.NoError(t, err)

	hs, err := r.Select([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, "b", hs[0].ID())
	assert.Equal(t, "a", hs[1].ID())

	_, err = r.Select([]string{"c"})
	assert.Error(t, err)

	_, err = NewRegistry(stubStore{id: "a"}, stubStore{id: "a"})
	assert.Error(t, err)
}
