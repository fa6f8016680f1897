package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"location_mapper/internal/discovery"
	"location_mapper/internal/synonyms"
	"location_mapper/internal/taxonomy"
	"location_mapper/platform/apperr"
)

func sampleResult(t *testing.T) *discovery.Result {
	t.Helper()
	tax := taxonomy.New()
	_, err := tax.Merge([]taxonomy.Candidate{
		{ID: "11", Name: "Lisboa", Level: taxonomy.LevelDistrict},
		{ID: "1106", Name: "Loures", Level: taxonomy.LevelCouncil, ParentIDs: []string{"11"}},
		{ID: "110612", Name: "União das Freguesias de Santo António dos Cavaleiros e Frielas", Level: taxonomy.LevelParish, ParentIDs: []string{"1106"}},
	})
	require.NoError(t, err)
	tax.Freeze()

	return &discovery.Result{
		RunID:    "run-1",
		Taxonomy: tax,
		Index:    synonyms.Build(tax, synonyms.PolicyFirstWins),
		Stats:    discovery.Stats{QueriesIssued: 3, StopReason: discovery.StopFrontierExhausted},
		FailedQueries: []discovery.FailedQuery{
			{Term: "faro", Attempts: 4, Kind: "timeout", Error: "timed out"},
		},
		Responses: []discovery.Response{{Term: "lisboa", Candidates: []taxonomy.Candidate{{ID: "11", Name: "Lisboa"}}}},
	}
}

func TestBuildNestedTree(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("WET", 0))
	a := Build(sampleResult(t), created)

	assert.Equal(t, "run-1", a.RunID)
	assert.Equal(t, created.UTC(), a.CreatedAt)

	lisboa := a.Locations["lisboa"]
	require.NotNil(t, lisboa)
	assert.Equal(t, "Lisboa", lisboa.Name)
	assert.Equal(t, []string{"lisboa"}, lisboa.Synonyms)

	parish := lisboa.Children["loures"].Children["uniao-das-freguesias-de-santo-antonio-dos-cavaleiros-e-frielas"]
	require.NotNil(t, parish)
	assert.Contains(t, parish.Synonyms, "frielas")
	assert.Contains(t, parish.Synonyms, "santo antonio dos cavaleiros")

	require.Len(t, a.Nodes, 3)
	assert.Equal(t, "lisboa", a.Nodes[0].Path)
	assert.Equal(t, "1106", a.Nodes[2].ParentID)
	assert.Equal(t, 2, a.Nodes[2].Depth)

	assert.Equal(t, "lisboa/loures/uniao-das-freguesias-de-santo-antonio-dos-cavaleiros-e-frielas", a.SynonymsIndex["frielas"])
	assert.Equal(t, "lisboa/loures", a.SynonymsIndex["lisboa loures"])
}

func TestTreeNodeJSONRoundTrip(t *testing.T) {
	a := Build(sampleResult(t), time.Now())

	b, err := json.Marshal(a.Locations)
	require.NoError(t, err)

	var generic map[string]map[string]any
	require.NoError(t, json.Unmarshal(b, &generic))
	assert.Equal(t, "Lisboa", generic["lisboa"]["_name"])
	assert.Equal(t, "district", generic["lisboa"]["_level"])
	assert.Contains(t, generic["lisboa"], "loures")

	var decoded map[string]*TreeNode
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, a.Locations["lisboa"].Children["loures"].Name, decoded["lisboa"].Children["loures"].Name)
	assert.Equal(t, taxonomy.LevelCouncil, decoded["lisboa"].Children["loures"].Level)
}

func TestPayloadCarriesDiagnostic(t *testing.T) {
	res := sampleResult(t)
	res.Diagnostic = apperr.Fatal("upstream contract changed")
	a := Build(res, time.Now())

	files, err := a.Files()
	require.NoError(t, err)

	var out Payload
	require.NoError(t, json.Unmarshal(files[FileOutput], &out))
	assert.Equal(t, "upstream contract changed", out.Diagnostic)
	assert.Len(t, out.FailedQueries, 1)
	assert.NotNil(t, out.NotAttempted)
	assert.Equal(t, discovery.StopFrontierExhausted, out.Stats.StopReason)
}

func TestFileSinkWritesAllDocuments(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	a := Build(sampleResult(t), time.Now())

	require.NoError(t, NewFileSink(dir).Write(context.Background(), a))

	for _, name := range []string{FileLocations, FileSynonyms, FileOutput, FileRaw} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	b, err := os.ReadFile(filepath.Join(dir, FileSynonyms))
	require.NoError(t, err)
	var index map[string]string
	require.NoError(t, json.Unmarshal(b, &index))
	assert.Equal(t, "lisboa", index["lisboa"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestFileSinkSkipsRawWhenNotKept(t *testing.T) {
	dir := t.TempDir()
	res := sampleResult(t)
	res.Responses = nil

	require.NoError(t, NewFileSink(dir).Write(context.Background(), Build(res, time.Now())))
	_, err := os.Stat(filepath.Join(dir, FileRaw))
	assert.True(t, os.IsNotExist(err))
}

func TestFileSinkRemovesStaleRawDump(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)
	require.NoError(t, sink.Write(context.Background(), Build(sampleResult(t), time.Now())))
	_, err := os.Stat(filepath.Join(dir, FileRaw))
	require.NoError(t, err)

	res := sampleResult(t)
	res.RunID = "run-2"
	res.Responses = nil
	require.NoError(t, sink.Write(context.Background(), Build(res, time.Now())))

	_, err = os.Stat(filepath.Join(dir, FileRaw))
	assert.True(t, os.IsNotExist(err))
}

func abortedResult(t *testing.T) *discovery.Result {
	t.Helper()
	tax := taxonomy.New()
	tax.Freeze()
	return &discovery.Result{
		RunID:      "run-2",
		Taxonomy:   tax,
		Index:      synonyms.Build(tax, synonyms.PolicyFirstWins),
		Stats:      discovery.Stats{QueriesIssued: 3, StopReason: discovery.StopFatal},
		Diagnostic: apperr.Fatal("3 consecutive malformed responses"),
	}
}

func TestFileSinkAbortedRunKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)
	require.NoError(t, sink.Write(context.Background(), Build(sampleResult(t), time.Now())))
	before, err := os.ReadFile(filepath.Join(dir, FileLocations))
	require.NoError(t, err)

	aborted := Build(abortedResult(t), time.Now())
	require.True(t, aborted.Aborted())
	require.NoError(t, sink.Write(context.Background(), aborted))

	after, err := os.ReadFile(filepath.Join(dir, FileLocations))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	b, err := os.ReadFile(filepath.Join(dir, "runs", "run-2", FileOutput))
	require.NoError(t, err)
	var out Payload
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "3 consecutive malformed responses", out.Diagnostic)

	top, err := os.ReadFile(filepath.Join(dir, FileOutput))
	require.NoError(t, err)
	assert.NotContains(t, string(top), "malformed")
}

type fakeStore struct {
	bucketExists bool
	made         []string
	objects      map[string][]byte
	failKey      string
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) { return f.bucketExists, nil }

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeStore) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if key == f.failKey {
		return minio.UploadInfo{}, errors.New("disk full")
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[key] = buf.Bytes()
	return minio.UploadInfo{Key: key}, nil
}

func TestMinIOSinkWritesRunAndLatest(t *testing.T) {
	store := &fakeStore{objects: make(map[string][]byte)}
	sink := &MinIOSink{store: store, bucket: "taxonomy"}
	a := Build(sampleResult(t), time.Now())

	require.NoError(t, sink.Write(context.Background(), a))

	assert.Equal(t, []string{"taxonomy"}, store.made)
	assert.Contains(t, store.objects, "runs/run-1/locations.json")
	assert.Contains(t, store.objects, "runs/run-1/OUTPUT.json")
	assert.Contains(t, store.objects, "latest/synonyms.json")
	assert.Equal(t, store.objects["runs/run-1/synonyms.json"], store.objects["latest/synonyms.json"])
}

func TestMinIOSinkKeepsLatestOnRunFailure(t *testing.T) {
	store := &fakeStore{bucketExists: true, objects: make(map[string][]byte), failKey: RunKey("run-1", FileOutput)}
	sink := &MinIOSink{store: store, bucket: "taxonomy"}

	err := sink.Write(context.Background(), Build(sampleResult(t), time.Now()))
	require.Error(t, err)
	assert.Empty(t, store.made)
	for key := range store.objects {
		assert.NotContains(t, key, "latest/")
	}
}

func TestMinIOSinkAbortedRunWritesOnlyDiagnostic(t *testing.T) {
	store := &fakeStore{bucketExists: true, objects: make(map[string][]byte)}
	sink := &MinIOSink{store: store, bucket: "taxonomy"}

	require.NoError(t, sink.Write(context.Background(), Build(abortedResult(t), time.Now())))

	keys := make([]string, 0, len(store.objects))
	for key := range store.objects {
		keys = append(keys, key)
	}
	assert.Equal(t, []string{"runs/run-2/OUTPUT.json"}, keys)
}

type failingSink struct{}

func (failingSink) Name() string { return "broken" }

func (failingSink) Write(context.Context, *Artifact) error { return errors.New("boom") }

func TestWriteAllContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	a := Build(sampleResult(t), time.Now())

	err := WriteAll(context.Background(), a, []Sink{failingSink{}, NewFileSink(dir)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken sink: boom")

	_, statErr := os.Stat(filepath.Join(dir, FileOutput))
	assert.NoError(t, statErr)
}

func TestRowsForPostgres(t *testing.T) {
	a := Build(sampleResult(t), time.Now())

	nodes := NodeRows(a)
	require.Len(t, nodes, 3)
	require.Len(t, nodes[0], len(nodeColumns))
	assert.Equal(t, "11", nodes[0][0])
	assert.Nil(t, nodes[0][7])
	assert.Equal(t, "district", nodes[0][5])

	aliases := AliasRows(a)
	assert.Len(t, aliases, len(a.SynonymsIndex))
	for _, row := range aliases {
		require.Len(t, row, len(aliasColumns))
		assert.Equal(t, "run-1", row[1])
	}
}

type fakeTx struct {
	pgx.Tx
	execs     []string
	copied    []string
	committed bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, strings.Join(strings.Fields(sql), " "))
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	f.copied = append(f.copied, table.Sanitize())
	return 0, nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{ tx *fakeTx }

func (f fakeDB) Begin(context.Context) (pgx.Tx, error) { return f.tx, nil }

func TestPostgresSinkReplacesSnapshot(t *testing.T) {
	tx := &fakeTx{}
	require.NoError(t, NewPostgresSink(fakeDB{tx}).Write(context.Background(), Build(sampleResult(t), time.Now())))

	assert.True(t, tx.committed)
	require.Len(t, tx.execs, 3)
	assert.Contains(t, tx.execs[0], "INSERT INTO taxonomy_runs")
	assert.Equal(t, "DELETE FROM location_aliases", tx.execs[1])
	assert.Equal(t, "DELETE FROM location_nodes", tx.execs[2])
	assert.Equal(t, []string{`"location_nodes"`, `"location_aliases"`}, tx.copied)
}

func TestPostgresSinkAbortedRunOnlyRecordsRun(t *testing.T) {
	tx := &fakeTx{}
	require.NoError(t, NewPostgresSink(fakeDB{tx}).Write(context.Background(), Build(abortedResult(t), time.Now())))

	assert.True(t, tx.committed)
	require.Len(t, tx.execs, 1)
	assert.Contains(t, tx.execs[0], "INSERT INTO taxonomy_runs")
	assert.Empty(t, tx.copied)
}
