package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "mass_mailer"))
	require.NoError(t, err)
	return store
}

func TestGenerate_EmptyInputProducesNothing(t *testing.T) {
	store := newLocal(t)
	art, err := NewGenerator(store).Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, art)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerate_WritesHeaderAndRowsInOrder(t *testing.T) {
	store := newLocal(t)
	gen := NewGenerator(store)
	gen.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	gen.token = func() string { return "abc123" }

	art, err := gen.Generate(context.Background(), []string{"b@x.com", "a@x.com"})
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "failed_emails_2026-03-04_05-06-07_abc123.csv", art.Name)
	assert.Equal(t, 2, art.Rows)

	raw, err := os.ReadFile(filepath.Join(store.Dir(), art.Name))
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{Header}, {"b@x.com"}, {"a@x.com"}}, rows)

	info, err := os.Stat(filepath.Join(store.Dir(), art.Name))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(store.Dir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestGenerate_RecreatesRemovedDirectory(t *testing.T) {
	store := newLocal(t)
	require.NoError(t, os.RemoveAll(store.Dir()))

	art, err := NewGenerator(store).Generate(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)
	require.NotNil(t, art)

	info, err := os.Stat(store.Dir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	assert.FileExists(t, filepath.Join(store.Dir(), art.Name))
}

func TestGenerate_UniqueNames(t *testing.T) {
	gen := NewGenerator(newLocal(t))
	a, err := gen.Generate(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)
	b, err := gen.Generate(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Name, b.Name)
	assert.Regexp(t, namePattern, a.Name)
}

func TestGateway_RoundTrip(t *testing.T) {
	store := newLocal(t)
	art, err := NewGenerator(store).Generate(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)

	dl, err := NewGateway(store).Resolve(context.Background(), art.Name)
	require.NoError(t, err)
	defer dl.Body.Close()

	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "Failed Email Address\na@x.com\n", string(body))
	assert.Equal(t, art.Name, dl.Filename)
	assert.Equal(t, art.Size, dl.Size)
}

func TestGateway_StripsDirectories(t *testing.T) {
	store := newLocal(t)
	art, err := NewGenerator(store).Generate(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)

	dl, err := NewGateway(store).Resolve(context.Background(), "../../tmp/"+art.Name)
	require.NoError(t, err)
	dl.Body.Close()
}

func TestGateway_RejectsEverythingElse(t *testing.T) {
	store := newLocal(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.csv"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "failed_emails_x.csv.php"), []byte("x"), 0o600))
	gw := NewGateway(store)

	for _, name := range []string{
		"../../etc/passwd",
		"failed_emails_x.csv.php",
		"notes.csv",
		"failed_emails_missing.csv",
		`..\..\failed_emails_missing.csv`,
		"",
		"/",
	} {
		_, err := gw.Resolve(context.Background(), name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestGateway_DirectoryWithReportNameIsNotFound(t *testing.T) {
	store := newLocal(t)
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "failed_emails_dir.csv"), 0o700))

	_, err := NewGateway(store).Resolve(context.Background(), "failed_emails_dir.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "failed_emails_2026-01-01_00-00-00_ab.csv", SafeFilename("failed_emails_2026-01-01_00-00-00_ab.csv"))
	assert.Equal(t, "failed_emails_a_b_.csv", SafeFilename("failed_emails_a b\".csv"))
	assert.Equal(t, FallbackFilename, SafeFilename("report.csv"))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "passwd", BaseName("../../etc/passwd"))
	assert.Equal(t, "f.csv", BaseName(`a\b\f.csv`))
	assert.Equal(t, "", BaseName(""))
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data)), ContentLength: aws.Int64(int64(len(data)))}, nil
}

func TestS3Store_RoundTripThroughGateway(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewS3Store(fake, "reports", "mass_mailer")

	art, err := NewGenerator(store).Generate(context.Background(), []string{"z@x.com"})
	require.NoError(t, err)
	_, ok := fake.objects["reports/mass_mailer/"+art.Name]
	assert.True(t, ok)

	dl, err := NewGateway(store).Resolve(context.Background(), art.Name)
	require.NoError(t, err)
	dl.Body.Close()

	_, err = NewGateway(store).Resolve(context.Background(), "failed_emails_nope.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}
