package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivevfs/internal/config"
	"github.com/tonimelisma/drivevfs/internal/fakedrive"
	"github.com/tonimelisma/drivevfs/internal/vfs"
)

const cliToken = "cli-token"

func newCLIDrive(t *testing.T) *fakedrive.Server {
	t.Helper()

	d := fakedrive.New(t)
	d.RequireToken(cliToken)

	return d
}

// runCLI executes the root command against drive with a generated config
// file and returns what the command wrote to stdout and stderr.
func runCLI(t *testing.T, drive *fakedrive.Server, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	saveGlobals(t)

	t.Setenv(config.EnvAccessToken, cliToken)
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvTokenFile, "")

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	content := fmt.Sprintf("api_base_url = %q\nupload_base_url = %q\nlog_level = \"error\"\nlog_format = \"text\"\n",
		drive.BaseURL(), drive.UploadURL())
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	if stdin == nil {
		stdin = strings.NewReader("")
	}

	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetIn(stdin)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))

	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func TestLs_Table(t *testing.T) {
	drive := newCLIDrive(t)
	drive.AddFolder(fakedrive.RootID, "docs")
	readOnly := drive.AddFile(fakedrive.RootID, "b.txt", "text/plain", []byte("hello"))
	drive.AddFile(fakedrive.RootID, "a.txt", "text/plain", []byte("hi"))
	drive.SetEditable(readOnly, false)

	stdout, _, err := runCLI(t, drive, nil, "ls")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "NAME")
	assert.True(t, strings.HasSuffix(lines[1], "docs/"), "folders sort first")
	assert.True(t, strings.HasSuffix(lines[2], "a.txt"))
	assert.True(t, strings.HasPrefix(lines[2], "rw"))
	assert.True(t, strings.HasPrefix(lines[3], "r-"))
	assert.Contains(t, lines[3], "5 B")
}

func TestLs_JSON(t *testing.T) {
	drive := newCLIDrive(t)
	docs := drive.AddFolder(fakedrive.RootID, "docs")
	page := drive.AddFile(docs, "index.html", "application/octet-stream", []byte("<p>"))
	drive.SetStarred(page, true)

	stdout, _, err := runCLI(t, drive, nil, "--json", "ls", "/docs")
	require.NoError(t, err)

	var out lsJSONOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))

	assert.NotEmpty(t, out.ETag)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, "index.html", out.Entries[0].Name)
	assert.Equal(t, page, out.Entries[0].ID)
	assert.Equal(t, "text/html", out.Entries[0].MimeType)
	assert.True(t, out.Entries[0].Writable)
	assert.True(t, out.Entries[0].Starred)
	assert.False(t, out.Entries[0].IsFolder)
}

func TestLs_ETagNotModified(t *testing.T) {
	drive := newCLIDrive(t)
	drive.AddFile(fakedrive.RootID, "a.txt", "text/plain", nil)

	stdout, _, err := runCLI(t, drive, nil, "--json", "ls")
	require.NoError(t, err)

	var out lsJSONOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))

	drive.ResetCalls()

	stdout, stderr, err := runCLI(t, drive, nil, "ls", "--etag", out.ETag)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Not modified")
	assert.Equal(t, 0, drive.Calls(fakedrive.KindGet))
}

func TestLs_NotFound(t *testing.T) {
	drive := newCLIDrive(t)

	_, _, err := runCLI(t, drive, nil, "ls", "/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, vfs.ErrNotFound)
	assert.Contains(t, err.Error(), `listing "/missing"`)
}

func TestCat(t *testing.T) {
	drive := newCLIDrive(t)
	docs := drive.AddFolder(fakedrive.RootID, "docs")
	drive.AddFile(docs, "note.txt", "text/plain", []byte("hello world"))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"whole file", nil, "hello world"},
		{"bounded range", []string{"--range", "1-3"}, "ell"},
		{"open range", []string{"--range", "6-"}, "world"},
		{"suffix range", []string{"--range", "-5"}, "world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"cat", "/docs/note.txt"}, tt.args...)

			stdout, _, err := runCLI(t, drive, nil, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout)
		})
	}
}

func TestCat_IfRangeMismatchServesWholeFile(t *testing.T) {
	drive := newCLIDrive(t)
	drive.AddFile(fakedrive.RootID, "f.txt", "text/plain", []byte("abcdef"))

	stdout, _, err := runCLI(t, drive, nil, "cat", "/f.txt", "--range", "0-1", "--if-range", `"stale"`)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", stdout)
}

func TestCat_RangeNotSatisfiable(t *testing.T) {
	drive := newCLIDrive(t)
	drive.AddFile(fakedrive.RootID, "f.txt", "text/plain", []byte("abc"))

	_, _, err := runCLI(t, drive, nil, "cat", "/f.txt", "--range", "10-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), vfs.RangeOutOfBounds)
	assert.Equal(t, 0, drive.Calls(fakedrive.KindDownload))
}

func TestCat_BadRangeFlag(t *testing.T) {
	drive := newCLIDrive(t)

	_, _, err := runCLI(t, drive, nil, "cat", "/f.txt", "--range", "abc")
	assert.ErrorIs(t, err, errBadRange)
	assert.Equal(t, 0, drive.Calls(fakedrive.KindList), "flags are checked before any request")
}

func TestCat_ETagNotModified(t *testing.T) {
	drive := newCLIDrive(t)
	id := drive.AddFile(fakedrive.RootID, "f.txt", "text/plain", []byte("abc"))

	stdout, stderr, err := runCLI(t, drive, nil, "cat", "/f.txt", "--etag", drive.ETag(id))
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Not modified")
	assert.Equal(t, 0, drive.Calls(fakedrive.KindDownload))
}

func TestCat_HeadJSON(t *testing.T) {
	drive := newCLIDrive(t)
	id := drive.AddFile(fakedrive.RootID, "f.txt", "text/plain", []byte("abcdef"))

	stdout, _, err := runCLI(t, drive, nil, "--json", "cat", "/f.txt", "--head", "--range", "2-3")
	require.NoError(t, err)

	var out catHeadOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))

	assert.Equal(t, "/f.txt", out.Path)
	assert.Equal(t, "text/plain", out.MimeType)
	assert.Equal(t, int64(2), out.Size)
	assert.Equal(t, drive.ETag(id), out.ETag)
	require.NotNil(t, out.Partial)
	assert.Equal(t, catHeadPartial{Start: 2, End: 3, Total: 6}, *out.Partial)
	assert.Equal(t, 0, drive.Calls(fakedrive.KindDownload))
}

func TestCat_HeadText(t *testing.T) {
	drive := newCLIDrive(t)
	drive.AddFile(fakedrive.RootID, "f.txt", "text/plain", []byte("abc"))

	stdout, _, err := runCLI(t, drive, nil, "cat", "/f.txt", "--head")
	require.NoError(t, err)
	assert.Contains(t, stdout, "MIME type: text/plain")
	assert.Contains(t, stdout, "Size:      3")
}

func TestCat_Folder(t *testing.T) {
	drive := newCLIDrive(t)
	drive.AddFolder(fakedrive.RootID, "docs")

	_, _, err := runCLI(t, drive, nil, "cat", "/docs")
	assert.ErrorIs(t, err, vfs.ErrInvalidOperation)
}

func TestPut_Stdin(t *testing.T) {
	drive := newCLIDrive(t)

	_, stderr, err := runCLI(t, drive, strings.NewReader("from stdin"), "put", "-", "/new.txt")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Uploaded /new.txt")

	id, ok := drive.Find(fakedrive.RootID, "new.txt")
	require.True(t, ok)

	content, _ := drive.Content(id)
	assert.Equal(t, "from stdin", string(content))
}

func TestPut_LocalFileOverwrites(t *testing.T) {
	drive := newCLIDrive(t)
	existing := drive.AddFile(fakedrive.RootID, "report.txt", "text/plain", []byte("old"))

	local := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(local, []byte("new content"), 0o600))

	stdout, _, err := runCLI(t, drive, nil, "--json", "put", local, "/report.txt")
	require.NoError(t, err)

	var out putJSONOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, existing, out.ID, "overwrite keeps the object ID")

	content, _ := drive.Content(existing)
	assert.Equal(t, "new content", string(content))
	assert.Equal(t, 0, drive.Calls(fakedrive.KindCreate))
}

func TestPut_Directory(t *testing.T) {
	drive := newCLIDrive(t)

	_, _, err := runCLI(t, drive, nil, "put", t.TempDir(), "/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestPut_MissingParent(t *testing.T) {
	drive := newCLIDrive(t)

	_, _, err := runCLI(t, drive, strings.NewReader("x"), "put", "-", "/nope/x.txt")
	assert.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestMkdir(t *testing.T) {
	drive := newCLIDrive(t)

	_, stderr, err := runCLI(t, drive, nil, "mkdir", "/projects")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Created /projects")

	_, ok := drive.Find(fakedrive.RootID, "projects")
	assert.True(t, ok)

	_, _, err = runCLI(t, drive, nil, "mkdir", "/projects")
	assert.ErrorIs(t, err, vfs.ErrExist)
}

func TestMkdir_Parents(t *testing.T) {
	drive := newCLIDrive(t)
	drive.AddFolder(fakedrive.RootID, "a")

	_, stderr, err := runCLI(t, drive, nil, "mkdir", "-p", "/a/b/c/")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "Created /a\n")
	assert.Contains(t, stderr, "Created /a/b/c")

	a, _ := drive.Find(fakedrive.RootID, "a")
	b, ok := drive.Find(a, "b")
	require.True(t, ok)

	_, ok = drive.Find(b, "c")
	assert.True(t, ok)

	_, _, err = runCLI(t, drive, nil, "mkdir", "-p", "/a/b")
	assert.NoError(t, err)
}

func TestQuietSuppressesStatus(t *testing.T) {
	drive := newCLIDrive(t)

	_, stderr, err := runCLI(t, drive, nil, "-q", "mkdir", "/x")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestMetricsFlag(t *testing.T) {
	drive := newCLIDrive(t)
	drive.AddFile(fakedrive.RootID, "a.txt", "text/plain", nil)

	_, stderr, err := runCLI(t, drive, nil, "--metrics", "ls")
	require.NoError(t, err)
	assert.Contains(t, stderr, `drivevfs_api_requests_total{outcome="ok"}`)
	assert.Contains(t, stderr, "drivevfs_metadata_cache_entries")
}

func TestPathIndexPersistsAcrossRuns(t *testing.T) {
	drive := newCLIDrive(t)
	docs := drive.AddFolder(fakedrive.RootID, "docs")
	drive.AddFile(docs, "a.txt", "text/plain", []byte("a"))

	index := filepath.Join(t.TempDir(), "state", "paths.db")

	_, _, err := runCLI(t, drive, nil, "--path-index", index, "cat", "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, drive.Calls(fakedrive.KindList))

	drive.ResetCalls()

	stdout, _, err := runCLI(t, drive, nil, "--path-index", index, "cat", "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a", stdout)
	assert.Equal(t, 0, drive.Calls(fakedrive.KindList), "paths come from the index")
}

func TestNotLoggedIn(t *testing.T) {
	drive := newCLIDrive(t)
	missing := filepath.Join(t.TempDir(), "token.json")

	saveGlobals(t)
	t.Setenv(config.EnvAccessToken, "")

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("api_base_url = %q\n", drive.BaseURL())), 0o600))

	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(""))
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--token-file", missing, "ls"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
	assert.Equal(t, 0, drive.Calls(fakedrive.KindList))
}

func TestParseRange(t *testing.T) {
	i := func(n int64) *int64 { return &n }

	tests := []struct {
		spec    string
		want    *vfs.Range
		wantErr bool
	}{
		{"0-9", &vfs.Range{Start: i(0), End: i(9)}, false},
		{"5-", &vfs.Range{Start: i(5)}, false},
		{"-20", &vfs.Range{End: i(20)}, false},
		{"-", nil, true},
		{"", nil, true},
		{"12", nil, true},
		{"a-3", nil, true},
		{"3-b", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := parseRange(tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, errBadRange)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAccess(t *testing.T) {
	assert.Equal(t, "rw", formatAccess(vfs.AccessRead|vfs.AccessWrite))
	assert.Equal(t, "r-", formatAccess(vfs.AccessRead))
	assert.Equal(t, "--", formatAccess(0))
}
