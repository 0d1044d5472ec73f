package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivevfs/internal/vfs"
)

var errBadRange = errors.New("invalid --range")

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	cmd.Flags().String("etag", "", "print nothing when the folder's etag still matches")

	return cmd
}

func newCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file's content to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runCat,
	}

	cmd.Flags().String("etag", "", "skip the download when the file's etag matches")
	cmd.Flags().String("range", "", "byte range: start-end, start-, or -suffix")
	cmd.Flags().String("if-range", "", "apply --range only while the file's etag matches this one")
	cmd.Flags().Bool("head", false, "print metadata without downloading")

	return cmd
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-path|-> <remote-path>",
		Short: "Upload a file, creating or overwriting the remote object",
		Long: `Upload a local file (or stdin when the local path is "-") to a remote
path. The remote parent folder must exist. An existing object at the path
is overwritten in place and keeps its ID.`,
		Args: cobra.ExactArgs(2),
		RunE: runPut,
	}
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}

	cmd.Flags().BoolP("parents", "p", false, "create missing parent folders and accept an existing folder")

	return cmd
}

// lsJSONOutput is the JSON schema for `ls --json`.
type lsJSONOutput struct {
	ETag    string       `json:"etag"`
	Entries []lsJSONItem `json:"entries"`
}

type lsJSONItem struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	Size       int64  `json:"size"`
	IsFolder   bool   `json:"is_folder"`
	MimeType   string `json:"mime_type"`
	Writable   bool   `json:"writable"`
	Starred    bool   `json:"starred,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

func runLs(cmd *cobra.Command, args []string) error {
	remotePath := "/"
	if len(args) > 0 {
		remotePath = args[0]
	}

	ctx := cmd.Context()

	s, err := NewSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close(cmd)

	etag, _ := cmd.Flags().GetString("etag")

	s.Logger.Debug("ls", "path", remotePath)

	meta, err := s.FS.ReadDir(ctx, remotePath, vfs.ListOptions{ETag: etag})
	if err != nil {
		return fmt.Errorf("listing %q: %w", remotePath, err)
	}

	if meta.NotModified {
		statusf(cmd.ErrOrStderr(), "Not modified (etag %s)\n", meta.ETag)
		return nil
	}

	entries := make([]vfs.Stat, 0, meta.Entries.Len())

	for st := range meta.Entries.All(ctx) {
		if st.Err != nil {
			s.Logger.Warn("skipping entry",
				slog.String("id", st.ID),
				slog.String("error", st.Err.Error()),
			)

			continue
		}

		entries = append(entries, st)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("listing %q: %w", remotePath, err)
	}

	if flagJSON {
		return printStatsJSON(cmd.OutOrStdout(), meta.ETag, entries)
	}

	printStatsTable(cmd.OutOrStdout(), entries)

	return nil
}

func printStatsJSON(w io.Writer, etag string, entries []vfs.Stat) error {
	out := lsJSONOutput{ETag: etag, Entries: make([]lsJSONItem, 0, len(entries))}

	for i := range entries {
		item := lsJSONItem{
			Name:     entries[i].Name,
			ID:       entries[i].ID,
			Size:     entries[i].Size,
			IsFolder: entries[i].IsDir(),
			MimeType: entries[i].MimeType,
			Writable: entries[i].Access&vfs.AccessWrite != 0,
			Starred:  entries[i].Labels.Starred,
		}

		if !entries[i].ModifiedAt.IsZero() {
			item.ModifiedAt = entries[i].ModifiedAt.UTC().Format(time.RFC3339)
		}

		out.Entries = append(out.Entries, item)
	}

	return printJSON(w, out)
}

func printStatsTable(w io.Writer, entries []vfs.Stat) {
	// Folders first, then alphabetical.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}

		return entries[i].Name < entries[j].Name
	})

	headers := []string{"ACCESS", "SIZE", "MODIFIED", "NAME"}
	rows := make([][]string, 0, len(entries))

	for i := range entries {
		name := entries[i].Name
		size := formatSize(entries[i].Size)

		if entries[i].IsDir() {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{formatAccess(entries[i].Access), size, formatTime(entries[i].ModifiedAt), name})
	}

	printTable(w, headers, rows)
}

func formatAccess(access int) string {
	b := []byte("--")
	if access&vfs.AccessRead != 0 {
		b[0] = 'r'
	}

	if access&vfs.AccessWrite != 0 {
		b[1] = 'w'
	}

	return string(b)
}

// catHeadOutput is the JSON schema for `cat --head --json`.
type catHeadOutput struct {
	Path     string          `json:"path"`
	MimeType string          `json:"mime_type"`
	Size     int64           `json:"size"`
	ETag     string          `json:"etag"`
	Partial  *catHeadPartial `json:"partial,omitempty"`
}

type catHeadPartial struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Total int64 `json:"total"`
}

func runCat(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	ctx := cmd.Context()

	opts, err := readOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	s, err := NewSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close(cmd)

	s.Logger.Debug("cat", "path", remotePath)

	meta, err := s.FS.ReadFile(ctx, remotePath, opts)
	if err != nil {
		return fmt.Errorf("reading %q: %w", remotePath, err)
	}

	switch {
	case meta.NotModified:
		statusf(cmd.ErrOrStderr(), "Not modified (etag %s)\n", meta.ETag)
		return nil
	case meta.RangeNotSatisfiable != "":
		return fmt.Errorf("reading %q: %s", remotePath, meta.RangeNotSatisfiable)
	case opts.Head:
		return printReadMeta(cmd.OutOrStdout(), remotePath, meta)
	}

	defer meta.Body.Close()

	n, err := io.Copy(cmd.OutOrStdout(), meta.Body)
	if err != nil {
		return fmt.Errorf("reading %q: %w", remotePath, err)
	}

	s.Logger.Debug("cat complete", "path", remotePath, "bytes", n)

	return nil
}

func readOptionsFromFlags(cmd *cobra.Command) (vfs.ReadOptions, error) {
	var opts vfs.ReadOptions

	opts.ETag, _ = cmd.Flags().GetString("etag")
	opts.Head, _ = cmd.Flags().GetBool("head")

	spec, _ := cmd.Flags().GetString("range")
	if spec == "" {
		return opts, nil
	}

	r, err := parseRange(spec)
	if err != nil {
		return opts, err
	}

	r.ETag, _ = cmd.Flags().GetString("if-range")
	opts.Range = r

	return opts, nil
}

// parseRange parses "start-end", "start-", or "-suffix".
func parseRange(spec string) (*vfs.Range, error) {
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || (startStr == "" && endStr == "") {
		return nil, fmt.Errorf("%w %q: expected start-end, start-, or -suffix", errBadRange, spec)
	}

	r := &vfs.Range{}

	if startStr != "" {
		n, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w %q: bad start", errBadRange, spec)
		}

		r.Start = &n
	}

	if endStr != "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w %q: bad end", errBadRange, spec)
		}

		r.End = &n
	}

	return r, nil
}

func printReadMeta(w io.Writer, remotePath string, meta *vfs.ReadMeta) error {
	if flagJSON {
		out := catHeadOutput{
			Path:     remotePath,
			MimeType: meta.MimeType,
			Size:     meta.Size,
			ETag:     meta.ETag,
		}

		if pc := meta.PartialContent; pc != nil {
			out.Partial = &catHeadPartial{Start: pc.Start, End: pc.End, Total: pc.Size}
		}

		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Path:      %s\n", remotePath)
	fmt.Fprintf(w, "MIME type: %s\n", meta.MimeType)
	fmt.Fprintf(w, "Size:      %d\n", meta.Size)
	fmt.Fprintf(w, "ETag:      %s\n", meta.ETag)

	if pc := meta.PartialContent; pc != nil {
		fmt.Fprintf(w, "Range:     bytes %d-%d/%d\n", pc.Start, pc.End, pc.Size)
	}

	return nil
}

// putJSONOutput is the JSON schema for `put --json`.
type putJSONOutput struct {
	Path string `json:"path"`
	ID   string `json:"id"`
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath, remotePath := args[0], args[1]
	ctx := cmd.Context()

	var src io.Reader

	if localPath == "-" {
		src = cmd.InOrStdin()
	} else {
		fi, err := os.Stat(localPath)
		if err != nil {
			return fmt.Errorf("stating local file: %w", err)
		}

		if fi.IsDir() {
			return fmt.Errorf("%q is a directory, not a file", localPath)
		}

		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("opening local file: %w", err)
		}
		defer f.Close()

		src = f
	}

	s, err := NewSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close(cmd)

	s.Logger.Debug("put", "local_path", localPath, "remote_path", remotePath)

	res, err := s.FS.WriteFile(ctx, remotePath, vfs.WriteOptions{Stream: src})
	if err != nil {
		return fmt.Errorf("uploading to %q: %w", remotePath, err)
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), putJSONOutput{Path: remotePath, ID: res.ID})
	}

	statusf(cmd.ErrOrStderr(), "Uploaded %s (id %s)\n", remotePath, res.ID)

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	ctx := cmd.Context()
	parents, _ := cmd.Flags().GetBool("parents")

	s, err := NewSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close(cmd)

	s.Logger.Debug("mkdir", "path", remotePath, "parents", parents)

	if !parents {
		if err := s.FS.Mkdir(ctx, remotePath); err != nil {
			return fmt.Errorf("creating folder %q: %w", remotePath, err)
		}

		statusf(cmd.ErrOrStderr(), "Created %s\n", remotePath)

		return nil
	}

	current := ""

	for _, part := range strings.Split(strings.Trim(remotePath, "/"), "/") {
		if part == "" {
			continue
		}

		current += "/" + part

		err := s.FS.Mkdir(ctx, current)
		if errors.Is(err, vfs.ErrExist) {
			continue
		}

		if err != nil {
			return fmt.Errorf("creating folder %q: %w", current, err)
		}

		statusf(cmd.ErrOrStderr(), "Created %s\n", current)
	}

	return nil
}
