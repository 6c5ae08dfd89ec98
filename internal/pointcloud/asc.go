package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/groundseg/internal/fsutil"
	"github.com/banshee-data/groundseg/internal/security"
)

// ASC is the CloudCompare-compatible whitespace separated text format. A
// "# Format:" comment names the columns; without it the first three columns
// are x y z and any others are named c3, c4, ...
const formatPrefix = "# Format:"

// WriteASC writes every column of t in insertion order.
func WriteASC(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	names := t.Names()
	cols := make([][]float64, len(names))
	for i, name := range names {
		cols[i], _ = t.Field(name)
	}

	fmt.Fprintf(bw, "# Exported points\n")
	fmt.Fprintf(bw, "%s %s\n", formatPrefix, strings.Join(names, " "))

	buf := make([]byte, 0, 256)
	for i := 0; i < t.Len(); i++ {
		buf = buf[:0]
		for c, col := range cols {
			if c > 0 {
				buf = append(buf, ' ')
			}
			buf = strconv.AppendFloat(buf, col[i], 'f', -1, 64)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadASC parses an ASC stream into a table. Blank lines and comments other
// than the format header are skipped. Columns may be separated by spaces,
// tabs or commas.
func ReadASC(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var names []string
	var cols [][]float64
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			if strings.HasPrefix(line, formatPrefix) && cols == nil {
				names = strings.Fields(strings.ToLower(strings.TrimPrefix(line, formatPrefix)))
			}
			continue
		}

		parts := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})
		if cols == nil {
			if names == nil {
				names = defaultColumnNames(len(parts))
			}
			if len(names) < 3 {
				return nil, fmt.Errorf("line %d: need at least 3 columns, have %d", lineNo, len(names))
			}
			cols = make([][]float64, len(names))
		}
		if len(parts) != len(names) {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", lineNo, len(names), len(parts))
		}
		for c, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", lineNo, c+1, err)
			}
			cols[c] = append(cols[c], v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, fmt.Errorf("no points found")
	}

	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	for _, f := range CoordinateFields {
		if _, ok := index[f]; !ok {
			return nil, fmt.Errorf("missing coordinate column %q", f)
		}
	}

	t, err := NewTable(cols[index[FieldX]], cols[index[FieldY]], cols[index[FieldZ]])
	if err != nil {
		return nil, err
	}
	for i, n := range names {
		if n == FieldX || n == FieldY || n == FieldZ {
			continue
		}
		if err := t.Set(n, cols[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func defaultColumnNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		switch i {
		case 0:
			names[i] = FieldX
		case 1:
			names[i] = FieldY
		case 2:
			names[i] = FieldZ
		default:
			names[i] = "c" + strconv.Itoa(i)
		}
	}
	return names
}

// ExportASC writes t to dir/<base name of input>.asc, creating dir if
// needed, and returns the path written.
func ExportASC(fs fsutil.FileSystem, dir, input string, t *Table) (string, error) {
	if t.Len() == 0 {
		return "", fmt.Errorf("no points to export")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path, err := security.OutputPath(dir, input, ".asc")
	if err != nil {
		return "", err
	}

	f, err := fs.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteASC(f, t); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// ReadFile loads a point cloud, choosing the codec from the extension.
// LAS files are always read from the OS filesystem.
func ReadFile(fs fsutil.FileSystem, path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".las":
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return ReadLAS(path)
	case ".asc", ".txt", ".xyz", ".csv":
		f, err := fs.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		t, err := ReadASC(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("do not know how to read file %q", path)
	}
}
