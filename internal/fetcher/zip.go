package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP extracts all files from a ZIP archive to the destination directory.
// Returns the list of extracted file paths.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	return ExtractZIPMatching(zipPath, "*", destDir)
}

// ExtractZIPMatching extracts the files whose base name matches the glob pattern
// (e.g. "2___Plant*.xlsx"). Entries are flattened into destDir.
// Returns an error when nothing matches.
func ExtractZIPMatching(zipPath, pattern, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ok, err := path.Match(pattern, path.Base(f.Name))
		if err != nil {
			return extracted, eris.Wrapf(err, "zip: bad pattern %q", pattern)
		}
		if !ok {
			continue
		}
		p, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, p)
	}

	if len(extracted) == 0 {
		return nil, eris.Errorf("zip: no entries matching %q in %s", pattern, filepath.Base(zipPath))
	}
	return extracted, nil
}

// extractZIPEntry writes a single zip.File into destDir under its base name.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	name := path.Base(f.Name)
	destPath := filepath.Join(destDir, name)
	if name == ".." || !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}

	return destPath, nil
}
