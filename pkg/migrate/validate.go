package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const versionLayout = "20060102150405"

var fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9]+(?:_[a-z0-9]+)*)\.sql$`)

// File is one goose migration on disk.
type File struct {
	Version string
	Name    string
	Path    string
}

// Scan lists the migrations in dir ordered by version and checks that each
// one is well formed: a YYYYMMDDHHMMSS_snake_name.sql file name, a unique
// version, and an Up section before the Down section.
func Scan(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var files []File
	versions := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		m := fileNameRe.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, fmt.Errorf("%s: want %s_snake_name.sql", entry.Name(), versionLayout)
		}
		if other, dup := versions[m[1]]; dup {
			return nil, fmt.Errorf("%s and %s share version %s", other, entry.Name(), m[1])
		}
		versions[m[1]] = entry.Name()

		path := filepath.Join(dir, entry.Name())
		if err := checkSections(path); err != nil {
			return nil, err
		}
		files = append(files, File{Version: m[1], Name: m[2], Path: path})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// ValidateDir is Scan without the listing.
func ValidateDir(dir string) error {
	_, err := Scan(dir)
	return err
}

func checkSections(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	body := string(raw)
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("%s: no -- +goose Up section", filepath.Base(path))
	case down < 0:
		return fmt.Errorf("%s: no -- +goose Down section", filepath.Base(path))
	case down < up:
		return fmt.Errorf("%s: Down section precedes Up", filepath.Base(path))
	}
	return nil
}
