package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

var requiredAnnotations = []string{"-- +goose Up", "-- +goose Down"}

// ValidateDir checks that every .sql file in dir is named
// YYYYMMDDHHMMSS_name.sql, that versions are unique and that each file
// declares both directions. An empty directory is an error. All problems are
// reported together.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var problems []error
	versions := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		match := sqlFileRe.FindStringSubmatch(name)
		if match == nil {
			problems = append(problems, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, dup := versions[match[1]]; dup {
			problems = append(problems, fmt.Errorf("duplicate migration version %s in %q and %q", match[1], prev, name))
			continue
		}
		versions[match[1]] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			problems = append(problems, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		for _, annotation := range requiredAnnotations {
			if !strings.Contains(string(body), annotation) {
				problems = append(problems, fmt.Errorf("migration %q missing %q", name, annotation))
			}
		}
	}

	if len(versions) == 0 && len(problems) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	return errors.Join(problems...)
}
