package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/xpi-release/internal/logger"
)

// TreeEntries lists the files under root as slash-separated relative paths in sorted order.
// Dot-prefixed files and directories are skipped, so a checkout never ships its .git.
func TreeEntries(root string) ([]string, error) {
	var names []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == root {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		names = append(names, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(names)

	return names, nil
}

// ZipTree writes every file of TreeEntries(root) into a new archive at output,
// rooted at root. A partially written archive is removed on failure.
func ZipTree(ctx context.Context, root, output string) error {
	names, err := TreeEntries(root)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Zipping checkout", "root", root, "path", output, "entries", len(names))

	if err = zipTree(ctx, root, output, names); err != nil {
		_ = os.Remove(output)

		return fmt.Errorf("zip %s: %w", root, err)
	}

	return nil
}

func zipTree(ctx context.Context, root, output string, names []string) error {
	out, err := os.Create(filepath.Clean(output))
	if err != nil {
		return err
	}

	defer func() {
		_ = out.Close()
	}()

	writer := zip.NewWriter(out)

	for _, name := range names {
		if err = ctx.Err(); err != nil {
			return err
		}

		if err = addFile(writer, filepath.Join(root, filepath.FromSlash(name)), name); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}

	if err = writer.Close(); err != nil {
		return err
	}

	return out.Close()
}
