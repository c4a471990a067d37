package persist

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/danieljhkim/treesnap/internal/fsops"
)

// OutputPerm is the permission of written output files.
const OutputPerm os.FileMode = 0o644

// Save streams the output of render into path. The file appears only once
// render succeeds; on any error the previous content of path is untouched.
func Save(fs fsops.FS, path string, render func(io.Writer) error) error {
	f, err := fs.Create(path, OutputPerm)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer func() { _ = f.Discard() }()

	bw := bufio.NewWriter(f)
	if err := render(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Commit(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
