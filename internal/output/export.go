package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const exportLockRetry = 50 * time.Millisecond

// ExportSummary writes s to path as JSON or YAML, chosen by the file
// extension. Concurrent runs exporting to the same path are serialised
// through a sibling ".lock" file, and the summary is renamed into place so
// readers never observe a partial file.
func ExportSummary(ctx context.Context, path string, s Summary) error {
	encode, err := encoderFor(path)
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, exportLockRetry)
	if err != nil {
		return fmt.Errorf("lock summary export: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock summary export: %s is held by another process", lock.Path())
	}
	defer lock.Unlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create summary export: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("create summary export: %w", err)
	}

	if err := encode(tmp, s); err != nil {
		tmp.Close()
		return fmt.Errorf("encode summary export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write summary export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write summary export: %w", err)
	}
	return nil
}

type summaryEncoder func(io.Writer, Summary) error

func encoderFor(path string) (summaryEncoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return PrintJSONReport, nil
	case ".yaml", ".yml":
		return encodeYAML, nil
	default:
		return nil, fmt.Errorf("summary export %q: extension must be .json, .yaml or .yml", path)
	}
}

func encodeYAML(w io.Writer, s Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}
