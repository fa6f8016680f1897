package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"location_mapper/platform/logger"
)

// Sink persists an artifact somewhere.
type Sink interface {
	Name() string
	Write(ctx context.Context, a *Artifact) error
}

// WriteAll writes a to every sink. A failing sink does not stop the others; all failures are
// joined into the returned error.
func WriteAll(ctx context.Context, a *Artifact, sinks []Sink, log *logger.Logger) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Write(ctx, a); err != nil {
			if log != nil {
				log.SinkError(s.Name(), err)
			}
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
			continue
		}
		if log != nil {
			log.Info("artifact_written", "sink", s.Name(), "run_id", a.RunID)
		}
	}
	return errors.Join(errs...)
}

// FileSink writes the artifact documents into a directory. Aborted runs only leave
// runs/<runId>/OUTPUT.json behind.
type FileSink struct {
	Dir string
}

// NewFileSink creates a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

func (s *FileSink) Name() string { return "file" }

// Write replaces each document atomically through a temp file in the same directory. A raw
// dump left by an earlier run is removed when this run kept no responses.
func (s *FileSink) Write(_ context.Context, a *Artifact) error {
	files, err := a.Files()
	if err != nil {
		return err
	}
	if a.Aborted() {
		return s.writeDiagnostic(a.RunID, files[FileOutput])
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, name := range a.FileNames() {
		if err := writeAtomic(filepath.Join(s.Dir, name), files[name]); err != nil {
			return err
		}
	}
	if len(a.Raw) == 0 {
		if err := os.Remove(filepath.Join(s.Dir, FileRaw)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale %s: %w", FileRaw, err)
		}
	}
	return nil
}

func (s *FileSink) writeDiagnostic(runID string, data []byte) error {
	path := filepath.Join(s.Dir, filepath.FromSlash(RunKey(runID, FileOutput)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
