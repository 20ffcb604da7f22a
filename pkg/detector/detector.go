package detector

import (
	"context"
	"io"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
)

// Detector parses one kind of manifest into a location's dependency graph.
type Detector interface {
	// ID returns the unique detector identifier (e.g., "cargo-lock").
	ID() string
	// SearchPatterns returns the glob patterns of files this detector reads.
	SearchPatterns() []string
	// SupportedTypes returns the component types the detector registers.
	SupportedTypes() []component.Type
	// Execute parses the stream and registers its components.
	Execute(ctx context.Context, req Request) error
}

// File is a matched manifest that has not been opened yet.
type File struct {
	Location string
	Path     string
}

// Preparer is implemented by detectors that need to see every matched file
// before any file is executed. A scan calls Prepare once, with the files of
// all detectors, before the first Execute.
type Preparer interface {
	Prepare(ctx context.Context, files []File) error
}

// Stream is an opened manifest.
type Stream struct {
	Location string    // Path of the file relative to the scan root, used as the recorder location
	Path     string    // Filesystem path, empty when the stream is not backed by a file
	Pattern  string    // Search pattern that matched the file
	Reader   io.Reader // File contents
}

// Request carries one file to a detector.
type Request struct {
	Stream   Stream
	Recorder *recorder.SingleFileComponentRecorder
}

// ReadAll reads the whole stream, checking ctx first.
func (r Request) ReadAll(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCanceled, err, "read %s", r.Stream.Location)
	}
	if r.Stream.Reader == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no reader for %s", r.Stream.Location)
	}
	data, err := io.ReadAll(r.Stream.Reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", r.Stream.Location)
	}
	return data, nil
}

// Validate checks that the request can be executed.
func (r Request) Validate() error {
	if r.Recorder == nil {
		return errors.New(errors.ErrCodeInvalidInput, "no recorder for %s", r.Stream.Location)
	}
	return errors.ValidateLocation(r.Stream.Location)
}
