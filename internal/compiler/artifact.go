package compiler

import "github.com/Faultbox/midgard-assets/pkg/binwriter"

// WriteArtifact creates path and runs emit against a backpatch writer on it.
// Any failure is reported as an IOError for path.
func WriteArtifact(path string, emit func(*binwriter.Writer) error) error {
	w, err := binwriter.Create(path)
	if err != nil {
		return IOError(path, err)
	}
	emitErr := emit(w)
	closeErr := w.Close()
	if emitErr != nil {
		// The writer's error is sticky, so closeErr repeats it.
		return IOError(path, emitErr)
	}
	return IOError(path, closeErr)
}
