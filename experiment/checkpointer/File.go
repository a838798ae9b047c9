package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// File is a Checkpointer which gob encodes states into a single file.
// Each save is written to a temporary file which then replaces the
// checkpoint file, so an interrupted save never corrupts the previous
// checkpoint.
type File struct {
	path string
}

// NewFile returns a new File Checkpointer which saves to the file
// named name in directory dir. The directory is created if it does not
// exist.
func NewFile(dir, name string) (*File, error) {
	if name == "" {
		return nil, fmt.Errorf("newFile: empty checkpoint name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newFile: %v", err)
	}

	return &File{path: filepath.Join(dir, name+".gob")}, nil
}

// Path returns the path of the checkpoint file
func (f *File) Path() string {
	return f.path
}

// Save gob encodes a state into the checkpoint file
func (f *File) Save(state interface{}) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path),
		filepath.Base(f.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	defer os.Remove(tmp.Name())

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(state); err != nil {
		tmp.Close()
		return fmt.Errorf("save: could not encode state: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save: %v", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Restore decodes the checkpoint file into the value pointed to by
// into
func (f *File) Restore(into interface{}) error {
	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return fmt.Errorf("restore: %w", ErrNothingToRestore)
	} else if err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("restore: could not decode state: %v", err)
	}
	return nil
}

// CanBeRestored returns whether the checkpoint file exists
func (f *File) CanBeRestored() bool {
	info, err := os.Stat(f.path)
	return err == nil && info.Mode().IsRegular()
}
