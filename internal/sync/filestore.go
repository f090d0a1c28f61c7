package sync

import (
	"io"
	"os"
	"path/filepath"

	"turtlcore/internal/turtlerr"
)

// FileStore reads and writes the encrypted file bodies at
// {data_folder}/files/{user_id}/{note_id} (spec.md §4.9). Paths are opaque
// to the sync workers — they never decrypt these bytes.
type FileStore struct {
	root string
}

// NewFileStore roots a FileStore at the given data folder's "files"
// subdirectory.
func NewFileStore(dataFolder string) *FileStore {
	return &FileStore{root: filepath.Join(dataFolder, "files")}
}

func (f *FileStore) path(userID, noteID string) string {
	return filepath.Join(f.root, userID, noteID)
}

// Write saves the encrypted blob for a note's attachment, creating the
// user's directory if needed. The caller is the one attaching a file
// locally (profile.Mutator), so unlike WriteStream there is no partial
// download to guard against — the blob is already fully in memory.
func (f *FileStore) Write(userID, noteID string, data []byte) error {
	dir := filepath.Join(f.root, userID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return turtlerr.IO("sync.FileStore.Write: mkdir: %v", err)
	}
	if err := os.WriteFile(f.path(userID, noteID), data, 0600); err != nil {
		return turtlerr.IO("sync.FileStore.Write: %v", err)
	}
	return nil
}

// Read loads the encrypted blob for a note's attachment.
func (f *FileStore) Read(userID, noteID string) ([]byte, error) {
	data, err := os.ReadFile(f.path(userID, noteID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, turtlerr.NotFound("sync.FileStore.Read: %s/%s", userID, noteID)
		}
		return nil, turtlerr.IO("sync.FileStore.Read: %v", err)
	}
	return data, nil
}

// WriteStream streams r into the note's attachment path, writing to a
// temp file first so a partial download never clobbers a good prior copy
// (spec.md §4.9: "partial downloads are discarded").
func (f *FileStore) WriteStream(userID, noteID string, r io.Reader) error {
	dir := filepath.Join(f.root, userID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return turtlerr.IO("sync.FileStore.WriteStream: mkdir: %v", err)
	}
	dest := f.path(userID, noteID)
	tmp := dest + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return turtlerr.IO("sync.FileStore.WriteStream: open: %v", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return turtlerr.IO("sync.FileStore.WriteStream: copy: %v", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return turtlerr.IO("sync.FileStore.WriteStream: close: %v", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return turtlerr.IO("sync.FileStore.WriteStream: rename: %v", err)
	}
	return nil
}
