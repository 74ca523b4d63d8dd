// Package jsonfile reads and atomically writes indented JSON documents.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Marshal encodes v with 2-space indentation and a trailing newline. HTML
// characters are not escaped so names like "Ben & Jerry's" stay readable.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, eris.Wrap(err, "jsonfile: marshal")
	}
	return buf.Bytes(), nil
}

// Write marshals v and replaces path atomically: the bytes go to a temp file
// in the same directory which is synced and renamed over path. Missing parent
// directories are created.
func Write(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	return WriteBytes(path, data)
}

// WriteBytes atomically replaces path with data.
func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "jsonfile: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "jsonfile: create temp for %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "jsonfile: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "jsonfile: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "jsonfile: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "jsonfile: chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "jsonfile: rename to %s", path)
	}
	return nil
}

// Read decodes the JSON document at path into v. It reports false with a nil
// error when the file does not exist.
func Read(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "jsonfile: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, eris.Wrapf(err, "jsonfile: decode %s", path)
	}
	return true, nil
}
