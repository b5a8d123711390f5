package layer

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zip"
)

// Artifact is the archive returned to the caller.
type Artifact struct {
	Filename string
	Data     []byte
}

// Filename returns the name of the archive entry and the download for a layer.
func Filename(layerName string) string {
	return layerName + ".zip"
}

// Assemble wraps the staged file into a zip holding a single entry named
// {layerName}.zip. The file is read completely before anything is written.
func Assemble(stagedPath, layerName string) ([]byte, error) {
	data, err := os.ReadFile(stagedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactRead, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     Filename(layerName),
		Method:   zip.Deflate,
		Modified: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive entry: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write archive entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}
