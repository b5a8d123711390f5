package builder

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"testing"
)

// writeTar writes a tar stream holding one directory and, if name is set,
// one regular file, the way CopyFromContainer returns it.
func writeTar(t *testing.T, w io.Writer, name string, content []byte) {
	t.Helper()
	tw := tar.NewWriter(w)
	if err := tw.WriteHeader(&tar.Header{Name: "python/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatal(err)
	}
	if name != "" {
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractSingleFile(t *testing.T) {
	var tarBuf bytes.Buffer
	writeTar(t, &tarBuf, "python-layer-3.11.zip", []byte("payload"))

	var out bytes.Buffer
	if err := extractSingleFile(&tarBuf, &out); err != nil {
		t.Fatalf("extractSingleFile failed: %v", err)
	}
	if out.String() != "payload" {
		t.Errorf("extracted %q, want payload", out.String())
	}
}

func TestExtractSingleFile_NoRegularFile(t *testing.T) {
	var tarBuf bytes.Buffer
	writeTar(t, &tarBuf, "", nil)

	if err := extractSingleFile(&tarBuf, io.Discard); !errors.Is(err, ErrArtifactMissing) {
		t.Errorf("err = %v, want ErrArtifactMissing", err)
	}
}

func TestExtractSingleFile_Corrupt(t *testing.T) {
	err := extractSingleFile(bytes.NewReader(bytes.Repeat([]byte("x"), 1024)), io.Discard)
	if err == nil || errors.Is(err, ErrArtifactMissing) {
		t.Errorf("err = %v, want a read error", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	tb.Write([]byte("abc"))
	tb.Write([]byte("defg"))
	if tb.String() != "defg" {
		t.Errorf("tail = %q, want defg", tb.String())
	}
}

func TestBuildLabels(t *testing.T) {
	labels := BuildLabels("tok")
	if labels[LabelManagedBy] != ManagedByValue || labels[LabelBuildToken] != "tok" {
		t.Errorf("unexpected labels: %v", labels)
	}
}
