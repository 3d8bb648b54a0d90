// internal/logging/rotating_test.go
package logging

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterCreates(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(logPath, 1024*1024, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestRotatingWriterWrites(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(logPath, 1024*1024, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	msg := "dispatched cmd for spy build\n"
	n, err := w.Write([]byte(msg))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(msg) {
		t.Errorf("Write() = %d, want %d", n, len(msg))
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != msg {
		t.Errorf("log content = %q, want %q", string(content), msg)
	}
}

func TestRotatingWriterRotatesAtThreshold(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	threshold := int64(100)
	w, err := NewRotatingWriter(logPath, threshold, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	line := strings.Repeat("x", 50) + "\n"
	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	rotated1 := logPath + ".1"
	if _, err := os.Stat(rotated1); os.IsNotExist(err) {
		rotated1gz := logPath + ".1.gz"
		if _, err := os.Stat(rotated1gz); os.IsNotExist(err) {
			t.Error("rotated log file (.1 or .1.gz) was not created")
		}
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("current log file should still exist after rotation")
	}
}

func TestRotatingWriterCompressesOldFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	threshold := int64(50)
	w, err := NewRotatingWriter(logPath, threshold, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	line := strings.Repeat("y", 60) + "\n"
	for i := 0; i < 10; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	gzFiles, _ := filepath.Glob(filepath.Join(dir, "*.gz"))
	if len(gzFiles) > 0 {
		f, err := os.Open(gzFiles[0])
		if err != nil {
			t.Fatalf("failed to open gzip file: %v", err)
		}
		defer f.Close()

		gz, err := gzip.NewReader(f)
		if err != nil {
			t.Fatalf("rotated file is not valid gzip: %v", err)
		}
		defer gz.Close()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(gz); err != nil {
			t.Fatalf("failed to read gzip content: %v", err)
		}
	}
}

func TestRotatingWriterRespectsConfiguredMaxBackups(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	threshold := int64(30)
	w, err := NewRotatingWriter(logPath, threshold, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	line := strings.Repeat("z", 40) + "\n"
	for i := 0; i < 30; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	allFiles, _ := filepath.Glob(filepath.Join(dir, "test.log*"))
	rotated := 0
	for _, f := range allFiles {
		if f != logPath {
			rotated++
		}
	}
	if rotated > 2 {
		t.Errorf("expected at most 2 rotated files (max_backups=2), got %d", rotated)
	}
}

func TestRotatingWriterMaxBackupsDefaultsWhenUnset(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	threshold := int64(30)
	w, err := NewRotatingWriter(logPath, threshold, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	line := strings.Repeat("z", 40) + "\n"
	for i := 0; i < 30; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	allFiles, _ := filepath.Glob(filepath.Join(dir, "test.log*"))
	rotated := 0
	for _, f := range allFiles {
		if f != logPath {
			rotated++
		}
	}
	if rotated > defaultMaxBackups {
		t.Errorf("expected at most %d rotated files, got %d", defaultMaxBackups, rotated)
	}
}

func TestRotatingWriterThreadSafe(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(logPath, 1024, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				msg := strings.Repeat("x", 10) + "\n"
				w.Write([]byte(msg))
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
