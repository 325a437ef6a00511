package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// scriptFlavor selects the launch script dialect.
type scriptFlavor int

const (
	flavorBatch scriptFlavor = iota
	flavorSh
)

// scriptBody renders the launch script: change into dir, then run cmdline.
// An empty dir means the current directory.
func scriptBody(f scriptFlavor, dir, cmdline string) string {
	if dir == "" {
		dir = "."
	}
	switch f {
	case flavorSh:
		return "#!/bin/sh\ncd " + shQuote(dir) + " || exit 1\n" + cmdline + "\n"
	default:
		return "@echo off\r\ncd /d \"" + dir + "\"\r\n" + cmdline + "\r\n"
	}
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// writeScript creates a uniquely named launch script in dir.
func writeScript(dir string, f scriptFlavor, workDir, cmdline string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create script dir: %w", err)
	}
	ext := ".bat"
	if f == flavorSh {
		ext = ".sh"
	}
	file, err := os.CreateTemp(dir, "launch-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create launch script: %w", err)
	}
	path := file.Name()
	if _, err := file.WriteString(scriptBody(f, workDir, cmdline)); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write launch script: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close launch script: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// removeScript deletes path; a file that is already gone is not an error.
func removeScript(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
