//go:build !windows

package server

import "path/filepath"

func platformAbsPath() string {
	return filepath.Join(string(filepath.Separator), "srv", "agent")
}
