//go:build windows

package server

func platformAbsPath() string {
	return `C:\agents\work`
}
