package main

import (
	"os/user"
	"path/filepath"
	"strings"
)

// mapPath expands a leading ~/ to the home directory.
func mapPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		curUser, err := user.Current()
		if err != nil {
			return path
		}
		return filepath.Join(curUser.HomeDir, strings.TrimPrefix(path, "~/"))
	}
	return path
}
