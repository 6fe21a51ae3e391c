package main

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	envDumpDir     = "CONVMAP_DUMP_DIR"
	defaultDumpDir = "gmap"
)

// resolveDumpDir picks the dump directory: the flag, then the environment,
// then the config file, then ./gmap.
func resolveDumpDir(flag, configured string) string {
	for _, dir := range []string{flag, os.Getenv(envDumpDir), configured} {
		if dir = strings.TrimSpace(dir); dir != "" {
			return filepath.Clean(dir)
		}
	}
	return defaultDumpDir
}
