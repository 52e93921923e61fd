package tourmapdal

import (
	"os"
	"path/filepath"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/userextra"
)

const DefaultDataDir = "~/.local/share/tourmap-app"

type PathsConfig struct {
	DataDir  string
	TraceDir string
}

// NewPathsConfig resolves a leading "~" in dataDir. Traces are kept in a subdirectory of the data dir.
func NewPathsConfig(dataDir string) (*PathsConfig, errorsx.Error) {
	expanded, err := userextra.ExpandUser(dataDir)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return &PathsConfig{
		DataDir:  expanded,
		TraceDir: filepath.Join(expanded, "traces"),
	}, nil
}

func (pc *PathsConfig) EnsurePaths() errorsx.Error {
	for _, dirPath := range []string{pc.DataDir, pc.TraceDir} {
		err := os.MkdirAll(dirPath, 0755)
		if err != nil {
			return errorsx.Wrap(err)
		}
	}

	return nil
}

// DefaultCacheConnectionURL is the SQLite database inside the data dir
func (pc *PathsConfig) DefaultCacheConnectionURL() DBFileConnectionURL {
	return DBFileConnectionURL{
		Type:           DBFileTypeSQLite,
		ConnectionPath: filepath.Join(pc.DataDir, "tiles.db"),
	}
}
