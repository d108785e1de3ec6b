package common

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

const (
	appDirName  = "cxsign"
	testDirName = "test"

	// TestEnvVar redirects all persisted state into a test subdirectory.
	TestEnvVar = "TEST_CXSIGN"

	envPathStdin = "stdin"
)

// ConfigDir resolves the directory holding protocol.toml, cx.db and the
// per-uid cookie files, creating it if needed.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, appDirName)
	if EnvToBool(os.Getenv(TestEnvVar)) {
		dir = filepath.Join(dir, testDirName)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}

	return dir, nil
}

func EnvToBool(value string) bool {
	switch value {
	case "1", "Y", "y", "yes", "true", "YES", "TRUE":
		return true
	default:
		return false
	}
}

// EnvMap reads credentials and overrides either from the process
// environment or from a dotenv file ("stdin" reads the file from stdin).
type EnvMap struct {
	path   string
	envMap map[string]string
	lock   sync.Mutex
}

func NewEnvMap(path string) (*EnvMap, error) {
	var envMap map[string]string

	if path == envPathStdin {
		var err error
		envMap, err = godotenv.Parse(os.Stdin)
		if err != nil {
			return nil, err
		}
	} else if len(path) > 0 {
		var err error
		envMap, err = godotenv.Read(path)
		if err != nil {
			return nil, err
		}
	}

	return &EnvMap{envMap: envMap, path: path}, nil
}

func (em *EnvMap) GetEx(key string) (string, bool) {
	if len(key) == 0 {
		return "", false
	}

	em.lock.Lock()
	defer em.lock.Unlock()

	if em.envMap == nil {
		return os.LookupEnv(key)
	}

	v, ok := em.envMap[key]
	return v, ok
}

func (em *EnvMap) Get(key string) string {
	v, ok := em.GetEx(key)
	if !ok {
		slog.Warn("Environment variable is not set", "key", key)
	}

	return v
}
