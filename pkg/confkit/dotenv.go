package confkit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce reads .env files into the environment once per process.
// ENV_FILE names a single file. Otherwise .env in the working directory and
// then in the project root are read, the first one winning per variable.
// NO_DOTENV=1 disables loading and DOTENV_OVERLOAD=1 lets the files replace
// variables that are already set.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	for _, p := range dotenvPaths() {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if os.Getenv("DOTENV_OVERLOAD") == "1" {
			_ = godotenv.Overload(p)
		} else {
			_ = godotenv.Load(p)
		}
	}
}

func dotenvPaths() []string {
	if f := os.Getenv("ENV_FILE"); f != "" {
		return []string{f}
	}
	paths := []string{".env"}
	if root, err := ProjectRoot(); err == nil {
		if p := filepath.Join(root, ".env"); !sameFile(p, ".env") {
			paths = append(paths, p)
		}
	}
	return paths
}

func sameFile(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}
