package confkit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDotenvPathsHonoursEnvFile(t *testing.T) {
	t.Setenv("ENV_FILE", "/tmp/tradeloop.env")
	paths := dotenvPaths()
	if len(paths) != 1 || paths[0] != "/tmp/tradeloop.env" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestLoadDotenvKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("TL_KEEP=file\nTL_NEW=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("TL_KEEP", "env")
	t.Setenv("TL_NEW", "")
	os.Unsetenv("TL_NEW")

	loadDotenv()
	if got := os.Getenv("TL_KEEP"); got != "env" {
		t.Errorf("TL_KEEP = %q", got)
	}
	if got := os.Getenv("TL_NEW"); got != "file" {
		t.Errorf("TL_NEW = %q", got)
	}

	t.Setenv("DOTENV_OVERLOAD", "1")
	loadDotenv()
	if got := os.Getenv("TL_KEEP"); got != "file" {
		t.Errorf("TL_KEEP after overload = %q", got)
	}
}
