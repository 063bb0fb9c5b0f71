package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageindex/internal/app"
	"github.com/JakeFAU/pageindex/internal/config"
)

const memoryConfig = `
logging:
  development: true
crawler:
  seed_urls: ["https://seed.test/"]
store:
  driver: memory
vector:
  driver: memory
errors:
  sink: log
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pageindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(memoryConfig), 0o600))
	return path
}

// captureApp records the app built by the root command.
func captureApp(t *testing.T) **app.App {
	t.Helper()
	var built *app.App
	prev := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		a, err := app.New(ctx, cfg, zap.NewNop())
		built = a
		return a, err
	}
	t.Cleanup(func() { newApp = prev })
	return &built
}

func TestSeedCommand(t *testing.T) {
	built := captureApp(t)

	root := newRootCmd()
	root.SetArgs([]string{"seed", "--config", writeConfig(t)})
	require.NoError(t, root.Execute())

	require.NotNil(t, *built)
	pages, err := (*built).Pages().ListEligiblePages(context.Background(), time.Now(), time.Hour)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "https://seed.test/", pages[0].URL)
}

func TestMigrateCommandWithMemoryStores(t *testing.T) {
	captureApp(t)

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--config", writeConfig(t)})
	require.NoError(t, root.Execute())
}

func TestSearchCommandRequiresAPIKey(t *testing.T) {
	captureApp(t)
	t.Setenv("PAGEINDEX_EMBEDDING_API_KEY", "")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"search", "faculty", "--config", writeConfig(t)})
	require.Error(t, root.Execute())
}

func TestBadConfigFails(t *testing.T) {
	captureApp(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"seed", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.ErrorContains(t, root.Execute(), "load config")
}

func TestResolveAppWithoutApp(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
