package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/cortexd/pkg/config"
)

func TestBuild_SeedsSubstrateAndWiresApp(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	root := t.TempDir()
	cfg := config.Default()
	cfg.SubstratePath = filepath.Join(root, "substrate")

	a, err := Build(cfg)
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.NotNil(t, a.Orch)
	assert.NotNil(t, a.Server)
	assert.NotNil(t, a.Hub)
	assert.NotNil(t, a.Reports)

	for _, rel := range []string{"PLAN.md", "MEMORY.md", "SKILLS.md", "PROGRESS.md", "CONVERSATION.md", "RESTART_CONTEXT.md"} {
		_, err := os.Stat(filepath.Join(cfg.SubstratePath, rel))
		assert.NoError(t, err, "expected %s to be seeded", rel)
	}
	for _, dir := range []string{"progress", "archive/conversation", "reports", "config"} {
		info, err := os.Stat(filepath.Join(cfg.SubstratePath, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestBuild_IsIdempotent(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	root := t.TempDir()
	cfg := config.Default()
	cfg.SubstratePath = filepath.Join(root, "substrate")

	_, err := Build(cfg)
	require.NoError(t, err)

	planPath := filepath.Join(cfg.SubstratePath, "PLAN.md")
	require.NoError(t, os.WriteFile(planPath, []byte("# Plan\n\n## Tasks\n\n- [ ] keep me\n"), 0o644))

	_, err = Build(cfg)
	require.NoError(t, err)

	content, err := os.ReadFile(planPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "keep me")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
