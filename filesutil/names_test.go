package filesutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNameList(t *testing.T) {
	names := ParseNameList("Thumbs.db\r\n\n# comment\n.DS_Store\n  \nname with spaces\n")
	assert.ElementsMatch(t, []string{"Thumbs.db", ".DS_Store", "name with spaces"}, names.ToSlice())
}

func TestReadNameList(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "exclusions.txt")
	require.NoError(t, os.WriteFile(p, []byte(".git\nnode_modules\n"), 0644))

	names, err := ReadNameList(p)
	require.NoError(t, err)
	assert.True(t, names.Contains(".git"))
	assert.True(t, names.Contains("node_modules"))
	assert.Equal(t, 2, names.Cardinality())

	_, err = ReadNameList(dir)
	assert.Error(t, err)
	assert.False(t, IsReadableFile(filepath.Join(dir, "missing")))
}
