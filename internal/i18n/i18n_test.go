package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedCatalogs(t *testing.T) {
	manager, err := Load("en")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "ru"}, manager.Languages())

	en := manager.Translator("en")
	assert.Equal(t, "No balances yet.", en.T("balance.empty"))
	assert.Equal(t, "Currencies: 🪙", en.Tf("currencies.list", "🪙"))
}

func TestTranslator_FallsBackToDefault(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.yaml": {Data: []byte("en:\n  a: A\n  nested:\n    b: B\n")},
		"loc/de.yml":  {Data: []byte("de:\n  a: Ä\n")},
	}

	manager, err := LoadFS(fsys, "loc", "en")
	require.NoError(t, err)

	de := manager.Translator("DE ")
	assert.Equal(t, "de", de.Lang())
	assert.Equal(t, "Ä", de.T("a"))
	assert.Equal(t, "B", de.T("nested.b"))
	assert.Equal(t, "missing.key", de.T("missing.key"))

	assert.Equal(t, "en", manager.Translator("fr").Lang())
}

func TestLoadFS_MissingDefault(t *testing.T) {
	fsys := fstest.MapFS{"loc/de.yaml": {Data: []byte("de:\n  a: A\n")}}

	_, err := LoadFS(fsys, "loc", "en")
	assert.Error(t, err)
}

func TestCatalogsShareKeys(t *testing.T) {
	manager, err := Load("en")
	require.NoError(t, err)

	assert.Equal(t, manager.Keys("en"), manager.Keys("ru"))
}

func TestLoadFS_RejectsListTemplates(t *testing.T) {
	fsys := fstest.MapFS{"loc/en.yaml": {Data: []byte("en:\n  a:\n    - one\n    - two\n")}}

	_, err := LoadFS(fsys, "loc", "en")
	assert.ErrorContains(t, err, "a must be a string or a mapping")
}

func TestLoadFS_MergesFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/a.yaml":   {Data: []byte("en:\n  a: A\n")},
		"loc/b.yaml":   {Data: []byte("en:\n  b: B\n")},
		"loc/note.txt": {Data: []byte("ignored")},
	}

	manager, err := LoadFS(fsys, "loc", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, manager.Keys("en"))
}
