// Package i18n renders bot replies from YAML catalogs keyed by language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

// Translator resolves reply templates by dotted key, e.g. "send.ok".
type Translator interface {
	T(key string) string
	// Tf formats the template under key with fmt verbs.
	Tf(key string, args ...any) string
	Lang() string
}

// Manager holds one flat catalog per language.
type Manager struct {
	catalogs    map[string]catalog
	defaultLang string
}

type catalog map[string]string

// Load reads the catalogs compiled into the binary.
func Load(defaultLang string) (*Manager, error) {
	return LoadFS(locales, "locales", defaultLang)
}

// LoadFS reads every *.yaml / *.yml file in dir. Each file holds one or more
// top-level language keys; later files extend earlier ones.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Manager, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	m := &Manager{catalogs: make(map[string]catalog), defaultLang: normalize(defaultLang)}
	if m.defaultLang == "" {
		m.defaultLang = "en"
	}

	files := 0
	for _, entry := range entries {
		ext := strings.ToLower(path.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files++

		name := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("i18n: read file %s: %w", name, err)
		}
		if err := m.merge(data); err != nil {
			return nil, fmt.Errorf("i18n: parse file %s: %w", name, err)
		}
	}
	if files == 0 {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}

	if _, ok := m.catalogs[m.defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", m.defaultLang)
	}

	return m, nil
}

// Translator returns a translator for lang, or for the default language when
// lang has no catalog.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	lang = normalize(lang)
	if _, ok := m.catalogs[lang]; !ok {
		lang = m.defaultLang
	}

	return translator{lang: lang, primary: m.catalogs[lang], fallback: m.catalogs[m.defaultLang]}
}

// Languages returns the loaded languages in sorted order.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}

	languages := make([]string, 0, len(m.catalogs))
	for lang := range m.catalogs {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

// Keys lists the template keys of lang.
func (m *Manager) Keys(lang string) []string {
	if m == nil {
		return nil
	}

	cat := m.catalogs[normalize(lang)]
	keys := make([]string, 0, len(cat))
	for key := range cat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) merge(data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if len(doc.Content) == 0 {
		return nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of languages", root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		lang := normalize(root.Content[i].Value)
		if lang == "" {
			continue
		}
		cat, ok := m.catalogs[lang]
		if !ok {
			cat = make(catalog)
			m.catalogs[lang] = cat
		}
		if err := cat.add("", root.Content[i+1]); err != nil {
			return err
		}
	}

	return nil
}

// add walks node and stores every scalar under its dotted path.
func (c catalog) add(prefix string, node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if prefix == "" {
			return fmt.Errorf("line %d: template outside of a key", node.Line)
		}
		c[prefix] = node.Value
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := c.add(key, node.Content[i+1]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("line %d: %s must be a string or a mapping", node.Line, prefix)
	}

	return nil
}

func normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

type translator struct {
	lang     string
	primary  catalog
	fallback catalog
}

func (t translator) Lang() string {
	return t.lang
}

// T returns the template for key, falling back to the default language and
// finally to the key itself.
func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if value, ok := t.primary[key]; ok {
		return value
	}
	if value, ok := t.fallback[key]; ok {
		return value
	}

	return key
}

func (t translator) Tf(key string, args ...any) string {
	return fmt.Sprintf(t.T(key), args...)
}
