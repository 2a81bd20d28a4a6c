package reporting

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

const TemplateFindingDetail = "finding_detail"

const findingDetailTemplate = `
  [{{ .Index }}] {{ .Finding.Severity }} {{ .Finding.Profile.Name }}
      Location: {{ .Finding.Location }}
      Type:     {{ .Finding.Profile.Type }}
      Exploit:  {{ .Finding.Profile.ExploitScenario }}
      Impact:   {{ .Finding.Profile.Impact }}
      Pools:    {{ join .Finding.Profile.AffectedPools ", " }}
{{- if .Finding.Profile.Address }}
      Address:  {{ .Finding.Profile.Address }}
{{- end }}
      Code:     {{ trim .Finding.LineContent }}
`

var defaultFuncs = template.FuncMap{
	"join":  strings.Join,
	"trim":  strings.TrimSpace,
	"upper": strings.ToUpper,
}

type TemplateManager struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

// NewTemplateManager returns a manager preloaded with the console templates.
func NewTemplateManager() *TemplateManager {
	tm := &TemplateManager{
		templates: make(map[string]*template.Template),
	}
	if err := tm.Register(TemplateFindingDetail, findingDetailTemplate, nil); err != nil {
		panic(err)
	}
	return tm
}

func (tm *TemplateManager) Register(name, tpl string, funcs template.FuncMap) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t := template.New(name).Funcs(defaultFuncs)
	if funcs != nil {
		t = t.Funcs(funcs)
	}
	parsed, err := t.Parse(tpl)
	if err != nil {
		return fmt.Errorf("parse %q: %w", name, err)
	}
	tm.templates[name] = parsed
	return nil
}

// LoadDir registers every .tmpl file under dir by base name, replacing
// built-ins of the same name.
func (tm *TemplateManager) LoadDir(dir string, funcs template.FuncMap) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(d.Name()) != ".tmpl" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %q: %w", path, err)
		}
		return tm.Register(strings.TrimSuffix(d.Name(), ".tmpl"), string(b), funcs)
	})
}

func (tm *TemplateManager) Get(name string) (*template.Template, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.templates[name]
	return t, ok
}

func (tm *TemplateManager) Render(w io.Writer, name string, data interface{}) error {
	t, ok := tm.Get(name)
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}
	return t.Execute(w, data)
}
