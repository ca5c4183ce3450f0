// Package prompts renders the instructions sent to the model.
package prompts

import (
	_ "embed"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
)

//go:embed system.tmpl
var systemText string

var systemTemplate = template.Must(New("system", systemText))

// New parses the template with the sprig functions.
func New(name, text string) (*template.Template, error) {
	t, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s template", name)
	}
	return t, nil
}

// Render executes the template.
func Render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", errors.Wrapf(err, "failed to render %s template", t.Name())
	}
	return b.String(), nil
}

// SystemData is the input of the system prompt.
type SystemData struct {
	// Now is the current time, its location is used for the date.
	Now time.Time
	// Tools are the names of the tools offered to the model.
	Tools []string
}

// Zone returns the IANA name of the time location.
func (d SystemData) Zone() string {
	if d.Now.Location() == nil {
		return "UTC"
	}
	return d.Now.Location().String()
}

// System renders the system prompt of the assistant.
func System(data SystemData) (string, error) {
	if data.Now.IsZero() {
		data.Now = time.Now()
	}
	s, err := Render(systemTemplate, data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}
