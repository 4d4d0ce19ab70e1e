package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/devports/kdcdash/pkg/models"
)

const (
	fieldName = iota
	fieldPath
	fieldDescription
	fieldTech
	fieldCategory
	fieldStartScript
	fieldPM2Name
	fieldServiceName
	fieldCount
)

var fieldLabels = [fieldCount]string{
	fieldName:        "Name *",
	fieldPath:        "Path *",
	fieldDescription: "Description",
	fieldTech:        "Tech",
	fieldCategory:    "Category",
	fieldStartScript: "Start script",
	fieldPM2Name:     "PM2 name",
	fieldServiceName: "Service name",
}

var fieldPlaceholders = [fieldCount]string{
	fieldName:        "e.g. mail-api",
	fieldPath:        "/home/me/KDC/mail-api",
	fieldDescription: "what does this project do?",
	fieldTech:        "empty = detect from path",
	fieldCategory:    "agent | infra",
	fieldStartScript: "e.g. node launch.js",
	fieldPM2Name:     "empty = not managed by pm2",
	fieldServiceName: "name in the port registry",
}

// addForm is the add-project dialog
type addForm struct {
	inputs     [fieldCount]textinput.Model
	focus      int
	err        string
	submitting bool
}

func newAddForm() addForm {
	var f addForm
	for i := range f.inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = fieldPlaceholders[i]
		ti.CharLimit = 256
		f.inputs[i] = ti
	}
	f.inputs[fieldCategory].SetValue(string(models.CategoryAgent))
	f.inputs[fieldName].Focus()
	return f
}

func (f *addForm) move(delta int) {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + fieldCount) % fieldCount
	f.inputs[f.focus].Focus()
}

func (f addForm) value(field int) string {
	return strings.TrimSpace(f.inputs[field].Value())
}

func (f addForm) ready() bool {
	return f.value(fieldName) != "" && f.value(fieldPath) != ""
}

// update forwards a keystroke to the focused input
func (f addForm) update(msg tea.Msg) (addForm, tea.Cmd) {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

// project builds the create request. Empty start script and pm2 name are sent
// as null; everything else is sent as typed.
func (f addForm) project() (models.NewProject, error) {
	if !f.ready() {
		return models.NewProject{}, errors.New("name and path are required")
	}
	category := models.Category(strings.ToLower(f.value(fieldCategory)))
	switch category {
	case models.CategoryNone:
		category = models.CategoryAgent
	case models.CategoryAgent, models.CategoryInfra:
	default:
		return models.NewProject{}, fmt.Errorf("category must be agent or infra, not %q", category)
	}

	np := models.NewProject{
		Name:        f.value(fieldName),
		Path:        f.value(fieldPath),
		Description: f.value(fieldDescription),
		Tech:        f.value(fieldTech),
		Category:    category,
		ServiceName: f.value(fieldServiceName),
	}
	if script := f.value(fieldStartScript); script != "" {
		if err := validateStartScript(script); err != nil {
			return models.NewProject{}, err
		}
		np.StartScript = &script
	}
	if pm2 := f.value(fieldPM2Name); pm2 != "" {
		np.PM2Name = &pm2
	}
	return np, nil
}
