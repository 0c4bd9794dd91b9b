package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/pendsync/internal/flow"
)

// Selectors locates every element the portal flow touches.
type Selectors struct {
	LoginID       flow.Locator   `yaml:"login_id"`
	Password      flow.Locator   `yaml:"password"`
	Submit        flow.Locator   `yaml:"submit"`
	CloseControls []flow.Locator `yaml:"close_controls"`
	Masks         []flow.Locator `yaml:"masks"`
	ExportButton  flow.Locator   `yaml:"export_button"`
	ExportTaskTab []flow.Locator `yaml:"export_task_tab"`
	Download      flow.Locator   `yaml:"download"`
}

// DefaultSelectors matches the SPX portal's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		LoginID:       flow.CSS(`[placeholder="Ops ID"]`),
		Password:      flow.CSS(`[placeholder="Senha"]`),
		Submit:        flow.CSS(`form button`),
		CloseControls: append([]flow.Locator(nil), flow.DefaultCloseControls...),
		Masks:         append([]flow.Locator(nil), flow.DefaultMasks...),
		ExportButton:  flow.Role("button", "Exportar"),
		ExportTaskTab: []flow.Locator{flow.Text("Exportar tarefa"), flow.Text("Export Task")},
		Download:      flow.Text("Baixar"),
	}
}

// LoadSelectors overlays the YAML file at path onto base. Keys absent from
// the file keep base's value.
func LoadSelectors(path string, base Selectors) (Selectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("selectors config: %w", err)
	}
	var file Selectors
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("selectors config: %w", err)
	}
	out := base
	mergeLocator(&out.LoginID, file.LoginID)
	mergeLocator(&out.Password, file.Password)
	mergeLocator(&out.Submit, file.Submit)
	mergeLocator(&out.ExportButton, file.ExportButton)
	mergeLocator(&out.Download, file.Download)
	if file.CloseControls != nil {
		out.CloseControls = file.CloseControls
	}
	if file.Masks != nil {
		out.Masks = file.Masks
	}
	if file.ExportTaskTab != nil {
		out.ExportTaskTab = file.ExportTaskTab
	}
	for name, l := range map[string]flow.Locator{
		"login_id":      out.LoginID,
		"password":      out.Password,
		"submit":        out.Submit,
		"export_button": out.ExportButton,
		"download":      out.Download,
	} {
		if l.IsZero() {
			return base, fmt.Errorf("selectors config: %s has no css, text or role", name)
		}
	}
	if len(out.CloseControls) == 0 && len(out.Masks) == 0 {
		return base, fmt.Errorf("selectors config: at least one close control or mask is required")
	}
	return out, nil
}

func mergeLocator(dst *flow.Locator, src flow.Locator) {
	if !src.IsZero() {
		*dst = src
	}
}
