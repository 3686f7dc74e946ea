package prechat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"messaging-client/internal/model"
)

const FieldTypeChoiceList = "ChoiceList"

// Configuration is the subset of the deployment configuration that describes
// the pre-chat form.
type Configuration struct {
	Forms            []Form            `json:"forms"`
	ChoiceListConfig *ChoiceListConfig `json:"choiceListConfig,omitempty"`
}

type Form struct {
	FormType       string  `json:"formType"`
	DisplayContext string  `json:"displayContext"`
	FormFields     []Field `json:"formFields"`
}

type Field struct {
	Name         string `json:"name"`
	Label        string `json:"label,omitempty"`
	Order        int    `json:"order"`
	Type         string `json:"type"`
	Required     bool   `json:"required"`
	IsHidden     bool   `json:"isHidden"`
	MaxLength    int    `json:"maxLength,omitempty"`
	ChoiceListID string `json:"choiceListId,omitempty"`
}

type ChoiceListConfig struct {
	ChoiceList []ChoiceList `json:"choiceList"`
}

type ChoiceList struct {
	ChoiceListID     string            `json:"choiceListId"`
	ChoiceListValues []ChoiceListValue `json:"choiceListValues"`
}

type ChoiceListValue struct {
	ChoiceListValueID   string `json:"choiceListValueId"`
	ChoiceListValueName string `json:"choiceListValueName"`
	Order               int    `json:"order"`
	IsDefaultValue      bool   `json:"isDefaultValue"`
}

// Parse decodes a deployment configuration. An empty document is a
// configuration without a form.
func Parse(raw json.RawMessage) (Configuration, error) {
	var cfg Configuration
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return cfg, nil
	}
	if err := json.Unmarshal(trimmed, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("decode deployment configuration: %w", err)
	}
	return cfg, nil
}

func (c Configuration) Enabled() bool {
	return len(c.Forms) > 0
}

// Fields returns the first form's fields ordered by their order attribute.
func (c Configuration) Fields() []Field {
	if !c.Enabled() {
		return nil
	}
	fields := append([]Field(nil), c.Forms[0].FormFields...)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Order < fields[j].Order })
	return fields
}

func (c Configuration) VisibleFields() []Field {
	return c.filter(false)
}

func (c Configuration) HiddenFields() []Field {
	return c.filter(true)
}

func (c Configuration) filter(hidden bool) []Field {
	var out []Field
	for _, f := range c.Fields() {
		if f.IsHidden == hidden {
			out = append(out, f)
		}
	}
	return out
}

func (c Configuration) ChoiceList(id string) (ChoiceList, bool) {
	if !c.Enabled() || c.ChoiceListConfig == nil {
		return ChoiceList{}, false
	}
	for _, cl := range c.ChoiceListConfig.ChoiceList {
		if cl.ChoiceListID == id {
			return cl, true
		}
	}
	return ChoiceList{}, false
}

// DisplayFrequency is "Conversation" or "Session", or empty when no form is
// configured.
func (c Configuration) DisplayFrequency() string {
	if !c.Enabled() {
		return ""
	}
	return c.Forms[0].DisplayContext
}

// ShouldDisplay reports whether at least one visible field is configured.
func (c Configuration) ShouldDisplay() bool {
	return len(c.VisibleFields()) > 0
}

func (c Configuration) EveryMessagingSession() bool {
	return c.DisplayFrequency() == model.PrechatDisplayEverySession
}

type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("pre-chat field %q %s", e.Field, e.Reason)
}

// Validate checks submitted values against the visible fields. Hidden fields
// are populated by the host page and are not checked.
func (c Configuration) Validate(values map[string]string) error {
	var errs []error
	for _, f := range c.VisibleFields() {
		v := strings.TrimSpace(values[f.Name])
		if v == "" {
			if f.Required {
				errs = append(errs, &FieldError{Field: f.Name, Reason: "is required"})
			}
			continue
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(v) > f.MaxLength {
			errs = append(errs, &FieldError{Field: f.Name, Reason: fmt.Sprintf("exceeds %d characters", f.MaxLength)})
		}
		if f.Type == FieldTypeChoiceList && f.ChoiceListID != "" {
			if cl, ok := c.ChoiceList(f.ChoiceListID); ok && !cl.has(v) {
				errs = append(errs, &FieldError{Field: f.Name, Reason: fmt.Sprintf("has no option %q", v)})
			}
		}
	}
	return errors.Join(errs...)
}

func (cl ChoiceList) has(name string) bool {
	for _, v := range cl.ChoiceListValues {
		if v.ChoiceListValueName == name {
			return true
		}
	}
	return false
}
