package prechat

import (
	"encoding/json"
	"errors"
	"testing"
)

const deploymentConfig = `{
	"forms": [{
		"formType": "PreChat",
		"displayContext": "Session",
		"formFields": [
			{"name": "Email", "order": 2, "type": "Email", "required": true, "isHidden": false, "maxLength": 20},
			{"name": "_firstName", "order": 1, "type": "Text", "required": true, "isHidden": false, "maxLength": 5},
			{"name": "Topic", "order": 3, "type": "ChoiceList", "required": false, "isHidden": false, "choiceListId": "cl1"},
			{"name": "PageURL", "order": 0, "type": "Text", "required": true, "isHidden": true}
		]
	}],
	"choiceListConfig": {
		"choiceList": [{
			"choiceListId": "cl1",
			"choiceListValues": [
				{"choiceListValueId": "v1", "choiceListValueName": "Billing", "order": 1},
				{"choiceListValueId": "v2", "choiceListValueName": "Support", "order": 2}
			]
		}]
	}
}`

func mustParse(t *testing.T, raw string) Configuration {
	t.Helper()
	cfg, err := Parse(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg
}

func names(fields []Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Name)
	}
	return out
}

func TestFieldQueries(t *testing.T) {
	cfg := mustParse(t, deploymentConfig)

	if !cfg.Enabled() || !cfg.ShouldDisplay() || !cfg.EveryMessagingSession() {
		t.Fatalf("expected an enabled every-session form")
	}
	if got := names(cfg.Fields()); len(got) != 4 || got[0] != "PageURL" || got[1] != "_firstName" || got[3] != "Topic" {
		t.Fatalf("fields not sorted by order: %v", got)
	}
	if got := names(cfg.VisibleFields()); len(got) != 3 {
		t.Fatalf("visible fields = %v", got)
	}
	if got := names(cfg.HiddenFields()); len(got) != 1 || got[0] != "PageURL" {
		t.Fatalf("hidden fields = %v", got)
	}
	cl, ok := cfg.ChoiceList("cl1")
	if !ok || len(cl.ChoiceListValues) != 2 {
		t.Fatalf("choice list = %#v, %v", cl, ok)
	}
	if _, ok := cfg.ChoiceList("missing"); ok {
		t.Fatal("unexpected choice list")
	}
}

func TestEmptyConfiguration(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", `{"forms":[]}`} {
		cfg := mustParse(t, raw)
		if cfg.Enabled() || cfg.ShouldDisplay() || cfg.EveryMessagingSession() || cfg.Fields() != nil {
			t.Fatalf("%q: expected no form", raw)
		}
		if err := cfg.Validate(nil); err != nil {
			t.Fatalf("%q: validate: %v", raw, err)
		}
	}
}

func TestOnlyHiddenFieldsAreNotDisplayed(t *testing.T) {
	cfg := mustParse(t, `{"forms":[{"displayContext":"Conversation","formFields":[{"name":"a","isHidden":true}]}]}`)
	if !cfg.Enabled() || cfg.ShouldDisplay() || cfg.EveryMessagingSession() {
		t.Fatal("hidden-only form should be enabled but not displayed")
	}
}

func TestValidate(t *testing.T) {
	cfg := mustParse(t, deploymentConfig)

	if err := cfg.Validate(map[string]string{"_firstName": "Ada", "Email": "ada@x.test", "Topic": "Billing"}); err != nil {
		t.Fatalf("valid submission rejected: %v", err)
	}

	err := cfg.Validate(map[string]string{"_firstName": "Augusta", "Email": "  ", "Topic": "Sales"})
	if err == nil {
		t.Fatal("expected errors")
	}
	fields := map[string]bool{}
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var fe *FieldError
		if !errors.As(e, &fe) {
			t.Fatalf("unexpected error type %T", e)
		}
		fields[fe.Field] = true
	}
	if !fields["_firstName"] || !fields["Email"] || !fields["Topic"] || fields["PageURL"] {
		t.Fatalf("unexpected failing fields: %v", fields)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	if _, err := Parse(json.RawMessage(`{"forms":`)); err == nil {
		t.Fatal("expected decode error")
	}
}
