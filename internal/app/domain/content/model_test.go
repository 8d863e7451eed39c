package content

import (
	"encoding/json"
	"testing"
)

func TestValidateValue(t *testing.T) {
	cases := []struct {
		name    string
		typ     Type
		value   string
		wantErr bool
	}{
		{"text string", TypeText, `"Welcome"`, false},
		{"text object rejected", TypeText, `{"x":1}`, true},
		{"rich text string", TypeRichText, `"<p>hi</p>"`, false},
		{"image ref", TypeImageRef, `"img/hero.png"`, false},
		{"image ref empty", TypeImageRef, `""`, true},
		{"structured object", TypeStructured, `{"plans":[{"name":"10h"}]}`, false},
		{"structured array", TypeStructured, `[1,2,3]`, false},
		{"structured scalar rejected", TypeStructured, `"oops"`, true},
		{"invalid json", TypeText, `{"unterminated`, true},
		{"empty value", TypeText, ``, true},
		{"unknown type", Type("video"), `"x"`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateValue(tc.typ, json.RawMessage(tc.value))
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateValue(%s, %s) = %v, wantErr=%v", tc.typ, tc.value, err, tc.wantErr)
			}
		})
	}
}

func TestValidateType(t *testing.T) {
	for _, typ := range []Type{TypeText, TypeRichText, TypeImageRef, TypeStructured} {
		if err := ValidateType(typ); err != nil {
			t.Fatalf("%s must be valid: %v", typ, err)
		}
	}
	if err := ValidateType(Type("pdf")); err == nil {
		t.Fatal("unknown type must be rejected")
	}
}
