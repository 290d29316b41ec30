package application

import (
	"errors"
	"testing"
)

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name      string
		fieldName string
		value     string
		wantErr   bool
	}{
		{
			name:      "valid value",
			fieldName: "claim",
			value:     "Transformers achieved 28.4 BLEU",
			wantErr:   false,
		},
		{
			name:      "empty string",
			fieldName: "claim",
			value:     "",
			wantErr:   true,
		},
		{
			name:      "whitespace only",
			fieldName: "query",
			value:     "   ",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequired(tt.fieldName, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequired() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				var valErr *ValidationError
				if !errors.As(err, &valErr) {
					t.Errorf("expected ValidationError, got %T", err)
				}
				if valErr.Field != tt.fieldName {
					t.Errorf("expected field %s, got %s", tt.fieldName, valErr.Field)
				}
			}
		})
	}
}

func TestValidateDocumentID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "normalized id", id: "vaswani2017", wantErr: false},
		{name: "collision id", id: "vaswani2017-0a1b2c3d", wantErr: false},
		{name: "empty", id: "", wantErr: true},
		{name: "uppercase", id: "Vaswani2017", wantErr: true},
		{name: "spaces", id: "attention is all", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocumentID("documentID", tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDocumentID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	nf := &NotFoundError{What: "paper", ID: "nope"}
	if !errors.Is(nf, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if !errors.Is(ErrSectionNotFound, ErrNotFound) {
		t.Error("ErrSectionNotFound should match ErrNotFound")
	}

	cause := errors.New("429 Too Many Requests")
	var adapterErr *AdapterError
	if !errors.As(Transient("summarize", cause), &adapterErr) || adapterErr.Kind != FailureTransient {
		t.Errorf("expected transient adapter error, got %v", adapterErr)
	}
	if !errors.Is(Fatal("convert", cause), cause) {
		t.Error("adapter errors should unwrap to their cause")
	}
}
