package validator

import "testing"

type importRequest struct {
	Provider string `json:"provider" validate:"required,oneof=google calendly square"`
	ICSURL   string `json:"ics_url" validate:"omitempty,url"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	v := New()

	err := v.Validate(&importRequest{Provider: "fax", ICSURL: "not a url"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	details := Details(err)
	if len(details) != 2 {
		t.Fatalf("got %d details, want 2: %+v", len(details), details)
	}
	if details[0].Field != "provider" || details[1].Field != "ics_url" {
		t.Errorf("fields = %q, %q; want provider, ics_url", details[0].Field, details[1].Field)
	}
	if details[0].Message != "Must be one of: google calendly square" {
		t.Errorf("message = %q", details[0].Message)
	}
}

func TestValidatePasses(t *testing.T) {
	if err := New().Validate(&importRequest{Provider: "google"}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
