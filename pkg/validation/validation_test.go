package validation

import (
	"strings"
	"testing"
)

func TestValidateChannelName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "demo", false},
		{"with punctuation", "team standup #1 (mon)", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
		{"max length", strings.Repeat("a", 64), false},
		{"invalid char", "demo/room", true},
		{"non ascii", "réunion", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannelName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChannelName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"", false},
		{"0", false},
		{"42", false},
		{"4294967295", false},
		{"4294967296", true},
		{"alice_01", false},
		{"alice smith", true},
		{strings.Repeat("a", 256), true},
	}

	for _, tt := range tests {
		err := ValidateUID(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateUID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateDisplayName(t *testing.T) {
	if err := ValidateDisplayName(""); err != nil {
		t.Errorf("empty display name should be allowed: %v", err)
	}
	if err := ValidateDisplayName("Ngọc Anh"); err != nil {
		t.Errorf("unicode display name should be allowed: %v", err)
	}
	if err := ValidateDisplayName("   "); err == nil {
		t.Error("blank display name should be rejected")
	}
	if err := ValidateDisplayName(strings.Repeat("x", 65)); err == nil {
		t.Error("long display name should be rejected")
	}
}

func TestValidateColor(t *testing.T) {
	for _, ok := range []string{"#fff", "#00FF00"} {
		if err := ValidateColor(ok); err != nil {
			t.Errorf("ValidateColor(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"fff", "#ggg", "#12345", "red"} {
		if err := ValidateColor(bad); err == nil {
			t.Errorf("ValidateColor(%q) should fail", bad)
		}
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"https://cdn.example.com/bg.png", false},
		{"file:///srv/backgrounds/office.jpg", false},
		{"", true},
		{"ftp://example.com/bg.png", true},
		{"https://", true},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateChatMessage(t *testing.T) {
	if err := ValidateChatMessage("hello"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateChatMessage("  "); err == nil {
		t.Error("blank message should be rejected")
	}
	if err := ValidateChatMessage(strings.Repeat("x", 1001)); err == nil {
		t.Error("long message should be rejected")
	}
}
