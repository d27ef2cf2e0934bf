package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// ChannelNameRegex matches the engine's channel charset.
	ChannelNameRegex = regexp.MustCompile(`^[a-zA-Z0-9 !#$%&()+\-:;<=.>?@\[\]^_{}|~,]+$`)

	// UserAccountRegex matches string uids.
	UserAccountRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

	// HexColorRegex matches #rgb and #rrggbb.
	HexColorRegex = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// ValidateChannelName validates channel identifier
func ValidateChannelName(name string) error {
	if name == "" {
		return fmt.Errorf("channel name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("channel name is too long (max 64 bytes)")
	}
	if !ChannelNameRegex.MatchString(name) {
		return fmt.Errorf("channel name contains invalid characters")
	}
	return nil
}

// ValidateUID accepts an empty uid (engine-assigned), a 32-bit unsigned number,
// or a user account string.
func ValidateUID(uid string) error {
	if uid == "" {
		return nil
	}
	if n, err := strconv.ParseUint(uid, 10, 64); err == nil {
		if n > 1<<32-1 {
			return fmt.Errorf("numeric uid out of range (max %d)", uint64(1<<32-1))
		}
		return nil
	}
	if len(uid) > 255 {
		return fmt.Errorf("uid is too long (max 255 characters)")
	}
	if !UserAccountRegex.MatchString(uid) {
		return fmt.Errorf("invalid uid format")
	}
	return nil
}

// ValidateDisplayName allows an empty name; otherwise it must be valid UTF-8
// of at most 64 characters.
func ValidateDisplayName(name string) error {
	if name == "" {
		return nil
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return ValidateStringLength(strings.TrimSpace(name), 1, 64, "display name")
}

// ValidateColor validates hex color
func ValidateColor(color string) error {
	if !HexColorRegex.MatchString(color) {
		return fmt.Errorf("invalid color %q (expected #rgb or #rrggbb)", color)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
		return fmt.Errorf("invalid URL scheme (must be http, https, or file)")
	}
	if u.Scheme != "file" && u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateChatMessage validates outgoing chat content
func ValidateChatMessage(content string) error {
	if err := ValidateNonEmptyString(content, "message"); err != nil {
		return err
	}
	return ValidateStringLength(content, 1, 1000, "message")
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
