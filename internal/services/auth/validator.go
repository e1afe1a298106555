// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
)

// Validation rule codes. Handlers use them as message IDs.
const (
	CodeNameTooLong       = "name_too_long"
	CodeNameTooShort      = "name_too_short"
	CodeNameCharset       = "name_charset"
	CodeNameUnderscore    = "name_underscore"
	CodeNameLanguage      = "name_language"
	CodeNameReserved      = "name_reserved"
	CodePasswordTooShort  = "password_too_short"
	CodePasswordTooLong   = "password_too_long"
	CodeEmailTooLong      = "email_too_long"
	CodeEmailFormat       = "email_format"
	CodeTooYoung          = "too_young"
	CodeExternalIDFormat  = "external_id_format"
	CodeExternalIDTooLong = "external_id_too_long"
	maxExternalIDLength   = 100
	minimumAgeYears       = 13
)

var (
	nameCharset = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	emailFormat = regexp.MustCompile(`.+?@.+?\..+`)
	leadingInt  = regexp.MustCompile(`^\s*[+-]?[0-9]`)
)

// Rules configures the account input validators.
type Rules struct { //nolint:govet // fieldalignment not critical
	MinNameLength       int
	MaxNameLength       int
	MinPasswordLength   int
	MaxPasswordLength   int
	MaxEmailLength      int
	ReservedNameEndings []string
	NameBlacklist       []string
}

// DefaultRules returns the production defaults.
func DefaultRules() Rules {
	return Rules{
		MinNameLength:       3,
		MaxNameLength:       15,
		MinPasswordLength:   7,
		MaxPasswordLength:   30,
		MaxEmailLength:      254,
		ReservedNameEndings: []string{"_tm"},
		NameBlacklist:       []string{"damn", "shit"},
	}
}

// Validator checks player input against Rules. It is stateless and safe
// for concurrent use.
type Validator struct {
	rules     Rules
	blacklist map[string]struct{}
}

// NewValidator creates a Validator.
func NewValidator(rules Rules) *Validator {
	blacklist := make(map[string]struct{}, len(rules.NameBlacklist))
	for _, word := range rules.NameBlacklist {
		blacklist[strings.ToLower(word)] = struct{}{}
	}
	return &Validator{rules: rules, blacklist: blacklist}
}

// Rules returns the configured rules.
func (v *Validator) Rules() Rules {
	return v.rules
}

// ValidateName checks a new player name. Length is checked first so the
// blacklist scan only ever sees bounded input.
func (v *Validator) ValidateName(name string) error {
	if len(name) > v.rules.MaxNameLength {
		return apperr.Invalid(CodeNameTooLong,
			fmt.Sprintf("playerName must be no more than %d characters long.", v.rules.MaxNameLength),
			map[string]any{"Max": v.rules.MaxNameLength})
	}
	if len(name) < v.rules.MinNameLength {
		return apperr.Invalid(CodeNameTooShort,
			fmt.Sprintf("playerName must be no less than %d characters long.", v.rules.MinNameLength),
			map[string]any{"Min": v.rules.MinNameLength})
	}
	if !nameCharset.MatchString(name) {
		return apperr.Invalid(CodeNameCharset, "Player Name can only contain alphanumeric characters or _", nil)
	}
	if strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
		return apperr.Invalid(CodeNameUnderscore, "Names can neither start nor end with _underscore", nil)
	}
	if v.containsBlacklisted(name) {
		return apperr.Invalid(CodeNameLanguage, "Names cannot contain inappropriate language", nil)
	}
	if v.isReserved(name) {
		return apperr.Invalid(CodeNameReserved, "Names cannot use a reserved format (e.g. ending with '_TM')", nil)
	}
	return nil
}

// containsBlacklisted checks every contiguous substring of name.
func (v *Validator) containsBlacklisted(name string) bool {
	lower := strings.ToLower(name)
	for i := 0; i < len(lower); i++ {
		for j := i + 1; j <= len(lower); j++ {
			if _, ok := v.blacklist[lower[i:j]]; ok {
				return true
			}
		}
	}
	return false
}

func (v *Validator) isReserved(name string) bool {
	lower := strings.ToLower(name)
	for _, ending := range v.rules.ReservedNameEndings {
		if strings.HasSuffix(lower, strings.ToLower(ending)) {
			return true
		}
	}
	return false
}

// ValidatePassword checks the length of a new password.
func (v *Validator) ValidatePassword(password string) error {
	if len(password) < v.rules.MinPasswordLength {
		return apperr.Invalid(CodePasswordTooShort,
			fmt.Sprintf("Passwords must be at least %d characters", v.rules.MinPasswordLength),
			map[string]any{"Min": v.rules.MinPasswordLength})
	}
	if len(password) > v.rules.MaxPasswordLength {
		return apperr.Invalid(CodePasswordTooLong,
			fmt.Sprintf("Passwords must be at most %d characters", v.rules.MaxPasswordLength),
			map[string]any{"Max": v.rules.MaxPasswordLength})
	}
	return nil
}

// ValidateEmail checks the length and rough shape of an email address.
func (v *Validator) ValidateEmail(email string) error {
	if len(email) > v.rules.MaxEmailLength {
		return apperr.Invalid(CodeEmailTooLong,
			fmt.Sprintf("emails must be no more than %d characters long.", v.rules.MaxEmailLength),
			map[string]any{"Max": v.rules.MaxEmailLength})
	}
	if !emailFormat.MatchString(email) {
		return apperr.Invalid(CodeEmailFormat,
			"Email address format is invalid. It should be similar to user@email.com", nil)
	}
	return nil
}

// ValidateBirthDate requires the player to be at least 13 years old at now.
func (v *Validator) ValidateBirthDate(birthDate, now time.Time) error {
	if !birthDate.Before(now.AddDate(-minimumAgeYears, 0, 0)) {
		return apperr.Invalid(CodeTooYoung, "players less than 13 years of age can not create accounts",
			map[string]any{"Age": minimumAgeYears})
	}
	return nil
}

// ValidateExternalID accepts ids that start with an integer and are at most
// 100 characters long.
func (v *Validator) ValidateExternalID(id string) error {
	if !leadingInt.MatchString(id) {
		return apperr.Invalid(CodeExternalIDFormat, "SteamIds must be a number", nil)
	}
	if len(id) > maxExternalIDLength {
		return apperr.Invalid(CodeExternalIDTooLong,
			"steamIds must be no more than "+strconv.Itoa(maxExternalIDLength)+" characters long.",
			map[string]any{"Max": maxExternalIDLength})
	}
	return nil
}
