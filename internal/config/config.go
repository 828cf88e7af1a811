package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	PolicyFailOpen   = "fail_open"
	PolicyFailClosed = "fail_closed"

	ValidationPermissive = "permissive"
	ValidationStrict     = "strict"

	ResponseFormatJSONSchema = "json_schema"
	ResponseFormatJSONObject = "json_object"
)

// Bot is the static configuration of the assistant. It is resolved once at
// startup and treated as read-only afterwards.
type Bot struct {
	BotName    string `yaml:"bot_name"`
	AgencyName string `yaml:"agency_name"`

	Limits Limits `yaml:"limits"`

	Admins           []string `yaml:"admins"`
	PersonalContacts []string `yaml:"personal_contacts"`

	BotKeywords        []string `yaml:"bot_keywords"`
	TriggerKeywords    []string `yaml:"trigger_keywords"`
	PublicNamePatterns []string `yaml:"public_name_patterns"`

	WorkingHours WorkingHours `yaml:"working_hours"`

	// FilterPolicies overrides the error policy of individual admission
	// filters, keyed by filter name.
	FilterPolicies map[string]string `yaml:"filter_policies"`

	Registration Registration `yaml:"registration"`
	Dispatch     Dispatch     `yaml:"dispatch"`
	Contact      Contact      `yaml:"contact"`
	Messages     Messages     `yaml:"messages"`
	AI           AI           `yaml:"ai"`

	Programs      []Program  `yaml:"programs"`
	FAQ           []FAQEntry `yaml:"faq"`
	KnowledgeBase string     `yaml:"knowledge_base"`

	location *time.Location
}

type Limits struct {
	MessageMaxAge     time.Duration `yaml:"message_max_age"`
	RateLimitMax      int           `yaml:"rate_limit_max"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	ManualReplyWindow time.Duration `yaml:"manual_reply_window"`
}

type WorkingHours struct {
	Timezone string `yaml:"timezone"`
	Start    int    `yaml:"start"`
	End      int    `yaml:"end"`
	// Days uses time.Weekday numbering (0 = Sunday).
	Days []int `yaml:"days"`
}

type Registration struct {
	Validation string `yaml:"validation"`
}

type Dispatch struct {
	// DataCommandPublic lets any sender run the registration listing command.
	DataCommandPublic bool `yaml:"data_command_public"`
}

type Contact struct {
	Phone    string `yaml:"phone"`
	WhatsApp string `yaml:"whatsapp"`
	Email    string `yaml:"email"`
	Address  string `yaml:"address"`
}

type Messages struct {
	RateLimitWarning  string `yaml:"rate_limit_warning"`
	OutsideHours      string `yaml:"outside_hours"`
	AIErrorFallback   string `yaml:"ai_error_fallback"`
	Processing        string `yaml:"processing"`
	AIResponseSuffix  string `yaml:"ai_response_suffix"`
	FAQResponseSuffix string `yaml:"faq_response_suffix"`
	StoreError        string `yaml:"store_error"`
	OutOfScope        string `yaml:"out_of_scope"`
}

type AI struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Moderation  bool    `yaml:"moderation"`

	// ResponseFormat is json_schema for providers with strict schema support
	// and json_object otherwise.
	ResponseFormat string `yaml:"response_format"`
}

type Program struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description" json:"description"`
	Requirements []string `yaml:"requirements" json:"requirements"`
	HowToApply   string   `yaml:"how_to_apply" json:"howToApply"`
}

// FAQEntry maps a set of keywords to a canned answer. Entries are matched in
// order and the first hit wins.
type FAQEntry struct {
	Keywords []string `yaml:"keywords"`
	Answer   string   `yaml:"answer"`
}

// Parse overlays a YAML document onto the defaults and validates the result.
// Lists present in the document replace the default lists.
func Parse(data []byte) (*Bot, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses the YAML file at path. An empty path yields the
// defaults.
func LoadFile(path string) (*Bot, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

func (b *Bot) validate() error {
	if b.Limits.MessageMaxAge <= 0 {
		return errors.New("config: limits.message_max_age must be positive")
	}
	if b.Limits.RateLimitMax <= 0 {
		return errors.New("config: limits.rate_limit_max must be positive")
	}
	if b.Limits.RateLimitWindow <= 0 {
		return errors.New("config: limits.rate_limit_window must be positive")
	}
	if b.Limits.ManualReplyWindow < 0 {
		return errors.New("config: limits.manual_reply_window must not be negative")
	}
	wh := b.WorkingHours
	if wh.Start < 0 || wh.End > 24 || wh.Start >= wh.End {
		return fmt.Errorf("config: invalid working hours %d-%d", wh.Start, wh.End)
	}
	for _, d := range wh.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("config: invalid working day %d", d)
		}
	}
	loc, err := time.LoadLocation(wh.Timezone)
	if err != nil {
		return fmt.Errorf("config: load timezone %q: %w", wh.Timezone, err)
	}
	b.location = loc

	for name, p := range b.FilterPolicies {
		if p != PolicyFailOpen && p != PolicyFailClosed {
			return fmt.Errorf("config: filter %q has unknown policy %q", name, p)
		}
	}
	switch b.Registration.Validation {
	case ValidationPermissive, ValidationStrict:
	default:
		return fmt.Errorf("config: unknown registration validation %q", b.Registration.Validation)
	}
	switch b.AI.ResponseFormat {
	case ResponseFormatJSONSchema, ResponseFormatJSONObject:
	default:
		return fmt.Errorf("config: unknown ai.response_format %q", b.AI.ResponseFormat)
	}
	if strings.TrimSpace(b.AI.Model) == "" {
		return errors.New("config: ai.model is required")
	}
	for i, e := range b.FAQ {
		if len(e.Keywords) == 0 || strings.TrimSpace(e.Answer) == "" {
			return fmt.Errorf("config: faq entry %d needs keywords and an answer", i)
		}
	}
	for i, p := range b.Programs {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("config: program %d has no name", i)
		}
	}
	b.BotKeywords = lowerAll(b.BotKeywords)
	b.TriggerKeywords = lowerAll(b.TriggerKeywords)
	b.PublicNamePatterns = lowerAll(b.PublicNamePatterns)
	return nil
}

// Location is the time zone working hours and greetings are evaluated in.
func (b *Bot) Location() *time.Location {
	if b.location == nil {
		return time.UTC
	}
	return b.location
}

// IsWorkingHours reports whether t falls on a working day within the
// configured hour range.
func (b *Bot) IsWorkingHours(t time.Time) bool {
	local := t.In(b.Location())
	working := false
	for _, d := range b.WorkingHours.Days {
		if time.Weekday(d) == local.Weekday() {
			working = true
			break
		}
	}
	h := local.Hour()
	return working && h >= b.WorkingHours.Start && h < b.WorkingHours.End
}

// IsAdmin reports whether sender is in the admin set.
func (b *Bot) IsAdmin(sender string) bool {
	return contains(b.Admins, sender)
}

// Policy returns the configured error policy for a filter, or def when none is
// configured.
func (b *Bot) Policy(filter, def string) string {
	if p, ok := b.FilterPolicies[filter]; ok {
		return p
	}
	return def
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		// Surrounding spaces are significant ("bu " must not match "budi").
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, strings.ToLower(s))
	}
	return out
}
