package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/domain"
)

const (
	FilterSelfGroup   = "self_group"
	FilterOldMessage  = "old_message"
	FilterManualReply = "manual_reply"
	FilterBlacklist   = "blacklist"
	FilterContext     = "context"
	FilterOptIn       = "opt_in"
	FilterRateLimit   = "rate_limit"
)

// SelfGroup drops messages sent by this account and messages from groups.
type SelfGroup struct{}

func (SelfGroup) Name() string { return FilterSelfGroup }

func (SelfGroup) Check(_ context.Context, msg domain.Message) (Verdict, error) {
	if msg.IsFromSelf {
		return reject("sent by self"), nil
	}
	if msg.IsGroup {
		return reject("group chat"), nil
	}
	return accept("direct message"), nil
}

// OldMessage drops messages older than MaxAge. Transports redeliver history
// after a reconnect and each of those would otherwise be answered.
type OldMessage struct {
	Clock  clock.Clock
	MaxAge time.Duration
}

func (OldMessage) Name() string { return FilterOldMessage }

func (f OldMessage) Check(_ context.Context, msg domain.Message) (Verdict, error) {
	age := f.Clock.Now().Sub(msg.SentAt())
	if age > f.MaxAge {
		return reject(fmt.Sprintf("old message (%dh old)", int(age.Round(time.Hour).Hours()))), nil
	}
	return accept("fresh"), nil
}

// ManualReply drops a message when the operator already answered the chat by
// hand close to the message time. Missing chat data means no manual reply.
type ManualReply struct {
	Window time.Duration
}

func (ManualReply) Name() string { return FilterManualReply }

func (f ManualReply) Check(_ context.Context, msg domain.Message) (Verdict, error) {
	if msg.Chat == nil || msg.Chat.LastMessage == nil {
		return accept("no chat context"), nil
	}
	last := msg.Chat.LastMessage
	if !last.FromSelf || last.FromBot {
		return accept("last message not from operator"), nil
	}
	diff := msg.TimestampSeconds - last.TimestampSeconds
	if diff < 0 {
		diff = -diff
	}
	if diff < int64(f.Window/time.Second) {
		return reject("manual reply detected"), nil
	}
	return accept("operator reply outside window"), nil
}

// Blacklist drops messages from personal contacts that must never get an
// automated reply.
type Blacklist struct {
	Contacts map[string]struct{}
}

// NewBlacklist builds a Blacklist from a list of sender IDs.
func NewBlacklist(senders []string) Blacklist {
	set := make(map[string]struct{}, len(senders))
	for _, s := range senders {
		set[s] = struct{}{}
	}
	return Blacklist{Contacts: set}
}

func (Blacklist) Name() string { return FilterBlacklist }

func (f Blacklist) Check(_ context.Context, msg domain.Message) (Verdict, error) {
	if _, ok := f.Contacts[msg.Sender]; ok {
		return reject("personal contact in blacklist"), nil
	}
	return accept("not blacklisted"), nil
}

// ContextDetector separates personal chats from chats meant for the bot when
// the account is shared with its owner. Undecidable cases go to the bot.
type ContextDetector struct {
	Keywords           Keywords
	PublicNamePatterns []string
}

func (ContextDetector) Name() string { return FilterContext }

func (f ContextDetector) Check(_ context.Context, msg domain.Message) (Verdict, error) {
	if f.Keywords.HasBot(msg.Text) {
		return accept("contains bot keywords"), nil
	}
	if msg.Chat == nil {
		return accept("fallback, context unknown"), nil
	}
	if !msg.Chat.IsKnownContact {
		return accept("public user"), nil
	}
	if containsAny(msg.Chat.DisplayName, f.PublicNamePatterns) {
		return accept("public user by name"), nil
	}
	if f.Keywords.HasTrigger(msg.Text) {
		return accept("contains trigger keywords"), nil
	}
	return reject("personal chat without bot keywords"), nil
}

func displayText(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return string(r)
}
