package relay

import (
	"math/rand"
	"strings"
	"time"

	"github.com/voxrelay/voxrelay/pkg/voxrelay/channels"
)

// Sampler returns a pseudo-random float in [0, 1). Injectable so tests can
// pin the spontaneous-participation behavior to 0 or 1.
type Sampler func() float64

// Filter decides whether an inbound message warrants a reply.
type Filter struct {
	// self yields the bot's mention token. Read per evaluation, not
	// captured: channels resolve their identity on connect, after the
	// filter is built.
	self    func() string
	name    string // matched case-insensitively in message text
	peers   map[string]struct{}
	rate    float64
	sampler Sampler
}

// NewFilter builds the relevance filter. self yields the bot's mention token
// on the platform; peers are display names of other assistants.
func NewFilter(self func() string, name string, peers []string, rate float64, sampler Sampler) *Filter {
	if self == nil {
		self = func() string { return "" }
	}
	if sampler == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		sampler = rng.Float64
	}
	peerSet := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		peerSet[strings.ToUpper(p)] = struct{}{}
	}
	return &Filter{
		self:    self,
		name:    strings.ToLower(name),
		peers:   peerSet,
		rate:    rate,
		sampler: sampler,
	}
}

// Relevant reports whether the message should trigger a reply. Any one
// condition suffices: a direct mention, the assistant's name in the text, a
// peer-assistant author, a reply to one of the assistant's own messages, or
// the participation sampler firing.
func (f *Filter) Relevant(msg *channels.IncomingMessage) bool {
	if msg.MentionsSelf {
		return true
	}
	if f.name != "" && strings.Contains(strings.ToLower(msg.Content), f.name) {
		return true
	}
	if _, ok := f.peers[strings.ToUpper(msg.AuthorName)]; ok {
		return true
	}
	if msg.ReplyToAuthor != "" && msg.ReplyToAuthor == f.self() {
		return true
	}
	return f.rate > 0 && f.sampler() < f.rate
}
