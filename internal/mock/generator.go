package mock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/inboxhub/realtime/internal/event"
)

// Publisher is the broadcast surface of the realtime hub.
type Publisher interface {
	Broadcast(e event.Event)
	BroadcastToCompany(e event.Event, tenantID string)
	BroadcastToUser(e event.Event, userID string)
	BroadcastToConversation(e event.Event, conversationID string)
}

// Traffic patterns a mock tenant can follow.
const (
	patternChatty   = "chatty"
	patternCampaign = "campaign"
	patternSupport  = "support"
)

var patterns = []string{patternChatty, patternCampaign, patternSupport}

// announceEvery is how many ticks pass between unscoped system notices.
const announceEvery = 50

type mockTenant struct {
	id            string
	pattern       string
	agents        []string
	conversations []string
	campaignSent  int
	campaignSize  int
	messageSeq    int
}

// Generator produces synthetic CRM traffic for local development and load
// checks. Each tenant follows one traffic pattern.
type Generator struct {
	pub      Publisher
	interval time.Duration
	rng      *rand.Rand
	log      zerolog.Logger
	tenants  []*mockTenant
}

func NewGenerator(pub Publisher, tenants int, interval time.Duration, seed int64, log zerolog.Logger) *Generator {
	if tenants <= 0 {
		tenants = 1
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	g := &Generator{
		pub:      pub,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		log:      log.With().Str("component", "mock").Logger(),
	}
	for i := 0; i < tenants; i++ {
		g.tenants = append(g.tenants, newMockTenant(i))
	}
	return g
}

func newMockTenant(i int) *mockTenant {
	t := &mockTenant{
		id:           fmt.Sprintf("tenant-%d", i+1),
		pattern:      patterns[i%len(patterns)],
		campaignSize: 500 + 250*i,
	}
	for a := 0; a < 3; a++ {
		t.agents = append(t.agents, fmt.Sprintf("%s-agent-%d", t.id, a+1))
	}
	for c := 0; c < 5; c++ {
		t.conversations = append(t.conversations, fmt.Sprintf("%s-conv-%d", t.id, c+1))
	}
	return t
}

// Start announces every mock tenant and then emits traffic until ctx is
// cancelled.
func (g *Generator) Start(ctx context.Context) {
	for _, t := range g.tenants {
		g.pub.BroadcastToCompany(event.Event{
			Type:     event.ConnectionStatus,
			Data:     map[string]any{"status": "online", "pattern": t.pattern},
			Priority: event.High,
		}, t.id)
	}
	g.log.Info().Int("tenants", len(g.tenants)).Dur("interval", g.interval).Msg("mock traffic started")
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			g.step(tick)
		}
	}
}

func (g *Generator) step(tick int) {
	for _, t := range g.tenants {
		switch t.pattern {
		case patternChatty:
			g.advanceChatty(t, tick)
		case patternCampaign:
			g.advanceCampaign(t, tick)
		case patternSupport:
			g.advanceSupport(t, tick)
		}
	}
	if tick%announceEvery == 0 {
		g.pub.Broadcast(event.Event{
			Type:     event.SystemNotification,
			Data:     map[string]any{"message": "scheduled maintenance window", "tick": tick},
			Priority: event.High,
		})
	}
}

func (g *Generator) pick(items []string) string {
	return items[g.rng.Intn(len(items))]
}

// advanceChatty simulates live conversations: messages plus a stream of
// batchable typing, presence and read signals.
func (g *Generator) advanceChatty(t *mockTenant, tick int) {
	conv := g.pick(t.conversations)
	agent := g.pick(t.agents)

	for i := 0; i < 1+g.rng.Intn(4); i++ {
		g.pub.BroadcastToConversation(event.Event{
			Type:      event.TypingIndicator,
			Data:      map[string]any{"userId": agent, "typing": true},
			TenantID:  t.id,
			Priority:  event.Low,
			Batchable: true,
		}, conv)
	}

	if tick%2 == 0 {
		t.messageSeq++
		g.pub.BroadcastToConversation(event.Event{
			Type:     event.NewMessage,
			Data:     map[string]any{"messageId": fmt.Sprintf("%s-msg-%d", t.id, t.messageSeq), "from": "contact"},
			TenantID: t.id,
		}, conv)
		g.pub.BroadcastToConversation(event.Event{
			Type:      event.ReadReceipt,
			Data:      map[string]any{"messageId": fmt.Sprintf("%s-msg-%d", t.id, t.messageSeq), "readBy": agent},
			TenantID:  t.id,
			Batchable: true,
		}, conv)
	}

	if tick%5 == 0 {
		g.pub.BroadcastToCompany(event.Event{
			Type:      event.PresenceUpdate,
			Data:      map[string]any{"userId": agent, "status": "online"},
			Priority:  event.Low,
			Batchable: true,
		}, t.id)
	}
}

// advanceCampaign simulates a bulk send reporting progress until it
// completes, then starts over.
func (g *Generator) advanceCampaign(t *mockTenant, tick int) {
	t.campaignSent += 10 + g.rng.Intn(40)
	if t.campaignSent > t.campaignSize {
		t.campaignSent = t.campaignSize
	}

	g.pub.BroadcastToCompany(event.Event{
		Type:      event.CampaignProgress,
		Data:      map[string]any{"sent": t.campaignSent, "total": t.campaignSize},
		Priority:  event.Low,
		Batchable: true,
	}, t.id)

	if tick%3 == 0 {
		g.pub.BroadcastToCompany(event.Event{
			Type:      event.AnalyticsUpdate,
			Data:      map[string]any{"deliveryRate": 0.9 + g.rng.Float64()/10},
			Priority:  event.Low,
			Batchable: true,
		}, t.id)
	}

	if t.campaignSent == t.campaignSize {
		g.pub.BroadcastToCompany(event.Event{
			Type: event.SystemNotification,
			Data: map[string]any{"message": "campaign completed", "total": t.campaignSize},
		}, t.id)
		g.log.Debug().Str("tenant", t.id).Int("total", t.campaignSize).Msg("mock campaign completed")
		t.campaignSent = 0
	}
}

// advanceSupport simulates a support desk: assignments to individual agents
// and message delivery status.
func (g *Generator) advanceSupport(t *mockTenant, tick int) {
	conv := g.pick(t.conversations)

	if tick%4 == 0 {
		agent := g.pick(t.agents)
		g.pub.BroadcastToUser(event.Event{
			Type:           event.ConversationAssigned,
			Data:           map[string]any{"assignee": agent},
			TenantID:       t.id,
			ConversationID: conv,
			Priority:       event.High,
		}, agent)
	}

	g.pub.BroadcastToConversation(event.Event{
		Type:     event.MessageStatus,
		Data:     map[string]any{"status": g.pick([]string{"sent", "delivered", "read"})},
		TenantID: t.id,
	}, conv)

	if tick%10 == 0 {
		g.pub.BroadcastToCompany(event.Event{
			Type: event.ContactUpdate,
			Data: map[string]any{"contactId": fmt.Sprintf("%s-contact-%d", t.id, g.rng.Intn(100))},
		}, t.id)
		g.pub.BroadcastToConversation(event.Event{
			Type:     event.ConversationUpdate,
			Data:     map[string]any{"status": "open"},
			TenantID: t.id,
		}, conv)
	}
}
