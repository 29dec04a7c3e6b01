package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() tcp.Config {
	cfg := tcp.DefaultConfig()
	cfg.StopTimeout = 200 * time.Millisecond
	return cfg
}

func startPublisher(t *testing.T) *Publisher {
	t.Helper()
	p, err := NewPublisher("heap", testConfig())
	require.NoError(t, err)
	require.NoError(t, p.Start())
	t.Cleanup(p.Stop)
	return p
}

// subscribe connects a subscriber with templates and waits until the
// publisher has mirrored them
func subscribe(t *testing.T, p *Publisher, templates ...*Template) (*Subscription, chan *wire.Message) {
	t.Helper()
	before := mirrored(p)

	sub := NewSubscription("127.0.0.1", p.Port(), testConfig())
	inbox := make(chan *wire.Message, 16)
	sub.OnMessage(func(_ *Subscription, msg *wire.Message) { inbox <- msg })
	sub.OnInternalMessage(func(_ *Subscription, msg *wire.Message) { inbox <- msg })
	for _, tmpl := range templates {
		require.NoError(t, sub.RegisterTemplate(tmpl, nil))
	}
	require.NoError(t, sub.Start(context.Background()))
	t.Cleanup(sub.Stop)

	require.Eventually(t, func() bool { return mirrored(p) == before+len(templates) },
		2*time.Second, 10*time.Millisecond, "templates not mirrored")
	return sub, inbox
}

func mirrored(p *Publisher) int {
	n := 0
	for _, s := range p.Subscriptions() {
		n += len(s.Templates())
	}
	return n
}

func expect(t *testing.T, inbox chan *wire.Message) *wire.Message {
	t.Helper()
	select {
	case msg := <-inbox:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("expected a message")
		return nil
	}
}

func expectNothing(t *testing.T, inbox chan *wire.Message) {
	t.Helper()
	select {
	case msg := <-inbox:
		t.Fatalf("unexpected message %s", msg.Name())
	case <-time.After(150 * time.Millisecond):
	}
}

func TestNewPublisherRequiresName(t *testing.T) {
	_, err := NewPublisher("", testConfig())
	assert.ErrorIs(t, err, wire.ErrConfiguration)
}

func TestPublisherForwardsByTemplate(t *testing.T) {
	p := startPublisher(t)

	_, wantsT := subscribe(t, p, NewTemplate("T", NewField("a", wire.Int)))
	_, wantsU := subscribe(t, p, NewTemplate("U"))
	sender, senderInbox := subscribe(t, p, NewTemplate("T", NewField("a", wire.Int)))

	msg := wire.NewMessage("T")
	require.NoError(t, msg.AddInt("a", 5))
	require.NoError(t, sender.SendMessage(msg))

	got := expect(t, wantsT)
	a, err := got.GetInt("a")
	require.NoError(t, err)
	assert.EqualValues(t, 5, a)

	expectNothing(t, wantsU)
	expectNothing(t, senderInbox)
}

func TestPublisherDropsUnmatchedShape(t *testing.T) {
	p := startPublisher(t)
	_, inbox := subscribe(t, p, NewTemplate("T", NewField("a", wire.Int)))
	sender, _ := subscribe(t, p)

	msg := wire.NewMessage("T")
	require.NoError(t, msg.AddInt("b", 5))
	require.NoError(t, sender.SendMessage(msg))

	expectNothing(t, inbox)
}

func TestPublisherForwardsInternalToAll(t *testing.T) {
	p := startPublisher(t)
	_, first := subscribe(t, p)
	_, second := subscribe(t, p, NewTemplate("X"))
	sender, senderInbox := subscribe(t, p)

	require.NoError(t, sender.SendMessage(wire.NewInternalMessage("sync")))

	assert.Equal(t, "sync", expect(t, first).Name())
	got := expect(t, second)
	assert.Equal(t, "sync", got.Name())
	assert.True(t, got.IsInternal())
	expectNothing(t, senderInbox)
}

func TestUnregisterTemplateStopsDelivery(t *testing.T) {
	p := startPublisher(t)
	tmpl := NewTemplate("T", NewField("a", wire.Int))
	sub, inbox := subscribe(t, p, tmpl)
	sender, _ := subscribe(t, p)

	require.NoError(t, sub.UnregisterTemplate(NewTemplate("T", NewField("a", wire.Int))))
	require.Eventually(t, func() bool { return mirrored(p) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sub.Templates())

	msg := wire.NewMessage("T")
	require.NoError(t, msg.AddInt("a", 1))
	require.NoError(t, sender.SendMessage(msg))
	expectNothing(t, inbox)
}

func TestRegisterTemplateWhileRunning(t *testing.T) {
	p := startPublisher(t)
	sub, inbox := subscribe(t, p)
	sender, _ := subscribe(t, p)

	require.NoError(t, sub.RegisterTemplate(NewTemplate("late"), nil))
	require.NoError(t, sub.RegisterTemplate(NewTemplate("late"), nil), "re-registering is a no-op")
	require.Eventually(t, func() bool { return mirrored(p) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sender.SendMessage(wire.NewMessage("late")))
	assert.Equal(t, "late", expect(t, inbox).Name())
}

func TestPerTemplateHandler(t *testing.T) {
	p := startPublisher(t)

	sub := NewSubscription("127.0.0.1", p.Port(), testConfig())
	general := make(chan *wire.Message, 4)
	special := make(chan *wire.Message, 4)
	sub.OnMessage(func(_ *Subscription, msg *wire.Message) { general <- msg })
	require.NoError(t, sub.RegisterTemplate(NewTemplate("alert"), func(_ *Subscription, msg *wire.Message) {
		special <- msg
	}))
	require.NoError(t, sub.RegisterTemplate(NewTemplate("news"), nil))
	require.NoError(t, sub.Start(context.Background()))
	defer sub.Stop()
	require.Eventually(t, func() bool { return mirrored(p) == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, p.Publish(wire.NewMessage("alert")))
	assert.Equal(t, 1, p.Publish(wire.NewMessage("news")))

	assert.Equal(t, "alert", expect(t, special).Name())
	assert.Equal(t, "news", expect(t, general).Name())
	expectNothing(t, general)
}

func TestSubscriptionEvents(t *testing.T) {
	p := startPublisher(t)
	published := make(chan SubscriptionEvent, 4)
	p.OnSubscription(func(_ *Subscription, ev SubscriptionEvent) { published <- ev })

	sub := NewSubscription("127.0.0.1", p.Port(), testConfig())
	local := make(chan SubscriptionEvent, 4)
	sub.OnSubscribed(func(_ *Subscription, ev SubscriptionEvent) { local <- ev })

	require.NoError(t, sub.Start(context.Background()))
	assert.Equal(t, Subscribed, <-local)
	select {
	case ev := <-published:
		assert.Equal(t, Subscribed, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not report the subscriber")
	}
	require.Len(t, p.Subscriptions(), 1)
	assert.False(t, p.Subscriptions()[0].IsRemote())

	sub.Stop()
	assert.Equal(t, Unsubscribed, <-local)
	select {
	case ev := <-published:
		assert.Equal(t, Unsubscribed, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not report the departure")
	}
	assert.Empty(t, p.Subscriptions())
}

func TestAcceptedSubscriptionStop(t *testing.T) {
	p := startPublisher(t)
	sub, _ := subscribe(t, p)
	down := make(chan struct{}, 1)
	sub.OnSubscribed(func(_ *Subscription, ev SubscriptionEvent) {
		if ev == Unsubscribed {
			down <- struct{}{}
		}
	})

	require.Len(t, p.Subscriptions(), 1)
	p.Subscriptions()[0].Stop()
	assert.Empty(t, p.Subscriptions())

	select {
	case <-down:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not notice the publisher dropping it")
	}
}

func TestRegisterTemplateNeedsName(t *testing.T) {
	sub := NewSubscription("127.0.0.1", 1, testConfig())
	assert.ErrorIs(t, sub.RegisterTemplate(NewTemplate(""), nil), wire.ErrConfiguration)
	assert.ErrorIs(t, sub.RegisterTemplate(nil, nil), wire.ErrConfiguration)
	assert.NoError(t, sub.UnregisterTemplate(NewTemplate("never")))
}
