// Package pubsub routes messages through a broker by shape.
//
// A Publisher accepts subscribers over TCP. Each subscriber declares the
// templates it is interested in; a Template is a message name plus the
// fields (name and type) a message must carry. When a subscriber sends an
// application message, the publisher derives the message's own template and
// forwards the message to every other subscriber with a matching template.
// Internal messages are forwarded to every other subscriber.
//
// Template declarations travel as internal RegTemp and UnregTemp messages,
// so both ends of a link hold the same template list.
//
// # Field Compatibility
//
// Two fields match when their names are equal and their types are
// compatible: equal types match, Unknown matches any type, and Null matches
// String and Binary. A template asking for {a} matches a message carrying
// {a, b}.
//
// # Usage Example
//
//	pub, err := pubsub.NewPublisher("weather", tcp.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	_ = pub.Start()
//	defer pub.Stop()
//
//	sub := pubsub.NewSubscription("127.0.0.1", pub.Port(), tcp.DefaultConfig())
//	reading := pubsub.NewTemplate("reading",
//	    pubsub.NewField("celsius", wire.Double))
//	_ = sub.RegisterTemplate(reading, func(s *pubsub.Subscription, msg *wire.Message) {
//	    v, _ := msg.GetDouble("celsius")
//	    fmt.Println(v)
//	})
//	_ = sub.Start(ctx)
package pubsub
