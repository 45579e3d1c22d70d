// Package voice coordinates one live voice session: audio capture,
// speech recognition, the conversation engine, speech playback and
// persistence.
//
// A session is created for an expert and topic, connected, fed with
// typed or spoken input, and disconnected:
//
//	s, err := voice.New(router, voice.Config{
//	    Expert: &expert.Expert,
//	    Topic:  "Meditation & Wellness",
//	    UserID: "u-42",
//	}, voice.WithStore(db), voice.WithSpeaker(speaker))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s.OnResponse = func(t *voice.Turn) {
//	    fmt.Println(t.Response.Text)
//	}
//
//	welcome, err := s.Connect(ctx)
//	turn, err := s.Submit(ctx, "I feel stressed today", conversation.AudioMetrics{})
//	feedback, err := s.Disconnect(ctx)
//
// # Input ordering
//
// Typed input and final transcripts share one queue drained by a single
// worker, so user and assistant turns always alternate.
//
// # Speech failures
//
// A synthesis failure switches the session to text-only mode. Responses
// keep flowing through OnResponse; nothing is spoken afterwards.
//
// # Latency
//
// Every turn is timed from input to response and from response to the end
// of playback:
//
//	m := s.Metrics().Average()
//	fmt.Println(m.FormatLatency())
package voice
