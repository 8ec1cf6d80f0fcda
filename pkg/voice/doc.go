// Package voice runs spoken conversations. Two pipelines implement
// session.Session:
//
//   - TurnPipeline: recognize an utterance, stream a model reply, speak it
//     sentence by sentence, repeat.
//   - RealtimePipeline: full-duplex audio over the realtime protocol with
//     server-side turn detection and barge-in.
//
// # Usage
//
//	p, err := voice.NewTurnPipeline(voice.TurnDeps{
//	    Recognizer: rec,
//	    Model:      model,
//	    Speaker:    speaker,
//	    Audio:      audioSession,
//	})
//	if err != nil {
//	    return err
//	}
//	states := p.States()
//	if err := p.Start(ctx, "You are a concise assistant."); err != nil {
//	    return err
//	}
//	defer p.Stop()
//
//	for s := range states {
//	    fmt.Println("state:", s)
//	}
//
// # Latency
//
// Both pipelines track per-turn latency from the end of user speech:
//
//	m := p.Latency()
//	fmt.Println(m.FormatLatency())
//
// The same stages are exported as the voicecore_turn_stage_seconds
// histogram, and each turn is traced as a "voice.turn" span.
package voice
