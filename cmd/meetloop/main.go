// Command meetloop runs the transcription/notes pipeline against the local
// microphone until interrupted, printing transcript and notes events to
// stdout. It is a thin wiring shell: provider selection, env/config loading,
// and signal handling, in the same style as the teacher's cmd/agent.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/meetloop-ai/meetloop-core/internal/logging"
	"github.com/meetloop-ai/meetloop-core/pkg/bus"
	"github.com/meetloop-ai/meetloop-core/pkg/capture"
	"github.com/meetloop-ai/meetloop-core/pkg/config"
	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/pipeline"
	"github.com/meetloop-ai/meetloop-core/pkg/providers/stt"
	"github.com/meetloop-ai/meetloop-core/pkg/providers/summarizer"
)

const (
	deviceSampleRate = 48000
	deviceChannels   = 1
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: no .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logging.New(logrus.InfoLevel)

	registries := buildRegistries(cfg.Providers.ConnectTimeout)
	if _, ok := registries.STT[cfg.Providers.STTBackend]; !ok {
		log.Fatalf("unknown stt backend %q (set providers.stt_backend or MEETLOOP_PROVIDERS_STT_BACKEND)", cfg.Providers.STTBackend)
	}
	if _, ok := registries.Summarizers[cfg.Providers.SummarizerBackend]; !ok {
		log.Fatalf("unknown summarizer backend %q (set providers.summarizer_backend or MEETLOOP_PROVIDERS_SUMMARIZER_BACKEND)", cfg.Providers.SummarizerBackend)
	}

	adapter := capture.NewMicrophoneAdapter(deviceSampleRate, deviceChannels, logger)

	p, err := pipeline.New(cfg, adapter, registries, cfg.SessionDir, logger)
	if err != nil {
		log.Fatalf("constructing pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		log.Fatalf("starting pipeline: %v", err)
	}

	fmt.Printf("meetloop recording — stt=%s summarizer=%s\n", cfg.Providers.STTBackend, cfg.Providers.SummarizerBackend)
	fmt.Println("Press Ctrl+C to stop and finalize the session.")

	go printEvents(p.Events())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nShutting down...")
	p.Stop()
}

func printEvents(events <-chan bus.CoreEvent) {
	for ev := range events {
		switch ev.Kind {
		case bus.EventSegmentFinalized:
			fmt.Printf("[transcript] finalized segment ids=%v\n", ev.ChangedIDs)
		case bus.EventNotesPatched:
			fmt.Printf("[notes] patch applied, %d key points, %d decisions, %d actions\n",
				len(ev.Notes.KeyPoints), len(ev.Notes.Decisions), len(ev.Notes.Actions))
		case bus.EventProviderStatus:
			status := "ok"
			if !ev.OK {
				status = "FAILED"
			}
			fmt.Printf("[provider] %s backend=%s status=%s\n", whichName(ev.Which), ev.Backend, status)
		case bus.EventError:
			fmt.Printf("[error] %s: %s\n", ev.ErrorKind, ev.Message)
		case bus.EventStats:
			fmt.Printf("[stats] chunks=%d dropped=%d\n", ev.Stats.ChunksEmitted, ev.Stats.ChunksDropped)
		}
	}
}

func whichName(w bus.Which) string {
	if w == bus.WhichSummarizer {
		return "summarizer"
	}
	return "transcriber"
}

// buildRegistries constructs every backend this binary knows how to talk
// to, keyed by each provider's own Name(). A backend with no API key set
// is still registered: it will simply fail its first call with an auth
// error rather than crashing the process: the transcriber worker treats it
// as fatal and surfaces it as a ProviderStatus event, and the notes engine
// logs it and leaves its cursor in place for the next cycle.
// connectTimeout bounds each provider's TCP dial phase, per
// config.ProvidersConfig.ConnectTimeout.
func buildRegistries(connectTimeout time.Duration) pipeline.Registries {
	groqKey := os.Getenv("GROQ_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	assemblyKey := os.Getenv("ASSEMBLYAI_API_KEY")
	streamingKey := os.Getenv("MEETLOOP_SUMMARIZER_API_KEY")
	streamingHost := os.Getenv("MEETLOOP_SUMMARIZER_HOST")

	groqSTT := stt.NewGroqSTT(groqKey, os.Getenv("GROQ_STT_MODEL"), connectTimeout)
	openaiSTT := stt.NewOpenAISTT(openaiKey, os.Getenv("OPENAI_STT_MODEL"), connectTimeout)
	deepgramSTT := stt.NewDeepgramSTT(deepgramKey, connectTimeout)
	assemblySTT := stt.NewAssemblyAISTT(assemblyKey, connectTimeout)

	anthropicSum := summarizer.NewAnthropicSummarizer(anthropicKey, os.Getenv("ANTHROPIC_MODEL"), connectTimeout)
	openaiSum := summarizer.NewOpenAISummarizer(openaiKey, os.Getenv("OPENAI_SUMMARIZER_MODEL"), connectTimeout)

	registries := pipeline.Registries{
		STT: map[string]stt.Provider{
			groqSTT.Name():     groqSTT,
			openaiSTT.Name():   openaiSTT,
			deepgramSTT.Name(): deepgramSTT,
			assemblySTT.Name(): assemblySTT,
		},
		Summarizers: map[string]notes.Summarizer{
			anthropicSum.Name(): anthropicSum,
			openaiSum.Name():    openaiSum,
		},
	}

	if streamingHost != "" {
		streamingSum := summarizer.NewStreamingSummarizer(streamingKey, streamingHost, connectTimeout)
		registries.Summarizers[streamingSum.Name()] = streamingSum
	}

	return registries
}
