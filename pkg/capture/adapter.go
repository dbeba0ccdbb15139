package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/meetloop-ai/meetloop-core/pkg/core"
)

// Adapter is the capture collaborator's contract (spec.md section 4.1). The
// platform-specific system-audio capture SDK is out of scope for this
// module and is expected to satisfy this same interface; MicrophoneAdapter
// below is the one concrete implementation the core ships, covering the
// microphone stream via malgo.
type Adapter interface {
	Start() error
	Stop()
	TryRecvSystem() (AudioFrame, bool)
	TryRecvMic() (AudioFrame, bool)
}

// secondsOfAudio sizes the per-stream ring at roughly 10s, per section 4.2.
const secondsOfAudio = 10

// MicrophoneAdapter captures a single microphone stream through malgo and
// feeds it through a lock-free SPSC ring, exactly as section 4.1 specifies:
// the device callback never allocates, locks, or blocks — it only copies
// samples into the ring and, on overflow, bumps an atomic counter.
//
// It does not capture system output: that stream is the platform-specific
// SDK's responsibility and is wired in by a platform adapter that also
// satisfies Adapter.
type MicrophoneAdapter struct {
	sampleRate int
	channels   int

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	ring *RingBuffer

	running atomic.Bool
	mu      sync.Mutex

	framesDropped  atomic.Uint64
	framesCaptured atomic.Uint64
	logger         core.Logger
}

// NewMicrophoneAdapter creates an adapter targeting the given sample rate
// (downmixing/resampling to the pipeline's 16kHz mono target happens later,
// in the processor — per section 4.1, "downmixing... is deferred to the
// processor thread").
func NewMicrophoneAdapter(sampleRate, channels int, logger core.Logger) *MicrophoneAdapter {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &MicrophoneAdapter{
		sampleRate: sampleRate,
		channels:   channels,
		ring:       NewRingBuffer(sampleRate * channels * secondsOfAudio),
		logger:     logger,
	}
}

func (a *MicrophoneAdapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running.Load() {
		return ErrAlreadyRunning
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(a.channels)
	deviceConfig.SampleRate = uint32(a.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 32

	// scratch is allocated once here so the callback only decodes into it;
	// the ring copies the samples out before the next callback reuses it.
	scratch := make([]float32, a.sampleRate*a.channels)
	onRecv := func(_ []byte, pInput []byte, _ uint32) {
		if !a.running.Load() || len(pInput) == 0 {
			return
		}
		n := len(pInput) / 4
		if n > len(scratch) {
			a.framesDropped.Add(1)
			return
		}
		samples := bytesToFloat32(scratch[:n], pInput)
		pts := time.Now().UnixNano()
		if a.ring.Push(pts, samples) {
			a.framesCaptured.Add(uint64(len(samples)))
		} else {
			a.framesDropped.Add(1)
		}
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		_ = ctx.Uninit()
		if isPermissionErr(err) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	a.ctx = ctx
	a.device = device
	a.running.Store(true)
	a.logger.Info("microphone capture started", "sampleRate", a.sampleRate, "channels", a.channels)
	return nil
}

func (a *MicrophoneAdapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running.CompareAndSwap(true, false) {
		return
	}
	if a.device != nil {
		a.device.Stop()
		a.device.Uninit()
		a.device = nil
	}
	if a.ctx != nil {
		_ = a.ctx.Uninit()
		a.ctx.Free()
		a.ctx = nil
	}
	a.logger.Info("microphone capture stopped")
}

// TryRecvMic returns at most one drained batch per call, never blocking.
func (a *MicrophoneAdapter) TryRecvMic() (AudioFrame, bool) {
	samples, pts, ok := a.ring.Drain()
	if !ok {
		return AudioFrame{}, false
	}
	return AudioFrame{PTSNanos: pts, SampleRate: a.sampleRate, Channels: a.channels, Samples: samples}, true
}

// TryRecvSystem always reports no data: this adapter only covers the
// microphone stream. Compose with a platform system-audio adapter to fill
// that stream.
func (a *MicrophoneAdapter) TryRecvSystem() (AudioFrame, bool) {
	return AudioFrame{}, false
}

// FramesDropped reports callback-side overflow count (ring full when a
// batch arrived).
func (a *MicrophoneAdapter) FramesDropped() uint64 {
	return a.framesDropped.Load()
}

// FramesCaptured reports the running count of samples successfully pushed
// into the ring, backing the CaptureStats.FramesCaptured counter.
func (a *MicrophoneAdapter) FramesCaptured() uint64 {
	return a.framesCaptured.Load()
}

func isPermissionErr(err error) bool {
	// malgo/miniaudio does not expose a typed permission-denied error; on
	// most platforms a denied OS mic permission surfaces as a generic
	// "failed to init" result, so we can't reliably distinguish it here.
	// Left as a hook for a future platform-specific check.
	return false
}

func bytesToFloat32(out []float32, data []byte) []float32 {
	n := len(out)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
