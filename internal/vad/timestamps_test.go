package vad

import (
	"reflect"
	"testing"

	"github.com/chaz8081/vadsplit/internal/config"
)

// trace builds n window probabilities, high inside the given [from, to)
// window ranges.
func trace(n int, speech ...[2]int) []float32 {
	probs := make([]float32, n)
	for i := range probs {
		probs[i] = 0.1
	}
	for _, r := range speech {
		for i := r[0]; i < r[1]; i++ {
			probs[i] = 0.9
		}
	}
	return probs
}

func TestSpeechTimestamps(t *testing.T) {
	withPad := DefaultParams()
	withPad.SpeechPadMs = 400

	maxSpeech := DefaultParams()
	maxSpeech.MaxSpeechDurationS = 1

	maxSpeechSilence := DefaultParams()
	maxSpeechSilence.MaxSpeechDurationS = 1
	maxSpeechSilence.MinSilenceDurationMs = 200

	tests := []struct {
		name   string
		probs  []float32
		params Params
		want   []Interval
	}{
		{
			name:   "silence",
			probs:  trace(100),
			params: DefaultParams(),
			want:   nil,
		},
		{
			name:   "speech to the end",
			probs:  trace(10, [2]int{0, 10}),
			params: DefaultParams(),
			want:   []Interval{{0, 5120}},
		},
		{
			name:   "single burst padded",
			probs:  trace(100, [2]int{20, 40}),
			params: DefaultParams(),
			want:   []Interval{{9760, 20960}},
		},
		{
			name:   "short burst dropped",
			probs:  trace(100, [2]int{20, 26}),
			params: DefaultParams(),
			want:   nil,
		},
		{
			name:   "short gap bridged",
			probs:  trace(100, [2]int{20, 40}, [2]int{42, 60}),
			params: DefaultParams(),
			want:   []Interval{{9760, 31200}},
		},
		{
			name:   "two bursts",
			probs:  trace(100, [2]int{20, 40}, [2]int{60, 80}),
			params: DefaultParams(),
			want:   []Interval{{9760, 20960}, {30240, 41440}},
		},
		{
			name:   "pad wider than gap splits it",
			probs:  trace(100, [2]int{20, 40}, [2]int{60, 80}),
			params: withPad,
			want:   []Interval{{3840, 25600}, {25600, 47360}},
		},
		{
			name:   "max speech hard cut",
			probs:  trace(100, [2]int{0, 100}),
			params: maxSpeech,
			want:   []Interval{{0, 15104}, {15104, 30464}, {30464, 45824}, {45824, 51200}},
		},
		{
			name:   "max speech split at silence",
			probs:  trace(60, [2]int{0, 10}, [2]int{15, 40}),
			params: maxSpeechSilence,
			want:   []Interval{{0, 5600}, {7200, 23008}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audioLen := len(tt.probs) * 512
			got := SpeechTimestamps(tt.probs, audioLen, tt.params)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SpeechTimestamps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpeechTimestampsInvariants(t *testing.T) {
	probs := trace(300, [2]int{5, 30}, [2]int{33, 90}, [2]int{150, 151}, [2]int{200, 299})
	audioLen := 300*512 - 100 // last window partially padded

	p := DefaultParams()
	p.MaxSpeechDurationS = 2
	got := SpeechTimestamps(probs, audioLen, p)
	if len(got) == 0 {
		t.Fatal("expected speech")
	}
	for i, iv := range got {
		if iv.Start < 0 || iv.Start >= iv.End || iv.End > audioLen {
			t.Errorf("interval %d out of bounds: %v", i, iv)
		}
		if i > 0 && iv.Start < got[i-1].End {
			t.Errorf("interval %d overlaps previous: %v after %v", i, iv, got[i-1])
		}
	}
}

func TestNegThresholdDefault(t *testing.T) {
	// 0.4 is below the start threshold but above threshold-0.15, so speech
	// keeps going through it.
	probs := trace(100, [2]int{20, 40})
	for i := 40; i < 50; i++ {
		probs[i] = 0.4
	}
	got := SpeechTimestamps(probs, 100*512, DefaultParams())
	want := []Interval{{9760, 26080}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SpeechTimestamps() = %v, want %v", got, want)
	}
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(config.DetectorConfig{
		Threshold:            0.7,
		MinSpeechDurationMs:  100,
		MinSilenceDurationMs: 50,
		SpeechPadMs:          0,
		MaxSpeechDurationS:   30,
	})
	want := Params{
		Threshold:            0.7,
		MinSpeechDurationMs:  100,
		MinSilenceDurationMs: 50,
		MaxSpeechDurationS:   30,
		WindowSize:           512,
		SampleRate:           16000,
	}
	if p != want {
		t.Errorf("ParamsFromConfig() = %+v, want %+v", p, want)
	}
}
