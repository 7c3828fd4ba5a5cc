package vad

import "math"

// SpeechTimestamps converts per-window speech probabilities over audio of
// audioLen samples into padded, ascending, non-overlapping intervals.
//
// Speech starts at the first window scoring >= Threshold and ends once the
// score stays below NegThreshold for MinSilenceDurationMs. Runs shorter than
// MinSpeechDurationMs are dropped. Runs longer than MaxSpeechDurationS are
// split at the last silence of at least 98 ms, or cut hard when there is
// none. Every interval is then widened by SpeechPadMs, sharing the gap
// between neighbours that are closer than twice the pad.
func SpeechTimestamps(probs []float32, audioLen int, p Params) []Interval {
	if p.WindowSize <= 0 {
		p.WindowSize = 512
	}
	if p.SampleRate <= 0 {
		p.SampleRate = SampleRate
	}
	neg := p.NegThreshold
	if neg <= 0 {
		neg = max(p.Threshold-0.15, 0.01)
	}

	rate := float64(p.SampleRate)
	win := p.WindowSize
	minSpeech := int(rate * float64(p.MinSpeechDurationMs) / 1000)
	minSilence := int(rate * float64(p.MinSilenceDurationMs) / 1000)
	pad := int(rate * float64(p.SpeechPadMs) / 1000)
	minSilenceAtMax := int(rate * 98 / 1000)
	maxSpeech := math.MaxInt
	if p.MaxSpeechDurationS > 0 {
		maxSpeech = int(rate*p.MaxSpeechDurationS) - win - 2*pad
	}

	var (
		speeches  []Interval
		cur       Interval
		triggered bool
		tempEnd   int
		prevEnd   int
		nextStart int
	)

	for i, prob := range probs {
		pos := win * i

		if prob >= p.Threshold && tempEnd != 0 {
			tempEnd = 0
			if nextStart < prevEnd {
				nextStart = pos
			}
		}

		if prob >= p.Threshold && !triggered {
			triggered = true
			cur = Interval{Start: pos}
			continue
		}

		if triggered && pos-cur.Start > maxSpeech {
			if prevEnd != 0 {
				cur.End = prevEnd
				speeches = append(speeches, cur)
				if nextStart < prevEnd {
					triggered = false
				} else {
					cur = Interval{Start: nextStart}
				}
				prevEnd, nextStart, tempEnd = 0, 0, 0
			} else {
				cur.End = pos
				speeches = append(speeches, cur)
				prevEnd, nextStart, tempEnd = 0, 0, 0
				triggered = false
				continue
			}
		}

		if prob < neg && triggered {
			if tempEnd == 0 {
				tempEnd = pos
			}
			if pos-tempEnd > minSilenceAtMax {
				prevEnd = tempEnd
			}
			if pos-tempEnd < minSilence {
				continue
			}
			cur.End = tempEnd
			if cur.End-cur.Start > minSpeech {
				speeches = append(speeches, cur)
			}
			prevEnd, nextStart, tempEnd = 0, 0, 0
			triggered = false
		}
	}

	if triggered && audioLen-cur.Start > minSpeech {
		cur.End = audioLen
		speeches = append(speeches, cur)
	}

	for i := range speeches {
		s := &speeches[i]
		if i == 0 {
			s.Start = max(0, s.Start-pad)
		}
		if i == len(speeches)-1 {
			s.End = min(audioLen, s.End+pad)
			break
		}
		next := &speeches[i+1]
		gap := next.Start - s.End
		if gap < 2*pad {
			s.End += gap / 2
			next.Start = max(0, next.Start-gap/2)
		} else {
			s.End = min(audioLen, s.End+pad)
			next.Start = max(0, next.Start-pad)
		}
	}

	// A probability trace longer than the audio can leave ranges past the end.
	out := speeches[:0]
	for _, s := range speeches {
		if s.Start >= 0 && s.Start < s.End && s.End <= audioLen {
			out = append(out, s)
		}
	}
	return out
}
