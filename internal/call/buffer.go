package call

import "log/slog"

// CandidateSink applies a remote candidate to a transport.
type CandidateSink interface {
	AddCandidate(Candidate) error
}

// CandidateBuffer holds remote candidates until the remote description of
// the current round is set.
//
// pending is non-empty only while the buffer is not ready, and Flush applies
// everything before the buffer starts forwarding directly.
type CandidateBuffer struct {
	sink    CandidateSink
	ready   bool
	pending []Candidate

	stats BufferStats
}

type BufferStats struct {
	Buffered int
	Applied  int
	Failed   int
}

// Attach sets the transport candidates are applied to.
func (b *CandidateBuffer) Attach(s CandidateSink) {
	b.sink = s
}

// Offer forwards c when the remote description is established and stores
// it otherwise. It reports whether c was buffered; the error is the
// transport's rejection of an immediately applied candidate.
func (b *CandidateBuffer) Offer(c Candidate) (bool, error) {
	if !b.ready || b.sink == nil {
		b.pending = append(b.pending, c)
		b.stats.Buffered++
		return true, nil
	}
	return false, b.apply(c)
}

// Flush applies every buffered candidate in arrival order and clears the
// buffer. A candidate the transport rejects is logged and skipped.
// After Flush the buffer forwards new candidates directly.
func (b *CandidateBuffer) Flush() (applied, failed int) {
	pending := b.pending
	b.pending = nil
	b.ready = true

	for _, c := range pending {
		if err := b.apply(c); err != nil {
			failed++
			continue
		}
		applied++
	}
	return applied, failed
}

func (b *CandidateBuffer) apply(c Candidate) error {
	if b.sink == nil {
		b.stats.Failed++
		return WrapError("add candidate", "", ErrInvalidCandidate, "no transport")
	}
	if err := b.sink.AddCandidate(c); err != nil {
		b.stats.Failed++
		slog.Warn("skipping remote candidate", "candidate", c.Candidate, "err", err)
		return WrapError("add candidate", "", ErrInvalidCandidate, err.Error())
	}
	b.stats.Applied++
	return nil
}

// Ready reports whether candidates are forwarded directly.
func (b *CandidateBuffer) Ready() bool { return b.ready }

func (b *CandidateBuffer) Len() int { return len(b.pending) }

func (b *CandidateBuffer) Stats() BufferStats { return b.stats }

// Reset drops everything, including the attached transport.
func (b *CandidateBuffer) Reset() {
	*b = CandidateBuffer{}
}
