package peer

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectSignals buffers OnSignal emissions for inspection.
func collectSignals() (chan SignalData, Callbacks) {
	ch := make(chan SignalData, 32)
	return ch, Callbacks{OnSignal: func(sig SignalData) { ch <- sig }}
}

func waitSignal(t *testing.T, ch chan SignalData, wantType string) SignalData {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case sig := <-ch:
			if sig.Type == wantType {
				return sig
			}
			// Candidates may interleave with the description.
		case <-deadline:
			t.Fatalf("timed out waiting for %s signal", wantType)
			return SignalData{}
		}
	}
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "offerer", RoleOfferer.String())
	assert.Equal(t, "answerer", RoleAnswerer.String())
	assert.Equal(t, "unknown", Role(9).String())
}

func TestOffererEmitsOffer(t *testing.T) {
	ch, cb := collectSignals()
	p, err := New(Config{}, nil, RoleOfferer, cb)
	require.NoError(t, err)
	defer p.Close()

	offer := waitSignal(t, ch, SignalOffer)
	assert.NotEmpty(t, offer.SDP)
}

func TestAnswererAnswersOffer(t *testing.T) {
	offerCh, offerCb := collectSignals()
	offerer, err := New(Config{}, nil, RoleOfferer, offerCb)
	require.NoError(t, err)
	defer offerer.Close()

	answerCh, answerCb := collectSignals()
	answerer, err := New(Config{}, nil, RoleAnswerer, answerCb)
	require.NoError(t, err)
	defer answerer.Close()

	offer := waitSignal(t, offerCh, SignalOffer)
	require.NoError(t, answerer.HandleSignal(offer))

	answer := waitSignal(t, answerCh, SignalAnswer)
	assert.NotEmpty(t, answer.SDP)

	require.NoError(t, offerer.HandleSignal(answer))
}

func TestOffererIgnoresOffer(t *testing.T) {
	ch, cb := collectSignals()
	p, err := New(Config{}, nil, RoleOfferer, cb)
	require.NoError(t, err)
	defer p.Close()

	offer := waitSignal(t, ch, SignalOffer)

	// A crossed offer must not break the offerer.
	assert.NoError(t, p.HandleSignal(SignalData{Type: SignalOffer, SDP: offer.SDP}))
}

func TestEarlyCandidateIsBuffered(t *testing.T) {
	offerCh, offerCb := collectSignals()
	offerer, err := New(Config{}, nil, RoleOfferer, offerCb)
	require.NoError(t, err)
	defer offerer.Close()

	_, answerCb := collectSignals()
	answerer, err := New(Config{}, nil, RoleAnswerer, answerCb)
	require.NoError(t, err)
	defer answerer.Close()

	candidate := webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 UDP 2122252543 127.0.0.1 54321 typ host",
	}
	err = answerer.HandleSignal(SignalData{
		Type:      SignalCandidate,
		Candidate: &candidate,
	})
	require.NoError(t, err, "candidate before remote description is buffered")

	// The buffered candidate is flushed once the offer lands.
	offer := waitSignal(t, offerCh, SignalOffer)
	require.NoError(t, answerer.HandleSignal(offer))
}

func TestMalformedSignals(t *testing.T) {
	_, cb := collectSignals()
	p, err := New(Config{}, nil, RoleAnswerer, cb)
	require.NoError(t, err)
	defer p.Close()

	err = p.HandleSignal(SignalData{Type: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownSignal)

	err = p.HandleSignal(SignalData{Type: SignalCandidate})
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestCloseIsIdempotent(t *testing.T) {
	_, cb := collectSignals()
	p, err := New(Config{}, nil, RoleAnswerer, cb)
	require.NoError(t, err)

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())

	err = p.HandleSignal(SignalData{Type: SignalCandidate})
	assert.ErrorIs(t, err, ErrPeerClosed)
}
