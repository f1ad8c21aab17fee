package speech

import (
    "context"
    "testing"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newInput(t *testing.T) (*InputController, *fakeRecognizer, *[]Transcript) {
    t.Helper()
    rec := &fakeRecognizer{}
    c := NewInputController(rec, "", zerolog.Nop())
    c.SetAvailable(true)
    var got []Transcript
    c.OnTranscript(func(tr Transcript) { got = append(got, tr) })
    return c, rec, &got
}

func TestStartListeningUnavailable(t *testing.T) {
    rec := &fakeRecognizer{}
    c := NewInputController(rec, "", zerolog.Nop())
    err := c.StartListening(context.Background())
    require.ErrorIs(t, err, ErrUnavailable)
    assert.Empty(t, rec.starts)
    assert.Equal(t, ListeningIdle, c.State())
}

func TestStartListeningSingleCapture(t *testing.T) {
    c, rec, _ := newInput(t)
    require.NoError(t, c.StartListening(context.Background()))
    require.Len(t, rec.starts, 1)
    opts := rec.starts[0]
    assert.Equal(t, "en-US", opts.Locale)
    assert.False(t, opts.Continuous)
    assert.False(t, opts.Interim)
    assert.NotEmpty(t, opts.CaptureID)
    assert.Equal(t, Listening, c.State())

    err := c.StartListening(context.Background())
    require.ErrorIs(t, err, ErrBusy)
    assert.Len(t, rec.starts, 1)
}

func TestResultDeliveredOnce(t *testing.T) {
    c, rec, got := newInput(t)
    require.NoError(t, c.StartListening(context.Background()))
    id := rec.starts[0].CaptureID

    c.OnResult(id, "Analyze My Code")
    c.OnResult(id, "again")
    c.OnEnd(id)

    require.Len(t, *got, 1)
    assert.Equal(t, "Analyze My Code", (*got)[0].Text)
    assert.Equal(t, ListeningIdle, c.State())
}

func TestErrorEndsCaptureWithoutTranscript(t *testing.T) {
    c, rec, got := newInput(t)
    require.NoError(t, c.StartListening(context.Background()))
    c.OnError(rec.starts[0].CaptureID, "no-speech")
    assert.Empty(t, *got)
    assert.Equal(t, ListeningIdle, c.State())

    require.NoError(t, c.StartListening(context.Background()))
}

func TestStopDropsLateResult(t *testing.T) {
    c, rec, got := newInput(t)
    require.NoError(t, c.StartListening(context.Background()))
    id := rec.starts[0].CaptureID

    c.StopListening()
    assert.Equal(t, []string{id}, rec.stops)
    assert.Equal(t, ListeningIdle, c.State())

    c.OnResult(id, "print hello")
    assert.Empty(t, *got)
}

func TestStaleCaptureIgnored(t *testing.T) {
    c, rec, got := newInput(t)
    require.NoError(t, c.StartListening(context.Background()))
    first := rec.starts[0].CaptureID
    c.StopListening()
    require.NoError(t, c.StartListening(context.Background()))
    second := rec.starts[1].CaptureID

    c.OnEnd(first)
    assert.Equal(t, Listening, c.State())
    c.OnResult(second, "clear")
    require.Len(t, *got, 1)
    assert.Equal(t, second, (*got)[0].CaptureID)
}

func TestStartFailureResetsState(t *testing.T) {
    c, rec, _ := newInput(t)
    rec.startErr = errBoom
    var transitions []bool
    c.OnListeningChanged(func(l bool, _ string) { transitions = append(transitions, l) })

    err := c.StartListening(context.Background())
    require.ErrorIs(t, err, ErrEngine)
    assert.Equal(t, ListeningIdle, c.State())
    assert.Equal(t, []bool{true, false}, transitions)
}

func TestLosingCapabilityEndsCapture(t *testing.T) {
    c, _, _ := newInput(t)
    require.NoError(t, c.StartListening(context.Background()))
    c.SetAvailable(false)
    assert.Equal(t, ListeningIdle, c.State())
    require.ErrorIs(t, c.StartListening(context.Background()), ErrUnavailable)
}

func TestCanListen(t *testing.T) {
    c, _, _ := newInput(t)
    assert.True(t, c.CanListen())
    require.NoError(t, c.StartListening(context.Background()))
    assert.False(t, c.CanListen())
    c.StopListening()
    assert.True(t, c.CanListen())
    c.SetAvailable(false)
    assert.False(t, c.CanListen())
}
