package decoder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, d Decoder, in any) ([]any, error) {
	t.Helper()
	var out []any
	err := d.Decode(context.Background(), in, func(v any) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

type closingStage struct {
	Decoder
	closed bool
	err    error
}

func (c *closingStage) Close() error {
	c.closed = true
	return c.err
}

func TestChain_FeedsStagesInOrder(t *testing.T) {
	t.Parallel()

	d := Chain(Split(","), Tag("actisense"))
	out, err := collect(t, d, "2016-04-09T16:41:09.078Z,3,127257,17,255,8,00,ff,7f")
	require.NoError(t, err)
	require.Len(t, out, 1)

	rec, ok := out[0].(map[string]any)
	require.True(t, ok, "output type %T", out[0])
	assert.Equal(t, "actisense", rec["kind"])
	assert.Equal(t, []string{"2016-04-09T16:41:09.078Z", "3", "127257", "17", "255", "8", "00", "ff", "7f"}, rec["fields"])
}

func TestChain_FanOutWithinStage(t *testing.T) {
	t.Parallel()

	double := Func(func(_ context.Context, in any, emit Emit) error {
		if err := emit(in); err != nil {
			return err
		}
		return emit(in)
	})
	out, err := collect(t, Chain(double, double), "x")
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestChain_PropagatesStageError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	failing := Func(func(context.Context, any, Emit) error { return boom })

	out, err := collect(t, Chain(Split(","), failing), "a,b")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, out)
}

func TestChain_PropagatesEmitError(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	err := Chain(Split(","), Tag("k")).Decode(context.Background(), "a", func(any) error { return stop })
	require.ErrorIs(t, err, stop)
}

func TestChain_CloseClosesStages(t *testing.T) {
	t.Parallel()

	first := &closingStage{Decoder: Split(",")}
	second := &closingStage{Decoder: Tag("k"), err: errors.New("close failed")}

	d := Chain(first, second)
	closer, ok := d.(interface{ Close() error })
	require.True(t, ok)

	err := closer.Close()
	require.Error(t, err)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestChain_SingleStageIsUnwrapped(t *testing.T) {
	t.Parallel()

	s := Split(",")
	out, err := collect(t, Chain(s), "a, b")
	require.NoError(t, err)
	assert.Equal(t, []any{[]string{"a", "b"}}, out)
}

func TestSentence(t *testing.T) {
	t.Parallel()

	out, err := collect(t, Sentence("nmea0183", ","), []byte("$IIDBT,035.53,f,010.83,M,005.85,F*23"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	rec := out[0].(map[string]any)
	assert.Equal(t, "nmea0183", rec["kind"])
	assert.Equal(t, "$IIDBT", rec["fields"].([]string)[0])
}

func TestSplit_EmptyPayloadEmitsNothing(t *testing.T) {
	t.Parallel()

	out, err := collect(t, Split(","), "   ")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStages_RejectUnexpectedInput(t *testing.T) {
	t.Parallel()

	_, err := collect(t, Split(","), 42)
	require.ErrorIs(t, err, ErrUnexpectedInput)

	_, err = collect(t, Tag("k"), "not fields")
	require.ErrorIs(t, err, ErrUnexpectedInput)
}
