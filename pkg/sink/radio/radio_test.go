//nolint:funlen // ok for tests
package radio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
)

type fakeClient struct {
	audio []byte
	err   error
	calls []*polly.SynthesizeSpeechInput
}

//nolint:whitespace // can't make both editor and linter happy
func (f *fakeClient) SynthesizeSpeech(
	ctx context.Context,
	params *polly.SynthesizeSpeechInput,
	optFns ...func(*polly.Options),
) (*polly.SynthesizeSpeechOutput, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(bytes.NewReader(f.audio)),
	}, nil
}

type fakeAPIError struct {
	code string
}

func (e fakeAPIError) Error() string                 { return e.code }
func (e fakeAPIError) ErrorCode() string             { return e.code }
func (e fakeAPIError) ErrorMessage() string          { return "message of " + e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func rankedResult(script string) *pipeline.Result {
	return &pipeline.Result{
		RunID:   "run1",
		Session: "monza",
		State:   pipeline.StateCompleted,
		Ranking: &model.Ranking{Strategies: []model.RankedStrategy{
			{Rank: 2, StrategyID: 2, DriverAudioScript: "plan b"},
			{Rank: 1, StrategyID: 1, DriverAudioScript: script},
		}},
	}
}

func TestDeliver(t *testing.T) {
	dir := t.TempDir()
	client := &fakeClient{audio: []byte("mp3")}
	r := New(dir, WithClient(client), WithVoice("Amy"))

	require.NoError(t, r.Deliver(context.Background(), rankedResult("box this lap")))

	require.Len(t, client.calls, 1)
	in := client.calls[0]
	assert.Equal(t, "box this lap", *in.Text)
	assert.Equal(t, pollytypes.VoiceId("Amy"), in.VoiceId)
	assert.Equal(t, pollytypes.EngineNeural, in.Engine)
	assert.Equal(t, pollytypes.OutputFormatMp3, in.OutputFormat)

	data, err := os.ReadFile(filepath.Join(dir, "monza-run1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), data)
}

func TestDeliver_Skipped(t *testing.T) {
	tests := []struct {
		name string
		res  *pipeline.Result
	}{
		{"no ranking", &pipeline.Result{Session: "s"}},
		{"empty script", rankedResult("  ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{audio: []byte("mp3")}
			r := New(t.TempDir(), WithClient(client))
			require.NoError(t, r.Deliver(context.Background(), tt.res))
			assert.Empty(t, client.calls)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		want   error
	}{
		{"throttled", &fakeClient{err: fakeAPIError{"TooManyRequestsException"}}, ErrThrottled},
		{"rejected", &fakeClient{err: fakeAPIError{"TextLengthExceededException"}}, ErrRejected},
		{"deadline", &fakeClient{err: context.DeadlineExceeded}, context.DeadlineExceeded},
		{"empty audio", &fakeClient{}, ErrEmptyAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			r := New(dir, WithClient(tt.client), WithStandardEngine())
			_, err := r.Render(context.Background(), "x", "hello")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			_, statErr := os.Stat(filepath.Join(dir, "x.mp3"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestRender_OtherAPIError(t *testing.T) {
	r := New(t.TempDir(), WithClient(&fakeClient{err: fakeAPIError{"ServiceFailureException"}}))
	_, err := r.Render(context.Background(), "x", "hello")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrThrottled))
	assert.ErrorContains(t, err, "synthesize speech")
}
