// Package radio renders the driver audio script of the recommended strategy
// into an mp3 file using Amazon Polly.
package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
)

var (
	ErrThrottled  = errors.New("speech synthesis throttled")
	ErrRejected   = errors.New("speech synthesis rejected")
	ErrEmptyAudio = errors.New("speech synthesis returned no audio")
)

const (
	DefaultRegion  = "eu-central-1"
	DefaultVoice   = "Brian"
	DefaultTimeout = 15 * time.Second
)

type SynthClient interface {
	//nolint:lll // sdk signature
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type (
	Option   func(*Renderer)
	Renderer struct {
		mu      sync.Mutex
		client  SynthClient
		dir     string
		region  string
		voice   string
		neural  bool
		timeout time.Duration
		l       *log.Logger
	}
)

func WithClient(c SynthClient) Option {
	return func(r *Renderer) {
		r.client = c
	}
}

func WithRegion(region string) Option {
	return func(r *Renderer) {
		r.region = region
	}
}

func WithVoice(voice string) Option {
	return func(r *Renderer) {
		r.voice = voice
	}
}

// WithStandardEngine selects the standard instead of the neural engine
func WithStandardEngine() Option {
	return func(r *Renderer) {
		r.neural = false
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *Renderer) {
		r.timeout = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Renderer) {
		r.l = l
	}
}

// New creates a renderer writing mp3 files into dir.
// Without WithClient the aws client is created on first use.
func New(dir string, opts ...Option) *Renderer {
	ret := &Renderer{
		dir:     dir,
		region:  DefaultRegion,
		voice:   DefaultVoice,
		neural:  true,
		timeout: DefaultTimeout,
		l:       log.Default().Named("sink.radio"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Deliver implements pipeline.Sink. Results without a ranked strategy are skipped.
func (r *Renderer) Deliver(ctx context.Context, res *pipeline.Result) error {
	script, ok := audioScript(res)
	if !ok {
		r.l.Debug("no audio script", log.String("session", res.Session))
		return nil
	}
	name, err := r.Render(ctx, fileName(res), script)
	if err != nil {
		return err
	}
	r.l.Info("radio message rendered",
		log.String("session", res.Session), log.String("file", name))
	return nil
}

// Render synthesizes text and stores it as <dir>/<name>.mp3. It returns the file path.
func (r *Renderer) Render(ctx context.Context, name, text string) (string, error) {
	client, err := r.resolveClient(ctx)
	if err != nil {
		return "", err
	}
	engine := pollytypes.EngineStandard
	if r.neural {
		engine = pollytypes.EngineNeural
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(r.voice),
	})
	if err != nil {
		return "", mapError(err)
	}
	if out == nil || out.AudioStream == nil {
		return "", ErrEmptyAudio
	}
	defer out.AudioStream.Close()

	if err = os.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}
	target := filepath.Join(r.dir, name+".mp3")
	f, err := os.Create(target)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, out.AudioStream)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}
	if n == 0 {
		_ = os.Remove(target)
		return "", ErrEmptyAudio
	}
	return target, nil
}

func (r *Renderer) resolveClient(ctx context.Context) (SynthClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(r.region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	r.client = polly.NewFromConfig(cfg)
	return r.client, nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException":
			return fmt.Errorf("%w: %s", ErrThrottled, apiErr.ErrorMessage())
		case "TextLengthExceededException", "InvalidSsmlException",
			"LexiconNotFoundException", "InvalidSampleRateException":
			return fmt.Errorf("%w: %s", ErrRejected, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("synthesize speech: %w", err)
}

func audioScript(res *pipeline.Result) (string, bool) {
	if res == nil || res.Ranking == nil {
		return "", false
	}
	for i := range res.Ranking.Strategies {
		s := &res.Ranking.Strategies[i]
		if s.Rank == 1 && strings.TrimSpace(s.DriverAudioScript) != "" {
			return s.DriverAudioScript, true
		}
	}
	return "", false
}

func fileName(res *pipeline.Result) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, fmt.Sprintf("%s-%s", res.Session, res.RunID))
}

// compile time checks
var _ pipeline.Sink = (*Renderer)(nil)
