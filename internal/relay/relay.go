package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
	"github.com/zhouzirui/z-lingo/backend/internal/service/links"
)

// Emitter delivers outbound events to a single client.
type Emitter interface {
	Emit(event chat.StreamEvent) error
}

// LinkValidator checks candidate links against the catalog.
type LinkValidator interface {
	Validate(ctx context.Context, candidates []links.Candidate) ([]chat.Link, links.Stats)
}

// Relay forwards an upstream model stream to a client. It holds no per-request
// state and is safe for concurrent use.
type Relay struct {
	validator LinkValidator
	logger    zerolog.Logger
}

// New creates a Relay.
func New(validator LinkValidator, logger zerolog.Logger) *Relay {
	return &Relay{
		validator: validator,
		logger:    logger.With().Str("component", "relay").Logger(),
	}
}

// Result summarizes a finished relay.
type Result struct {
	// Content is the display text the client ends up with: the recovered message,
	// or the raw accumulated text when no message was recovered.
	Content string
	Links   []chat.Link
	Path    RecoveryPath
}

// turn is the mutable state of one relayed response.
type turn struct {
	accumulated strings.Builder
	fragments   int
}

// Stream relays src to out. Every delta precedes the recovered message, which
// precedes the links, which precede the single done event. A transport failure
// produces one error event and skips recovery. src is always closed on return.
func (r *Relay) Stream(ctx context.Context, src Source, out Emitter) (*Result, error) {
	reader, writer := schema.Pipe[UpstreamEvent](16)
	group, gctx := errgroup.WithContext(ctx)

	var result *Result

	group.Go(func() error {
		defer writer.Close()
		src.Stream(gctx, func(ev UpstreamEvent) bool {
			return !writer.Send(ev, nil)
		})
		return nil
	})

	group.Go(func() error {
		stop := context.AfterFunc(gctx, func() { _ = src.Close() })
		defer stop()
		defer src.Close()
		defer reader.Close()

		res, err := r.consume(gctx, reader, out)
		result = res
		return err
	})

	err := group.Wait()
	switch {
	case err != nil:
		streamsTotal.WithLabelValues("aborted").Inc()
	case result == nil:
		streamsTotal.WithLabelValues("error").Inc()
	default:
		streamsTotal.WithLabelValues("done").Inc()
	}
	return result, err
}

func (r *Relay) consume(ctx context.Context, reader *schema.StreamReader[UpstreamEvent], out Emitter) (*Result, error) {
	state := &turn{}
	for {
		ev, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return r.finish(ctx, state, out)
		}
		if err != nil {
			return nil, r.fail(out, err)
		}

		switch ev.Kind {
		case UpstreamFragment:
			state.accumulated.WriteString(ev.Text)
			state.fragments++
			fragmentsTotal.Inc()
			if err := out.Emit(chat.DeltaEvent(ev.Text)); err != nil {
				return nil, fmt.Errorf("emit delta: %w", err)
			}
		case UpstreamDone:
			return r.finish(ctx, state, out)
		case UpstreamFailure:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, r.fail(out, ev.Err)
		}
	}
}

func (r *Relay) fail(out Emitter, cause error) error {
	r.logger.Error().Err(cause).Msg("upstream stream failed")
	if err := out.Emit(chat.ErrorEvent(PublicErrorDetail(cause))); err != nil {
		return fmt.Errorf("emit error: %w", err)
	}
	return nil
}

func (r *Relay) finish(ctx context.Context, state *turn, out Emitter) (*Result, error) {
	accumulated := state.accumulated.String()
	env := Recover(accumulated)
	recoveryTotal.WithLabelValues(string(env.Path)).Inc()

	result := &Result{Content: accumulated, Path: env.Path}
	if env.HasMessage {
		result.Content = env.Message
		if err := out.Emit(chat.MessageEvent(env.Message)); err != nil {
			return nil, fmt.Errorf("emit message: %w", err)
		}
	}

	if len(env.Candidates) > 0 {
		validated, stats := r.validator.Validate(ctx, env.Candidates)
		observeLinks(stats)
		r.logger.Debug().
			Int("accepted", stats.Accepted).
			Int("rewritten", stats.Rewritten).
			Int("dropped", stats.Dropped).
			Msg("validated navigation links")
		if len(validated) > 0 {
			result.Links = validated
			if err := out.Emit(chat.LinksEvent(validated)); err != nil {
				return nil, fmt.Errorf("emit links: %w", err)
			}
		}
	}

	if err := out.Emit(chat.DoneEvent()); err != nil {
		return nil, fmt.Errorf("emit done: %w", err)
	}

	r.logger.Info().
		Int("fragments", state.fragments).
		Str("path", string(env.Path)).
		Int("links", len(result.Links)).
		Msg("relay completed")
	return result, nil
}

// UpstreamStatusError is implemented by provider errors that carry an HTTP status.
type UpstreamStatusError interface {
	error
	HTTPStatus() int
}

// PublicErrorDetail renders a transport failure for the client without internal detail.
func PublicErrorDetail(err error) string {
	var statusErr UpstreamStatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("model provider returned status %d", statusErr.HTTPStatus())
	}
	return "model provider stream failed"
}
