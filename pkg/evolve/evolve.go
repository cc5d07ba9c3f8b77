// Package evolve runs chat turns. A turn addressed to the assistant may
// revise the sender's profile description. A turn addressed to another user
// is answered in that user's persona.
package evolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/rapport/pkg/completion"
	"github.com/papercomputeco/rapport/pkg/embeddings"
	"github.com/papercomputeco/rapport/pkg/eventstream"
	"github.com/papercomputeco/rapport/pkg/social"
)

const defaultTimeout = 30 * time.Second

// Store is the profile and group storage the engine needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*social.UserProfile, error)
	PutProfile(ctx context.Context, p *social.UserProfile) error
	ReplaceDescription(ctx context.Context, userID, description string, embedding []float32, at time.Time) error
	GetGroup(ctx context.Context, groupID string) (*social.Group, error)
}

// Recorder appends turns to the interaction ledger.
type Recorder interface {
	AppendTurn(ctx context.Context, userA, userB string, turn social.Turn, groupID string) (*social.Interaction, error)
}

// Config is the configuration for an Engine.
type Config struct {
	Store     Store
	Ledger    Recorder
	Completer completion.Completer
	Embedder  embeddings.Embedder

	// Publisher receives profile events. Optional.
	Publisher eventstream.Publisher

	// Timeout bounds each completion and embedding call.
	Timeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Engine is the description evolution engine.
type Engine struct {
	store     Store
	ledger    Recorder
	completer completion.Completer
	embedder  embeddings.Embedder
	publisher eventstream.Publisher
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Result is the outcome of one chat turn. Warning is non-nil when the reply
// succeeded but the profile could not be updated; it wraps
// social.ErrPartialUpdate.
type Result struct {
	Reply   string
	History []social.Turn
	Outcome Outcome
	Warning error
}

// New validates c and returns an Engine.
func New(c Config) (*Engine, error) {
	if c.Store == nil || c.Ledger == nil {
		return nil, errors.New("evolve: store and ledger are required")
	}
	if c.Completer == nil || c.Embedder == nil {
		return nil, errors.New("evolve: completer and embedder are required")
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Engine{
		store:     c.Store,
		ledger:    c.Ledger,
		completer: c.Completer,
		embedder:  c.Embedder,
		publisher: c.Publisher,
		timeout:   c.Timeout,
		now:       c.Now,
		logger:    c.Logger,
	}, nil
}

// Chat dispatches msg to Evolve or Converse and shapes the response.
func (e *Engine) Chat(ctx context.Context, msg social.ChatMessage) (*social.ChatResponse, error) {
	var (
		res *Result
		err error
	)
	if msg.ToAssistant() {
		res, err = e.Evolve(ctx, msg.SenderID, msg.Content)
	} else {
		res, err = e.Converse(ctx, msg)
	}
	if err != nil {
		return nil, err
	}

	resp := &social.ChatResponse{
		Response:            res.Reply,
		ConversationHistory: res.History,
	}
	switch o := res.Outcome.(type) {
	case ReplyOnly:
	case ReplyWithDescription:
		if res.Warning == nil {
			desc := o.Description
			resp.UpdatedUserDescription = &desc
		}
	default:
		return nil, fmt.Errorf("unhandled chat outcome %T", o)
	}
	if res.Warning != nil {
		resp.Warning = res.Warning.Error()
	}
	return resp, nil
}

// Evolve records content as the user's turn in the description chat, asks
// for a reply, and applies any revised description. A failed revision is
// reported through Result.Warning and leaves the profile untouched.
func (e *Engine) Evolve(ctx context.Context, userID, content string) (*Result, error) {
	if err := validateChat(userID, content); err != nil {
		return nil, err
	}

	profile, err := e.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec, err := e.ledger.AppendTurn(ctx, userID, social.AssistantID, social.Turn{
		Role:    social.RoleUser,
		Content: content,
	}, "")
	if err != nil {
		return nil, err
	}

	var out evolveResult
	if err := e.complete(ctx, buildEvolvePrompt(profile.Description, rec.Messages), &out); err != nil {
		return nil, err
	}

	rec, err = e.ledger.AppendTurn(ctx, userID, social.AssistantID, social.Turn{
		Role:    social.RoleAssistant,
		Content: out.Reply,
	}, "")
	if err != nil {
		return nil, err
	}

	res := &Result{
		Reply:   out.Reply,
		History: rec.Messages,
		Outcome: decide(profile.Description, out.UpdatedDescription),
	}

	switch o := res.Outcome.(type) {
	case ReplyOnly:
		e.logger.Debug("description unchanged", "user_id", userID)
	case ReplyWithDescription:
		if _, err := e.replace(ctx, userID, o.Description); err != nil {
			e.logger.Warn("description revision not applied", "user_id", userID, "error", err)
			res.Warning = fmt.Errorf("%w: description not updated: %w", social.ErrPartialUpdate, err)
		}
	default:
		return nil, fmt.Errorf("unhandled outcome %T", o)
	}

	return res, nil
}

// SetDescription replaces the user's description with one supplied directly.
func (e *Engine) SetDescription(ctx context.Context, userID, description string) (*social.UserDescription, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, social.NewValidationError("description", "required")
	}
	if _, err := e.store.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	return e.replace(ctx, userID, description)
}

// Description returns the description view of the user's profile.
func (e *Engine) Description(ctx context.Context, userID string) (*social.UserDescription, error) {
	p, err := e.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	d := social.DescriptionOf(p)
	return &d, nil
}

// Converse records a turn from msg.SenderID to msg.ReceiverID and answers it
// in the receiver's persona. Neither profile changes.
func (e *Engine) Converse(ctx context.Context, msg social.ChatMessage) (*Result, error) {
	if err := validateChat(msg.SenderID, msg.Content); err != nil {
		return nil, err
	}
	if err := social.ValidatePair(msg.SenderID, msg.ReceiverID); err != nil {
		return nil, err
	}

	sender, err := e.store.GetProfile(ctx, msg.SenderID)
	if err != nil {
		return nil, err
	}
	receiver, err := e.store.GetProfile(ctx, msg.ReceiverID)
	if err != nil {
		return nil, err
	}
	if msg.GroupID != "" {
		if _, err := e.store.GetGroup(ctx, msg.GroupID); err != nil {
			if errors.Is(err, social.ErrNotFound) {
				return nil, social.UnknownGroupError(msg.GroupID)
			}
			return nil, err
		}
	}

	rec, err := e.ledger.AppendTurn(ctx, msg.SenderID, msg.ReceiverID, social.Turn{
		Role:    social.RoleUser,
		Content: msg.Content,
	}, msg.GroupID)
	if err != nil {
		return nil, err
	}

	var out evolveResult
	if err := e.complete(ctx, buildPeerPrompt(receiver, sender, rec.Messages), &out); err != nil {
		return nil, err
	}

	rec, err = e.ledger.AppendTurn(ctx, msg.SenderID, msg.ReceiverID, social.Turn{
		Role:    social.RoleAssistant,
		Content: out.Reply,
	}, msg.GroupID)
	if err != nil {
		return nil, err
	}

	return &Result{
		Reply:   out.Reply,
		History: rec.Messages,
		Outcome: ReplyOnly{},
	}, nil
}

// complete runs prompt under the timeout and decodes the reply into out.
func (e *Engine) complete(ctx context.Context, prompt string, out *evolveResult) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return social.Derivation("chat reply", err)
	}
	if err := completion.DecodeJSON(raw, out); err != nil {
		return social.Derivation("chat reply", err)
	}
	out.Reply = strings.TrimSpace(out.Reply)
	if out.Reply == "" {
		return social.Derivation("chat reply", completion.ErrEmptyCompletion)
	}
	return nil
}

// replace embeds description and swaps it into the profile in one write.
func (e *Engine) replace(ctx context.Context, userID, description string) (*social.UserDescription, error) {
	embedCtx, cancel := context.WithTimeout(ctx, e.timeout)
	embedding, err := e.embedder.Embed(embedCtx, description)
	cancel()
	if err != nil {
		return nil, social.Derivation("description embedding", err)
	}

	at := e.now().UTC()
	if err := e.store.ReplaceDescription(ctx, userID, description, embedding, at); err != nil {
		return nil, fmt.Errorf("replacing description of %s: %w", userID, err)
	}

	e.logger.Info("description updated", "user_id", userID)
	eventstream.Emit(ctx, e.publisher, e.logger, eventstream.NewProfileEvent(userID, description, at))

	return &social.UserDescription{
		UserID:      userID,
		Description: description,
		Embedding:   embedding,
		LastUpdated: at,
	}, nil
}

func validateChat(userID, content string) error {
	fields := map[string]string{}
	if strings.TrimSpace(userID) == "" {
		fields["sender_id"] = "required"
	}
	if strings.TrimSpace(content) == "" {
		fields["content"] = "required"
	}
	if len(fields) > 0 {
		return &social.ValidationError{Fields: fields}
	}
	return nil
}
