package flow

import (
	"context"
	"errors"
	"fmt"
	"lunchbell/internal/command"
	"lunchbell/internal/registry"
	"lunchbell/internal/types"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultLunchMessage = "Lunch has arrived!"
	defaultReplayWindow = 15 * time.Second

	HelpText = "To subscribe text `<name>: <channels>`, e.g. `alice: sms, slack`. " +
		"Channels: sms, slack, telegram. To unsubscribe text `<name>: stop`."
	NoValidChannelsText = "None of those channels are supported. Choose from sms, slack, telegram, e.g. `alice: sms, slack`."
)

// Registrar is the registry surface the inbound operations mutate.
type Registrar interface {
	Subscribe(ctx context.Context, identity string, kinds []types.Kind, address string) (registry.SubscribeResult, error)
	Unsubscribe(ctx context.Context, identity string) (bool, error)
	BindPush(ctx context.Context, identity, token string) (string, error)
	UnbindPush(ctx context.Context, identity string) (bool, error)
	List() types.Snapshot
}

// Trigger starts a detached dispatch and returns its ID.
type Trigger interface {
	Trigger(message string, extra types.Extra) string
}

type MenuSource interface {
	Menu() (string, bool)
}

// Service implements the inbound operations on top of the core components.
type Service struct {
	registrar    Registrar
	trigger      Trigger
	menu         MenuSource
	lunchMessage string

	replayWindow time.Duration
	replies      *TTL[string, string]
}

type Option func(*Service)

// WithLunchMessage sets the message sent when TriggerLunch gets none.
func WithLunchMessage(msg string) Option {
	return func(s *Service) {
		if msg != "" {
			s.lunchMessage = msg
		}
	}
}

// WithReplayWindow sets how long the reply to a gateway message ID is reused. SMS
// gateways redeliver webhooks they consider timed out, with the same message ID.
// Zero disables it.
func WithReplayWindow(d time.Duration) Option {
	return func(s *Service) { s.replayWindow = d }
}

func NewService(r Registrar, t Trigger, m MenuSource, opts ...Option) *Service {
	s := &Service{
		registrar:    r,
		trigger:      t,
		menu:         m,
		lunchMessage: DefaultLunchMessage,
		replayWindow: defaultReplayWindow,
		replies:      NewTTL[string, string](),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HandleText runs one register/unsubscribe text command and returns the reply for the sender.
// from is the sender's phone number and becomes the address of an sms binding. messageID is
// the gateway's per-message ID; a redelivery of the same ID gets the earlier reply without
// running the command again. An empty messageID always runs the command.
func (s *Service) HandleText(ctx context.Context, messageID, from, body string) string {
	reply, outcome := s.handleText(ctx, messageID, from, body)
	log.WithFields(log.Fields{
		"from":    from,
		"message": messageID,
		"outcome": outcome,
	}).Info("text command handled")
	return reply
}

func (s *Service) handleText(ctx context.Context, messageID, from, body string) (string, Outcome) {
	replayable := s.replayWindow > 0 && messageID != ""
	key := ComputeKey(from, messageID)
	if replayable {
		if reply, ok := s.replies.Get(key); ok {
			return reply, Replayed
		}
	}
	reply, outcome := s.runCommand(ctx, from, body)
	if replayable && outcome != Malformed && outcome != BindingFailed {
		s.replies.Set(key, reply, s.replayWindow)
	}
	return reply, outcome
}

func (s *Service) runCommand(ctx context.Context, from, body string) (string, Outcome) {
	cmd, err := command.Parse(body)
	if err != nil {
		log.WithError(err).Debug("malformed text command")
		return HelpText, Malformed
	}

	if cmd.IsUnsubscribe {
		removed, err := s.registrar.Unsubscribe(ctx, cmd.Identity)
		if err != nil {
			log.WithError(err).WithField("identity", cmd.Identity).Error("unsubscribe failed")
			return HelpText, Malformed
		}
		if !removed {
			return fmt.Sprintf("%s is not subscribed.", cmd.Identity), NotSubscribed
		}
		return fmt.Sprintf("%s has been unsubscribed from lunch notifications.", cmd.Identity), Unsubscribed
	}

	res, err := s.registrar.Subscribe(ctx, cmd.Identity, cmd.Channels, from)
	switch {
	case errors.Is(err, types.ErrNoValidChannels):
		return NoValidChannelsText, NoValidChannels
	case err != nil:
		log.WithError(err).WithField("identity", cmd.Identity).Error("subscribe failed")
		return HelpText, Malformed
	}

	failed := failedKinds(res.Failed)
	if len(res.Bindings) == 0 {
		return fmt.Sprintf("Sorry %s, we could not set up %s. Please try again later.",
			cmd.Identity, joinKinds(failed)), BindingFailed
	}
	reply := fmt.Sprintf("%s will be notified via %s when lunch arrives.", cmd.Identity, joinKinds(res.Bindings.Kinds()))
	if len(failed) > 0 {
		return reply + fmt.Sprintf(" Could not set up %s.", joinKinds(failed)), PartiallySubscribed
	}
	return reply, Subscribed
}

// Subscribers returns a copy of the registry.
func (s *Service) Subscribers() types.Snapshot {
	return s.registrar.List()
}

func (s *Service) BindPush(ctx context.Context, identity, token string) error {
	_, err := s.registrar.BindPush(ctx, identity, token)
	return err
}

// UnbindPush removes the push binding. It reports types.ErrNotFound when there was none.
func (s *Service) UnbindPush(ctx context.Context, identity string) error {
	removed, err := s.registrar.UnbindPush(ctx, identity)
	if err != nil {
		return err
	}
	if !removed {
		return types.ErrNotFound
	}
	return nil
}

// TriggerLunch starts the fan-out and returns its dispatch ID. Chat channels get today's
// menu when it is available; the dispatch does not wait for the menu.
func (s *Service) TriggerLunch(message string) string {
	if strings.TrimSpace(message) == "" {
		message = s.lunchMessage
	}
	var extra types.Extra
	if menu, ok := s.menu.Menu(); ok {
		extra.Menu = menu
	}
	id := s.trigger.Trigger(message, extra)
	log.WithFields(log.Fields{
		"dispatch": id,
		"menu":     extra.Menu != "",
	}).Info("lunch dispatch initiated")
	return id
}

func (s *Service) Menu() (string, bool) {
	return s.menu.Menu()
}

func failedKinds(failed map[types.Kind]error) []types.Kind {
	out := make([]types.Kind, 0, len(failed))
	for _, k := range types.Kinds {
		if _, ok := failed[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func joinKinds(kinds []types.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}
