package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"deliveryFieldOps/internal/auth"
	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/models"
)

// Messages returned to clients in {errorMessage}.
const (
	msgMissingCredentials = "Usuário e senha são obrigatórios"
	msgBadCredentials     = "Usuário ou senha inválidos"
	msgInternal           = "Erro interno do servidor"
)

// ErrorReply is the failure shape of a reply.
type ErrorReply struct {
	ErrorMessage string `json:"errorMessage"`
}

type credentials struct {
	UserName string `json:"userName"`
	Secret   string `json:"secret"`
}

// SendMessageRequest is the payload of send-message.
type SendMessageRequest struct {
	Contact string `json:"contact"`
	Message string `json:"message"`
}

// handle processes one inbound envelope. Requests (non-empty id) are answered
// on the same event name with the id echoed back.
func (s *Server) handle(ctx context.Context, c *client, env channel.Envelope) {
	var (
		reply any
		err   error
	)
	switch env.Event {
	case channel.EventAuthenticate:
		reply, err = s.authenticate(ctx, c, env.Data)
	case channel.EventDailyDeliveries:
		reply, err = s.deliveries.ListByDay(ctx, s.Today())
	case channel.EventUpdateDelivery:
		err = s.updateDelivery(ctx, env.Data)
	case channel.EventLocateDriver:
		err = s.locateDriver(ctx, c, env.Data)
	case channel.EventSendMessage:
		err = s.sendMessage(ctx, c, env.Data)
	default:
		s.log.Warn("unknown event", "client", c.id, "event", env.Event)
		return
	}
	if err != nil {
		s.log.Error("event failed", "client", c.id, "event", env.Event, "error", err)
		reply = ErrorReply{ErrorMessage: msgInternal}
	}
	if env.ID == "" || reply == nil {
		return
	}
	s.reply(c, env, reply)
}

func (s *Server) reply(c *client, req channel.Envelope, payload any) {
	out, err := channel.NewEnvelope(req.Event, req.ID, payload)
	if err != nil {
		s.log.Error("encode reply", "event", req.Event, "error", err)
		return
	}
	silenced, delay := s.replyPolicy(req.Event)
	if silenced {
		s.log.Debug("reply suppressed", "event", req.Event, "id", req.ID)
		return
	}
	if delay > 0 {
		time.AfterFunc(delay, func() { c.deliver(out) })
		return
	}
	if !c.deliver(out) {
		s.log.Warn("reply dropped", "client", c.id, "event", req.Event)
	}
}

// authenticate checks credentials and answers with the driver Session plus a
// signed token. Rejections are replies, not errors.
func (s *Server) authenticate(ctx context.Context, c *client, data json.RawMessage) (any, error) {
	var cred credentials
	if err := json.Unmarshal(data, &cred); err != nil {
		return ErrorReply{ErrorMessage: msgMissingCredentials}, nil
	}
	cred.UserName = strings.TrimSpace(cred.UserName)
	if cred.UserName == "" || cred.Secret == "" {
		return ErrorReply{ErrorMessage: msgMissingCredentials}, nil
	}
	d, err := s.drivers.GetByUsername(ctx, cred.UserName)
	if err != nil {
		return nil, fmt.Errorf("get driver: %w", err)
	}
	if d == nil || bcrypt.CompareHashAndPassword([]byte(d.PasswordHash), []byte(cred.Secret)) != nil {
		s.log.Info("authentication rejected", "client", c.id, "user", cred.UserName)
		return ErrorReply{ErrorMessage: msgBadCredentials}, nil
	}
	token, _, err := auth.Issue(s.secret, d.UserName, auth.KindDriver, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	c.setDriver(d.UserName)
	sess := d.Session()
	sess.Token = token
	s.log.Info("driver authenticated", "client", c.id, "user", d.UserName)
	return sess, nil
}

// updateDelivery stores the full record and pushes the new list to everyone.
func (s *Server) updateDelivery(ctx context.Context, data json.RawMessage) error {
	var rec models.DeliveryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode delivery: %w", err)
	}
	if rec.ID == "" {
		return errors.New("delivery without id")
	}
	if _, err := s.deliveries.Upsert(ctx, s.Today(), rec); err != nil {
		return fmt.Errorf("store delivery: %w", err)
	}
	return s.BroadcastDeliveries(ctx)
}

// locateDriver records the position reported in a Session payload.
func (s *Server) locateDriver(ctx context.Context, c *client, data json.RawMessage) error {
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	name := sess.UserName
	if name == "" {
		name = c.driverName()
	}
	if name == "" {
		return errors.New("location without driver")
	}
	if err := s.drivers.UpdateLocation(ctx, name, sess.Location.Latitude, sess.Location.Longitude); err != nil {
		return fmt.Errorf("update location of %s: %w", name, err)
	}
	return nil
}

// sendMessage records a customer notification and marks the matching deliveries.
func (s *Server) sendMessage(ctx context.Context, c *client, data json.RawMessage) error {
	var req SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if _, err := s.messages.Create(ctx, &models.CustomerMessage{
		Driver:  c.driverName(),
		Contact: req.Contact,
		Message: req.Message,
	}); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	n, err := s.deliveries.MarkMessageSent(ctx, s.Today(), req.Contact)
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}
	if n > 0 {
		return s.BroadcastDeliveries(ctx)
	}
	return nil
}
