package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/atl/internal/observe"
	"github.com/MrWong99/atl/pkg/atl"
	"github.com/MrWong99/atl/pkg/impl"
)

// errCommand marks problems with a single command. They are reported to
// the client and do not end the session.
var errCommand = errors.New("invalid command")

// session is one connected client. It is the owner of every request it
// pushes, so its request listener only sees its own notifications.
type session struct {
	srv  *Server
	conn *websocket.Conn
	log  *slog.Logger

	out     chan any
	dropped atomic.Int64

	// objects is written by the read loop and read by the notification
	// callback on the audio goroutine.
	mu      sync.Mutex
	objects map[string]*atl.Object
	names   map[*atl.Object]string
}

func newSession(srv *Server, conn *websocket.Conn, log *slog.Logger) *session {
	return &session{
		srv:     srv,
		conn:    conn,
		log:     log,
		out:     make(chan any, srv.sendQueue),
		objects: make(map[string]*atl.Object),
		names:   make(map[*atl.Object]string),
	}
}

// run serves the session until ctx is done or the connection fails, then
// releases everything the session created.
func (s *session) run(ctx context.Context) error {
	token := s.srv.rt.AddRequestListener(s.onNotification, s, atl.SystemEventAll)
	defer s.cleanup(token)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.writeLoop(gctx) })
	return g.Wait()
}

func (s *session) cleanup(token atl.ListenerToken) {
	s.srv.rt.RemoveRequestListener(token)

	s.mu.Lock()
	objects := s.objects
	s.objects = make(map[string]*atl.Object)
	s.mu.Unlock()
	for _, o := range objects {
		o.Release()
	}
	if n := s.dropped.Load(); n > 0 {
		s.log.Warn("remote session dropped notifications", "dropped", n)
	}
	if len(objects) > 0 {
		s.log.Debug("released session objects", "objects", len(objects))
	}
}

func (s *session) readLoop(ctx context.Context) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			if err := s.send(ctx, Error{Type: MsgError, Error: "malformed command: " + err.Error()}); err != nil {
				return err
			}
			continue
		}
		if err := s.send(ctx, s.handle(ctx, cmd)); err != nil {
			return err
		}
	}
}

func (s *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.out:
			if err := wsjson.Write(ctx, s.conn, msg); err != nil {
				return err
			}
		}
	}
}

// send queues a reply, waiting for room in the queue.
func (s *session) send(ctx context.Context, msg any) error {
	select {
	case s.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onNotification runs on the audio goroutine and must not block; it drops
// notifications while the send queue is full.
func (s *session) onNotification(n atl.Notification) {
	msg := Notification{
		Type:      MsgNotification,
		Event:     n.SystemEvent.String(),
		Result:    n.Result.String(),
		Status:    n.Status.String(),
		ControlID: n.ControlID,
		EventInfo: n.Event,
		File:      n.File,
	}
	if id, ok := n.UserData.(uint64); ok {
		msg.RequestID = id
	}
	if n.Object != nil {
		s.mu.Lock()
		msg.Object = s.names[n.Object]
		s.mu.Unlock()
	}
	select {
	case s.out <- msg:
	default:
		s.dropped.Add(1)
	}
}

// handle executes one command and returns the message to send back.
func (s *session) handle(ctx context.Context, cmd Command) any {
	ctx, span := observe.StartSpan(ctx, "remote "+cmd.Type,
		trace.WithAttributes(
			attribute.Int64("atl.request_id", int64(cmd.ID)),
			attribute.String("atl.object", cmd.Object),
		))
	defer span.End()

	status, err := s.dispatch(cmd)
	if err != nil {
		s.srv.metrics.RecordRemoteCommand(ctx, cmd.Type, "rejected")
		s.log.Debug("remote command rejected", "type", cmd.Type, "id", cmd.ID, "err", err)
		return Error{Type: MsgError, ID: cmd.ID, Error: err.Error()}
	}
	s.srv.metrics.RecordRemoteCommand(ctx, cmd.Type, status.String())
	span.SetAttributes(attribute.String("atl.status", status.String()))
	return Result{Type: MsgResult, ID: cmd.ID, Status: status.String(), Object: cmd.Object}
}

func (s *session) options(cmd Command) []atl.RequestOption {
	opts := []atl.RequestOption{atl.WithOwner(s), atl.WithUserData(cmd.ID)}
	if cmd.Blocking {
		opts = append(opts, atl.WithBlocking())
	}
	if cmd.Notify {
		opts = append(opts, atl.WithCallbackOnAudioThread())
	}
	return opts
}

func (s *session) dispatch(cmd Command) (atl.Status, error) {
	opts := s.options(cmd)

	switch cmd.Type {
	case CmdCreateObject:
		return s.createObject(cmd, opts)
	case CmdReleaseObject:
		return s.releaseObject(cmd, opts)
	}

	o, err := s.object(cmd.Object)
	if err != nil {
		return atl.StatusNone, err
	}
	switch cmd.Type {
	case CmdExecuteTrigger:
		id, err := control("trigger", cmd.Trigger)
		if err != nil {
			return atl.StatusNone, err
		}
		return o.ExecuteTrigger(id, opts...), nil
	case CmdStopTrigger:
		id, err := control("trigger", cmd.Trigger)
		if err != nil {
			return atl.StatusNone, err
		}
		return o.StopTrigger(id, opts...), nil
	case CmdStopAllTriggers:
		return o.StopAllTriggers(opts...), nil
	case CmdLoadTrigger:
		id, err := control("trigger", cmd.Trigger)
		if err != nil {
			return atl.StatusNone, err
		}
		return o.LoadTrigger(id, opts...), nil
	case CmdUnloadTrigger:
		id, err := control("trigger", cmd.Trigger)
		if err != nil {
			return atl.StatusNone, err
		}
		return o.UnloadTrigger(id, opts...), nil
	case CmdSetParameter:
		id, err := control("parameter", cmd.Parameter)
		if err != nil {
			return atl.StatusNone, err
		}
		return o.SetParameter(id, cmd.Value, opts...), nil
	case CmdSetSwitchState:
		sw, err := control("switch", cmd.Switch)
		if err != nil {
			return atl.StatusNone, err
		}
		st, err := control("state", cmd.State)
		if err != nil {
			return atl.StatusNone, err
		}
		return o.SetSwitchState(sw, st, opts...), nil
	case CmdSetEnvironment:
		id, err := control("environment", cmd.Environment)
		if err != nil {
			return atl.StatusNone, err
		}
		return o.SetEnvironment(id, cmd.Amount, opts...), nil
	case CmdSetTransform:
		if cmd.Transformation == nil {
			return atl.StatusNone, fmt.Errorf("%w: transformation is required", errCommand)
		}
		return o.SetTransformation(*cmd.Transformation, opts...), nil
	case CmdSetOcclusionType:
		ot, ok := impl.ParseOcclusionType(cmd.Occlusion)
		if !ok {
			return atl.StatusNone, fmt.Errorf("%w: unknown occlusion type %q", errCommand, cmd.Occlusion)
		}
		return o.SetOcclusionType(ot, opts...), nil
	case CmdPlayFile:
		if cmd.File == "" {
			return atl.StatusNone, fmt.Errorf("%w: file is required", errCommand)
		}
		trigger := atl.InvalidControlID
		if cmd.Trigger != "" {
			trigger = atl.IDFromName(cmd.Trigger)
		}
		return o.PlayFile(cmd.File, cmd.Localized, trigger, opts...), nil
	case CmdStopFile:
		if cmd.File == "" {
			return atl.StatusNone, fmt.Errorf("%w: file is required", errCommand)
		}
		return o.StopFile(cmd.File, opts...), nil
	case CmdProcessRay:
		if cmd.Ray == nil {
			return atl.StatusNone, fmt.Errorf("%w: ray is required", errCommand)
		}
		return o.ProcessPhysicsRay(*cmd.Ray, opts...), nil
	default:
		return atl.StatusNone, fmt.Errorf("%w: unknown type %q", errCommand, cmd.Type)
	}
}

func (s *session) createObject(cmd Command, opts []atl.RequestOption) (atl.Status, error) {
	if cmd.Object == "" {
		return atl.StatusNone, fmt.Errorf("%w: object name is required", errCommand)
	}
	s.mu.Lock()
	_, exists := s.objects[cmd.Object]
	s.mu.Unlock()
	if exists {
		return atl.StatusNone, fmt.Errorf("%w: object %q already exists", errCommand, cmd.Object)
	}

	data := atl.ObjectData{Name: cmd.Object, Transformation: impl.IdentityTransformation}
	if cmd.Transformation != nil {
		data.Transformation = *cmd.Transformation
	}
	if cmd.Occlusion != "" {
		ot, ok := impl.ParseOcclusionType(cmd.Occlusion)
		if !ok {
			return atl.StatusNone, fmt.Errorf("%w: unknown occlusion type %q", errCommand, cmd.Occlusion)
		}
		data.OcclusionType = ot
	}

	o, status := s.srv.rt.CreateObject(data, opts...)
	if status != atl.StatusPending && status != atl.StatusSuccess {
		return status, nil
	}
	s.mu.Lock()
	s.objects[cmd.Object] = o
	s.names[o] = cmd.Object
	s.mu.Unlock()
	return status, nil
}

func (s *session) releaseObject(cmd Command, opts []atl.RequestOption) (atl.Status, error) {
	s.mu.Lock()
	o, ok := s.objects[cmd.Object]
	delete(s.objects, cmd.Object)
	s.mu.Unlock()
	if !ok {
		return atl.StatusNone, fmt.Errorf("%w: unknown object %q", errCommand, cmd.Object)
	}
	return o.Release(opts...), nil
}

// object resolves a session object name. The empty name is the global
// object.
func (s *session) object(name string) (*atl.Object, error) {
	if name == "" {
		return s.srv.rt.GlobalObject(), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown object %q", errCommand, name)
	}
	return o, nil
}

func control(kind, name string) (atl.ControlID, error) {
	if name == "" {
		return atl.InvalidControlID, fmt.Errorf("%w: %s name is required", errCommand, kind)
	}
	return atl.IDFromName(name), nil
}
