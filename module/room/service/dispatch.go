package service

import (
	"context"
	"fmt"

	"PRoom/logger"
	"PRoom/module/room/model"
	"PRoom/tools/errs"

	"go.uber.org/zap"
)

// Webhook paths.
const (
	PathRoomCreated         = "RoomCreated"
	PathRoomClosed          = "RoomClosed"
	PathRoomJoined          = "RoomJoined"
	PathRoomLeft            = "RoomLeft"
	PathRoomPropertyUpdated = "RoomPropertyUpdated"
	PathRoomEventRaised     = "RoomEventRaised"
)

type route struct {
	name    string
	accepts func(typ string) bool
}

func types(ts ...string) func(string) bool {
	return func(typ string) bool {
		for _, t := range ts {
			if t == typ {
				return true
			}
		}
		return false
	}
}

var routes = map[string]route{
	PathRoomCreated:         {name: "Create", accepts: types(model.TypeCreate, model.TypeLoad)},
	PathRoomClosed:          {name: "Close", accepts: types(model.TypeClose, model.TypeSave)},
	PathRoomJoined:          {name: "Join", accepts: types(model.TypeJoin)},
	PathRoomLeft:            {name: "Leave", accepts: model.IsLeaveType},
	PathRoomPropertyUpdated: {name: "GameProperties", accepts: types(model.TypePlayer, model.TypeGame)},
	PathRoomEventRaised:     {name: "Event", accepts: types(model.TypeEvent)},
}

// Result is the webhook response.
type Result struct {
	ResultCode int    `json:"ResultCode"`
	Message    string `json:"Message"`
	State      any    `json:"State,omitempty"`
}

// ListResult is the GetGameList response.
type ListResult struct {
	ResultCode int                          `json:"ResultCode"`
	Message    string                       `json:"Message,omitempty"`
	Data       map[string]model.RoomSummary `json:"Data"`
}

func ok() Result { return Result{ResultCode: errs.CodeOK, Message: "OK"} }

// Dispatch handles one webhook end to end and never panics: every failure,
// expected or not, becomes a Result and is recorded.
func (c *Coordinator) Dispatch(ctx context.Context, path, callerID string, raw map[string]any) (res Result) {
	call := NewCall(callerID, c.clock())
	defer func() {
		if r := recover(); r != nil {
			res = c.failed(ctx, call, raw, errs.ErrPanic(r))
		}
	}()

	rt, found := routes[path]
	if !found {
		return c.failed(ctx, call, raw, errs.ErrInvariantViolation.WrapData(raw, "Unknown path "+path))
	}
	n, err := ParseNotification(raw)
	if err != nil {
		return c.failed(ctx, call, raw, err)
	}
	ev, err := Validate(call, n)
	if err != nil {
		return c.failed(ctx, call, raw, err)
	}
	if typ := ev.Head().Type; !rt.accepts(typ) {
		return c.failed(ctx, call, raw, errs.ErrInvariantViolation.WrapData(
			map[string]any{"Webhook": raw}, fmt.Sprintf("Wrong Path%s Type=%s", rt.name, typ)))
	}

	res, err = c.apply(ctx, call, ev)
	if err != nil {
		return c.failed(ctx, call, raw, err)
	}
	return res
}

func (c *Coordinator) apply(ctx context.Context, call Call, ev model.Event) (Result, error) {
	var err error
	switch e := ev.(type) {
	case *model.CreateEvent:
		err = c.Create(ctx, call, e)
	case *model.LoadEvent:
		state, lerr := c.Load(ctx, call, e)
		if lerr != nil {
			return Result{}, lerr
		}
		res := ok()
		res.State = state
		return res, nil
	case *model.JoinEvent:
		err = c.Join(ctx, call, e)
	case *model.LeaveEvent:
		err = c.Leave(ctx, call, e)
	case *model.PropertyEvent:
		err = c.UpdateProperties(ctx, call, e)
	case *model.RaiseEvent:
		err = c.RaiseEvent(ctx, call, e)
	case *model.SaveEvent:
		err = c.Save(ctx, call, e)
	case *model.CloseEvent:
		err = c.Close(ctx, call, e)
	default:
		err = errs.ErrInternal.WrapMsg(fmt.Sprintf("unhandled event %T", ev))
	}
	if err != nil {
		return Result{}, err
	}
	return ok(), nil
}

// Reject records a request that never reached Dispatch, such as an
// unreadable body, and returns the Result to answer with.
func (c *Coordinator) Reject(ctx context.Context, callerID string, err error) Result {
	return c.failed(ctx, NewCall(callerID, c.clock()), nil, err)
}

// failed maps err to its wire code and hands it to the audit sink.
func (c *Coordinator) failed(ctx context.Context, call Call, raw map[string]any, err error) Result {
	code, msg, data := describe(err)
	if data == nil {
		data = raw
	}
	if code == errs.CodeInternal {
		logger.Error("webhook failed", zap.String("caller", call.CallerID), zap.String("msg", msg), zap.Error(err))
	} else {
		logger.Debug("webhook rejected", zap.String("caller", call.CallerID), zap.Int("code", code), zap.String("msg", msg))
	}
	c.audit.RecordFailure(ctx, call.Timestamp, data, msg)
	return Result{ResultCode: code, Message: msg}
}

// describe returns the wire code and message of err. Infrastructure errors
// share code -1 and carry their class name in the message.
func describe(err error) (int, string, any) {
	ce, found := errs.AsCode(err)
	if !found {
		return errs.CodeInternal, fmt.Sprintf("%s: %v", errs.ErrInternal.Msg, err), nil
	}
	if ce.Code == errs.CodeInternal {
		return ce.Code, ce.Msg + ": " + ce.Message(), ce.Data
	}
	return ce.Code, ce.Message(), ce.Data
}

// List answers GetGameList for the calling user.
func (c *Coordinator) List(ctx context.Context, callerID string, raw map[string]any) (res ListResult) {
	call := NewCall(callerID, c.clock())
	fail := func(err error) ListResult {
		r := c.failed(ctx, call, raw, err)
		return ListResult{ResultCode: r.ResultCode, Message: r.Message}
	}
	defer func() {
		if r := recover(); r != nil {
			res = fail(errs.ErrPanic(r))
		}
	}()

	req, err := ParseListRequest(raw)
	if err != nil {
		return fail(err)
	}
	if err := ValidateListRequest(req); err != nil {
		return fail(err)
	}
	rooms, err := c.ListRooms(ctx, call.CallerID)
	if err != nil {
		return fail(err)
	}
	return ListResult{ResultCode: errs.CodeOK, Data: rooms}
}
