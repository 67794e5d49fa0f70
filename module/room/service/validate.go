package service

import (
	"fmt"

	"PRoom/module/room/model"
	"PRoom/tools/decode"
	"PRoom/tools/errs"
)

const missing = "Missing argument: "

// ParseNotification decodes the webhook body. Numbers are accepted loosely
// ("2" for ActorNr, 102 for Reason) but fractional actor numbers are not.
func ParseNotification(raw map[string]any) (*model.Notification, error) {
	n, err := decode.DecodeMap[model.Notification](raw)
	if err != nil {
		return nil, errs.ErrInvariantViolation.WrapData(raw, "Malformed notification: "+err.Error())
	}
	n.Raw = raw
	return n, nil
}

func ParseListRequest(raw map[string]any) (*model.ListRequest, error) {
	r, err := decode.DecodeMap[model.ListRequest](raw)
	if err != nil {
		return nil, errs.ErrInvariantViolation.WrapData(raw, "Malformed request: "+err.Error())
	}
	r.Raw = raw
	return r, nil
}

func missingArg(data any, name string) error {
	return errs.ErrMissingArgument.WrapData(data, missing+name)
}

func violation(data any, msg string) error {
	return errs.ErrInvariantViolation.WrapData(data, msg)
}

// Validate checks a notification and turns it into the Event for its Type.
// Nothing is read or written before it succeeds.
func Validate(call Call, n *model.Notification) (model.Event, error) {
	raw := n.Raw
	switch {
	case n.AppId == nil:
		return nil, missingArg(raw, "AppId")
	case n.AppVersion == nil:
		return nil, missingArg(raw, "AppVersion")
	case n.Region == nil:
		return nil, missingArg(raw, "Region")
	case n.GameId == nil:
		return nil, missingArg(raw, "GameId")
	case n.Type == nil:
		return nil, missingArg(raw, "Type")
	}

	typ := *n.Type
	if typ != model.TypeClose && typ != model.TypeSave {
		if n.ActorNr == nil {
			return nil, missingArg(raw, "ActorNr")
		}
		if n.UserId == nil {
			return nil, missingArg(raw, "UserId")
		}
		if *n.UserId != call.CallerID {
			return nil, errs.ErrIdentityMismatch.WrapData(raw,
				fmt.Sprintf("CallerId=%s does not match UserId", call.CallerID))
		}
		if n.Username == nil && n.Nickname == nil {
			return nil, missingArg(raw, "Username/Nickname")
		}
	} else {
		if n.ActorCount == nil {
			return nil, missingArg(raw, "ActorCount")
		}
		if n.State2 != nil && n.State2.ActorList != nil && len(n.State2.ActorList) != *n.ActorCount {
			return nil, violation(raw, "ActorCount does not match ActorList.count")
		}
	}

	env := n.Envelope()
	switch typ {
	case model.TypeLoad:
		if n.CreateIfNotExists == nil {
			return nil, missingArg(raw, "CreateIfNotExists")
		}
		return &model.LoadEvent{Envelope: env, CreateIfNotExists: *n.CreateIfNotExists, CreateOptions: n.CreateOptions}, nil

	case model.TypeCreate:
		if n.CreateOptions == nil {
			return nil, missingArg(raw, "CreateOptions")
		}
		if *n.ActorNr != model.CreatorActorNr {
			return nil, violation(raw, "ActorNr != 1 and Type == Create")
		}
		return &model.CreateEvent{Envelope: env, CreateOptions: n.CreateOptions}, nil

	case model.TypeJoin:
		return &model.JoinEvent{Envelope: env}, nil

	case model.TypePlayer, model.TypeGame:
		if typ == model.TypePlayer && n.TargetActor == nil {
			return nil, missingArg(raw, "TargetActor")
		}
		if n.Properties == nil {
			return nil, missingArg(raw, "Properties")
		}
		if n.Username != nil && n.State == nil {
			return nil, missingArg(raw, "State")
		}
		ev := &model.PropertyEvent{Envelope: env, Properties: n.Properties, State: n.State}
		if n.TargetActor != nil {
			ev.TargetActor = *n.TargetActor
		}
		return ev, nil

	case model.TypeEvent:
		if n.Data == nil {
			return nil, missingArg(raw, "Data")
		}
		if n.Username != nil && n.State == nil {
			return nil, missingArg(raw, "State")
		}
		return &model.RaiseEvent{Envelope: env, Data: n.Data, State: n.State}, nil

	case model.TypeSave:
		if n.State == nil {
			return nil, missingArg(raw, "State")
		}
		if *n.ActorCount <= 0 {
			return nil, violation(raw, "ActorCount <= 0 and Type == Save")
		}
		return &model.SaveEvent{Envelope: env, ActorCount: *n.ActorCount, State: n.State}, nil

	case model.TypeClose:
		if *n.ActorCount != 0 {
			return nil, violation(raw, "ActorCount != 0 and Type == Close")
		}
		return &model.CloseEvent{Envelope: env, ActorCount: *n.ActorCount}, nil

	case model.TypeLeave:
		return nil, violation(raw, "Deprecated forward plugin webhook!")
	}

	want, ok := model.LeaveReasonFor(typ)
	if !ok {
		return nil, violation(raw, "Unexpected Type:"+typ)
	}
	if n.IsInactive == nil {
		return nil, missingArg(raw, "IsInactive")
	}
	if n.Reason == nil {
		return nil, missingArg(raw, "Reason")
	}
	got := model.LeaveReason(*n.Reason)
	if got != want {
		return nil, violation(raw, "Reason code does not match Leave Type string")
	}
	if got.Rejected() {
		return nil, violation(raw, "Unexpected LeaveReason")
	}
	return &model.LeaveEvent{Envelope: env, Reason: got, IsInactive: *n.IsInactive}, nil
}

// ValidateListRequest checks a GetGameList call.
func ValidateListRequest(r *model.ListRequest) error {
	switch {
	case r.AppId == nil:
		return missingArg(r.Raw, "AppId")
	case r.AppVersion == nil:
		return missingArg(r.Raw, "AppVersion")
	case r.Region == nil:
		return missingArg(r.Raw, "Region")
	case r.UserId == nil:
		return missingArg(r.Raw, "UserId")
	}
	return nil
}
