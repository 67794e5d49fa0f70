package service

import (
	"testing"

	"PRoom/module/room/model"
	"PRoom/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseHook(typ string) map[string]any {
	return map[string]any{
		"AppId":      "app",
		"AppVersion": "1.0",
		"Region":     "eu",
		"GameId":     "G1",
		"Type":       typ,
		"ActorNr":    float64(1),
		"UserId":     "U1",
		"Username":   "alice",
	}
}

func with(m map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(m)+len(kv)/2)
	for k, v := range m {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		k := kv[i].(string)
		if kv[i+1] == nil {
			delete(out, k)
			continue
		}
		out[k] = kv[i+1]
	}
	return out
}

func validateRaw(t *testing.T, raw map[string]any) (model.Event, error) {
	t.Helper()
	n, err := ParseNotification(raw)
	require.NoError(t, err)
	return Validate(Call{CallerID: "U1", Timestamp: "t"}, n)
}

func TestValidate_Rejections(t *testing.T) {
	closeHook := with(baseHook(model.TypeClose), "ActorCount", float64(0))
	cases := []struct {
		name string
		raw  map[string]any
		code int
		msg  string
	}{
		{"no AppId", with(baseHook(model.TypeJoin), "AppId", nil), errs.CodeMissingArgument, "Missing argument: AppId"},
		{"no Region", with(baseHook(model.TypeJoin), "Region", nil), errs.CodeMissingArgument, "Missing argument: Region"},
		{"no Type", with(baseHook(model.TypeJoin), "Type", nil), errs.CodeMissingArgument, "Missing argument: Type"},
		{"no ActorNr", with(baseHook(model.TypeJoin), "ActorNr", nil), errs.CodeMissingArgument, "Missing argument: ActorNr"},
		{"no UserId", with(baseHook(model.TypeJoin), "UserId", nil), errs.CodeMissingArgument, "Missing argument: UserId"},
		{"other caller", with(baseHook(model.TypeJoin), "UserId", "U9"), errs.CodeIdentityMismatch, "CallerId=U1 does not match UserId"},
		{"no names", with(baseHook(model.TypeJoin), "Username", nil), errs.CodeMissingArgument, "Missing argument: Username/Nickname"},
		{"close without count", baseHook(model.TypeClose), errs.CodeMissingArgument, "Missing argument: ActorCount"},
		{"actor list length", with(closeHook, "State2", map[string]any{"ActorList": []any{"a"}}), errs.CodeInvariantViolation, "ActorCount does not match ActorList.count"},
		{"close with actors", with(closeHook, "ActorCount", float64(2)), errs.CodeInvariantViolation, "ActorCount != 0 and Type == Close"},
		{"load without flag", baseHook(model.TypeLoad), errs.CodeMissingArgument, "Missing argument: CreateIfNotExists"},
		{"create without options", baseHook(model.TypeCreate), errs.CodeMissingArgument, "Missing argument: CreateOptions"},
		{"create as actor 2", with(baseHook(model.TypeCreate), "CreateOptions", map[string]any{}, "ActorNr", float64(2)), errs.CodeInvariantViolation, "ActorNr != 1 and Type == Create"},
		{"player without target", with(baseHook(model.TypePlayer), "Properties", map[string]any{}), errs.CodeMissingArgument, "Missing argument: TargetActor"},
		{"game without properties", baseHook(model.TypeGame), errs.CodeMissingArgument, "Missing argument: Properties"},
		{"game without state", with(baseHook(model.TypeGame), "Properties", map[string]any{}), errs.CodeMissingArgument, "Missing argument: State"},
		{"event without data", baseHook(model.TypeEvent), errs.CodeMissingArgument, "Missing argument: Data"},
		{"save without state", with(baseHook(model.TypeSave), "ActorCount", float64(1)), errs.CodeMissingArgument, "Missing argument: State"},
		{"save empty", with(baseHook(model.TypeSave), "ActorCount", float64(0), "State", "s"), errs.CodeInvariantViolation, "ActorCount <= 0 and Type == Save"},
		{"deprecated leave", baseHook(model.TypeLeave), errs.CodeInvariantViolation, "Deprecated forward plugin webhook!"},
		{"unknown type", baseHook("Dance"), errs.CodeInvariantViolation, "Unexpected Type:Dance"},
		{"leave without flag", with(baseHook("LeaveRequest"), "Reason", "101"), errs.CodeMissingArgument, "Missing argument: IsInactive"},
		{"leave without reason", with(baseHook("LeaveRequest"), "IsInactive", false), errs.CodeMissingArgument, "Missing argument: Reason"},
		{"leave wrong code", with(baseHook("LeaveRequest"), "IsInactive", false, "Reason", "102"), errs.CodeInvariantViolation, "Reason code does not match Leave Type string"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := validateRaw(t, tc.raw)
			require.Error(t, err)
			assert.Nil(t, ev)
			ce, ok := errs.AsCode(err)
			require.True(t, ok)
			assert.Equal(t, tc.code, ce.Code)
			assert.Equal(t, tc.msg, ce.Message())
			assert.NotNil(t, ce.Data)
		})
	}
}

func TestValidate_DeniedLeaveReasons(t *testing.T) {
	for _, tag := range []string{"ClientTimeoutDisconnect", "SwitchRoom", "PeerLastTouchTimedout", "PluginFailedJoin"} {
		code, _ := model.LeaveReasonFor(tag)
		_, err := validateRaw(t, with(baseHook(tag), "IsInactive", true, "Reason", string(code)))
		ce, ok := errs.AsCode(err)
		require.True(t, ok, tag)
		assert.Equal(t, errs.CodeInvariantViolation, ce.Code, tag)
		assert.Equal(t, "Unexpected LeaveReason", ce.Message(), tag)
	}
}

func TestValidate_LeaveReasonMustMatchTag(t *testing.T) {
	for _, tag := range model.LeaveTypes() {
		for _, other := range model.LeaveTypes() {
			if other == tag {
				continue
			}
			code, _ := model.LeaveReasonFor(other)
			_, err := validateRaw(t, with(baseHook(tag), "IsInactive", true, "Reason", string(code)))
			assert.ErrorIs(t, err, errs.ErrInvariantViolation, "%s with %s", tag, code)
		}
	}
}

func TestValidate_Variants(t *testing.T) {
	ev, err := validateRaw(t, with(baseHook(model.TypeCreate), "CreateOptions", map[string]any{"MaxPlayers": float64(4)}, "Nickname", "al"))
	require.NoError(t, err)
	create, ok := ev.(*model.CreateEvent)
	require.True(t, ok)
	assert.Equal(t, 4, create.CreateOptions.MaxPlayers())
	assert.Equal(t, model.WebhooksVersionNick, create.WebhooksVersion)

	ev, err = validateRaw(t, with(baseHook(model.TypeLoad), "CreateIfNotExists", true))
	require.NoError(t, err)
	assert.True(t, ev.(*model.LoadEvent).CreateIfNotExists)

	ev, err = validateRaw(t, with(baseHook("PlayerTtlTimedOut"), "IsInactive", false, "Reason", float64(102), "ActorNr", "3"))
	require.NoError(t, err)
	leave := ev.(*model.LeaveEvent)
	assert.Equal(t, model.PlayerTtlTimedOut, leave.Reason)
	assert.Equal(t, 3, leave.ActorNr)

	ev, err = validateRaw(t, with(baseHook(model.TypePlayer), "Properties", map[string]any{"a": 1.0}, "TargetActor", float64(2), "State", "s"))
	require.NoError(t, err)
	assert.Equal(t, 2, ev.(*model.PropertyEvent).TargetActor)

	ev, err = validateRaw(t, with(baseHook(model.TypeEvent), "Data", "d", "Username", nil, "Nickname", "n"))
	require.NoError(t, err)
	assert.Nil(t, ev.(*model.RaiseEvent).State)

	// Close and Save carry no actor identity
	ev, err = validateRaw(t, with(baseHook(model.TypeSave), "ActorNr", nil, "UserId", nil, "ActorCount", float64(2), "State", "s",
		"State2", map[string]any{"ActorList": []any{"a", "b"}}))
	require.NoError(t, err)
	assert.Equal(t, 2, ev.(*model.SaveEvent).ActorCount)
}

func TestParseNotification_RejectsFractionalActor(t *testing.T) {
	_, err := ParseNotification(with(baseHook(model.TypeJoin), "ActorNr", 2.5))
	assert.ErrorIs(t, err, errs.ErrInvariantViolation)
}

func TestParseNotification_RejectsBooleanCrossover(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
	}{
		{"create ActorNr true", with(baseHook(model.TypeCreate), "CreateOptions", map[string]any{}, "ActorNr", true)},
		{"leave Reason false", with(baseHook("LeaveRequest"), "IsInactive", false, "Reason", false)},
		{"leave IsInactive string", with(baseHook("LeaveRequest"), "IsInactive", "0", "Reason", "101")},
		{"load CreateIfNotExists number", with(baseHook(model.TypeLoad), "CreateIfNotExists", float64(1))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseNotification(tc.raw)
			assert.ErrorIs(t, err, errs.ErrInvariantViolation)
		})
	}
}

func TestValidateListRequest(t *testing.T) {
	req, err := ParseListRequest(map[string]any{"AppId": "a", "AppVersion": "1", "Region": "eu"})
	require.NoError(t, err)
	err = ValidateListRequest(req)
	ce, ok := errs.AsCode(err)
	require.True(t, ok)
	assert.Equal(t, "Missing argument: UserId", ce.Message())

	req, err = ParseListRequest(map[string]any{"AppId": "a", "AppVersion": "1", "Region": "eu", "UserId": "U1"})
	require.NoError(t, err)
	assert.NoError(t, ValidateListRequest(req))
}
