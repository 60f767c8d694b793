package flow

import (
	"enroll/internal/registration/models"
	dErrors "enroll/pkg/domain-errors"
)

// Action is one user-triggered flow operation.
type Action string

const (
	ActionSendEmail   Action = "send_email"
	ActionVerifyEmail Action = "verify_email"
	ActionSendPhone   Action = "send_phone"
	ActionVerifyPhone Action = "verify_phone"
	ActionChangePhone Action = "change_phone"
	ActionProvision   Action = "provision"
)

// edge is one permitted transition of the stage machine.
type edge struct {
	from models.Stage
	to   models.Stage
}

// transitions is the single authority on which action is legal at which
// stage and where a success lands. Everything moves forward except
// ActionChangePhone, the one user-initiated back edge. Self-edges are
// resends and retries at the same stage.
var transitions = map[Action][]edge{
	ActionSendEmail: {
		{models.StageStart, models.StageLinkSent},
		{models.StageLinkSent, models.StageLinkSent},
	},
	ActionVerifyEmail: {
		{models.StageEmailVerifying, models.StagePhoneInput},
		// A same-device return can land before resolve re-ran; the send
		// record is still at link_sent.
		{models.StageLinkSent, models.StagePhoneInput},
		// A link opened in a fresh context has no recorded stage at all.
		{models.StageStart, models.StagePhoneInput},
	},
	ActionSendPhone: {
		{models.StagePhoneInput, models.StagePhoneVerifying},
		{models.StagePhoneVerifying, models.StagePhoneVerifying},
	},
	ActionVerifyPhone: {
		// The credential is handed to the client; the stage only advances
		// when provisioning consumes it.
		{models.StagePhoneVerifying, models.StagePhoneVerifying},
	},
	ActionChangePhone: {
		{models.StagePhoneVerifying, models.StagePhoneInput},
	},
	ActionProvision: {
		{models.StagePhoneVerifying, models.StageProvisioned},
	},
}

// Next returns the stage a successful action lands on, or an invalid-input
// error when the action is not legal at the current stage.
func Next(from models.Stage, action Action) (models.Stage, error) {
	for _, e := range transitions[action] {
		if e.from == from {
			return e.to, nil
		}
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s is not available at stage %s", action, from)
}
