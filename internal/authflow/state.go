// Copyright 2026 The CreditFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package authflow drives an automated browser session through the external
// surface's sign-in flow. The flow is a state machine over observed page
// states (URL plus rendered text), so the same logic runs against a real
// browser and against synthetic pages in tests.
package authflow

import (
	"errors"
	"fmt"
)

// State is one step of the sign-in flow.
type State int

const (
	StateStart State = iota
	StateNavigate
	StateVerifyIdentity
	StateNeedsIdentifier
	StateIdentifierEntered
	StateNeedsCredential
	StateCredentialEntered
	StateChallenge
	StateAuthenticated
	StateFailed
)

var stateNames = map[State]string{
	StateStart:             "start",
	StateNavigate:          "navigate",
	StateVerifyIdentity:    "verify_identity",
	StateNeedsIdentifier:   "needs_identifier",
	StateIdentifierEntered: "identifier_entered",
	StateNeedsCredential:   "needs_credential",
	StateCredentialEntered: "credential_entered",
	StateChallenge:         "challenge",
	StateAuthenticated:     "authenticated",
	StateFailed:            "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FailureReason classifies why the flow could not reach StateAuthenticated.
type FailureReason string

const (
	// ReasonIdentifierNotFound means the identifier input never rendered.
	ReasonIdentifierNotFound FailureReason = "identifier_not_found"
	// ReasonIdentityNotRecognized means the surface rejected the email.
	ReasonIdentityNotRecognized FailureReason = "identity_not_recognized"
	// ReasonCredentialRejected means the surface rejected the password.
	ReasonCredentialRejected FailureReason = "credential_rejected"
	// ReasonIdentityDeleted means the remote account has been deleted.
	ReasonIdentityDeleted FailureReason = "identity_deleted"
	// ReasonIdentityBlocked means the surface blocked sign-in from this device.
	ReasonIdentityBlocked FailureReason = "identity_blocked"
	// ReasonSecondFactorRejected means the generated one-time code was refused.
	ReasonSecondFactorRejected FailureReason = "second_factor_rejected"
	// ReasonTimeout means an expected element or page never appeared in time.
	ReasonTimeout FailureReason = "timeout"
	// ReasonManualIntervention means the surface demands a verification step
	// the engine cannot complete on its own, such as phone verification.
	ReasonManualIntervention FailureReason = "manual_intervention_required"
)

// Error is a classified sign-in failure carrying the state it occurred in.
type Error struct {
	Reason FailureReason
	State  State
	msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sign-in failed at %s: %s (%s)", e.State, e.msg, e.Reason)
}

// NeedsManual reports whether an operator has to complete the flow by hand.
func (e *Error) NeedsManual() bool {
	return e.Reason == ReasonManualIntervention
}

func failed(reason FailureReason, state State, format string, args ...any) *Error {
	return &Error{Reason: reason, State: state, msg: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the failure reason from an error chain, or empty.
func ReasonOf(err error) FailureReason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
