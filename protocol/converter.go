package protocol

import (
	"errors"
	"time"

	"github.com/creastat/multicast/core"
	"github.com/google/uuid"
)

// Error codes used in ErrorPayload
const (
	CodeBadRequest  = "bad_request"
	CodeBranch      = "branch_failed"
	CodeAggregation = "aggregation_failed"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal"
)

// MessageToOutput converts a routed message into an output message of the given type
func MessageToOutput(msg *core.Message, msgType OutputMessageType) *OutputMessage {
	payload := MessagePayload{
		Body:    msg.Body,
		Headers: msg.Headers,
	}

	if msgType == OutputBranch {
		if idx, ok := msg.Property(core.PropertyMulticastIndex); ok {
			if i, ok := idx.(int); ok {
				payload.Branch = &i
			}
		}
	}

	if err := msg.Failure(); err != nil {
		payload.Failure = err.Error()
	}

	return &OutputMessage{
		Type:      msgType,
		ID:        generateMessageID(),
		ReplyTo:   msg.ID,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(replyTo, code, message string, details any) *OutputMessage {
	return &OutputMessage{
		Type:    OutputError,
		ID:      generateMessageID(),
		ReplyTo: replyTo,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UnixMilli(),
	}
}

// ErrorCode maps an engine error onto a wire error code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrEngineUnavailable):
		return CodeUnavailable
	case errors.Is(err, core.ErrBranchFailure):
		return CodeBranch
	case errors.Is(err, core.ErrAggregationFailure):
		return CodeAggregation
	default:
		return CodeInternal
	}
}

func generateMessageID() string {
	return "msg_" + uuid.NewString()
}
