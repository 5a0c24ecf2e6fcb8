package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskReplySend dispatches a human-approved reply draft.
const TaskReplySend = "replies.send"

// TaskBookingConfirmation sends the booking confirmation email after a
// lead books a meeting.
const TaskBookingConfirmation = "booking.confirmation"

type ReplySendPayload struct {
	ApprovalID string `json:"approvalId"`
}

type BookingConfirmationPayload struct {
	LeadID string `json:"leadId"`
}

func NewReplySendTask(payload ReplySendPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReplySend, data), nil
}

func ParseReplySendPayload(task *asynq.Task) (ReplySendPayload, error) {
	var payload ReplySendPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReplySendPayload{}, err
	}
	return payload, nil
}

func NewBookingConfirmationTask(payload BookingConfirmationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBookingConfirmation, data), nil
}

func ParseBookingConfirmationPayload(task *asynq.Task) (BookingConfirmationPayload, error) {
	var payload BookingConfirmationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return BookingConfirmationPayload{}, err
	}
	return payload, nil
}
