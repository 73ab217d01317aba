package model

import (
	"fmt"
	"time"
)

// RequestState — состояние запроса на фоновое сохранение страницы.
type RequestState string

const (
	// RequestAvailable — запрос ожидает очередной попытки
	RequestAvailable RequestState = "available"
	// RequestOfflining — идёт попытка сохранения
	RequestOfflining RequestState = "offlining"
	// RequestPaused — запрос приостановлен пользователем
	RequestPaused RequestState = "paused"
)

// requestTransitions — матрица допустимых переходов между состояниями.
var requestTransitions = map[RequestState]map[RequestState]bool{
	RequestAvailable: {RequestOfflining: true, RequestPaused: true},
	RequestOfflining: {RequestAvailable: true, RequestPaused: true},
	RequestPaused:    {RequestAvailable: true},
}

// SavePageRequest — запрос на отложенное сохранение страницы.
type SavePageRequest struct {
	RequestID             int64        `json:"request_id"`
	URL                   string       `json:"url"`
	ClientID              ClientID     `json:"client_id"`
	CreationTime          time.Time    `json:"creation_time"`
	ActivationTime        time.Time    `json:"activation_time"`
	LastAttemptTime       time.Time    `json:"last_attempt_time,omitzero"`
	StartedAttemptCount   int          `json:"started_attempt_count"`
	CompletedAttemptCount int          `json:"completed_attempt_count"`
	State                 RequestState `json:"state"`
}

// NewSavePageRequest создаёт запрос в состоянии available.
func NewSavePageRequest(requestID int64, url string, clientID ClientID, createdAt time.Time) *SavePageRequest {
	return &SavePageRequest{
		RequestID:      requestID,
		URL:            url,
		ClientID:       clientID,
		CreationTime:   createdAt,
		ActivationTime: createdAt,
		State:          RequestAvailable,
	}
}

func (r *SavePageRequest) transition(to RequestState) error {
	if !requestTransitions[r.State][to] {
		return fmt.Errorf("недопустимый переход запроса %d: %s → %s", r.RequestID, r.State, to)
	}
	r.State = to
	return nil
}

// MarkAttemptStarted начинает попытку сохранения.
func (r *SavePageRequest) MarkAttemptStarted(now time.Time) error {
	if r.State != RequestAvailable {
		return fmt.Errorf("попытка для запроса %d возможна только из состояния %s, текущее %s",
			r.RequestID, RequestAvailable, r.State)
	}
	if err := r.transition(RequestOfflining); err != nil {
		return err
	}
	r.LastAttemptTime = now
	r.StartedAttemptCount++
	return nil
}

// MarkAttemptCompleted завершает попытку, запрос снова доступен.
func (r *SavePageRequest) MarkAttemptCompleted() error {
	if r.State != RequestOfflining {
		return fmt.Errorf("запрос %d не в состоянии %s", r.RequestID, RequestOfflining)
	}
	if err := r.transition(RequestAvailable); err != nil {
		return err
	}
	r.CompletedAttemptCount++
	return nil
}

// MarkAttemptAborted прерывает попытку без засчитывания.
func (r *SavePageRequest) MarkAttemptAborted() error {
	if r.State != RequestOfflining {
		return fmt.Errorf("запрос %d не в состоянии %s", r.RequestID, RequestOfflining)
	}
	return r.transition(RequestAvailable)
}

// MarkAttemptPaused приостанавливает запрос.
func (r *SavePageRequest) MarkAttemptPaused() error {
	return r.transition(RequestPaused)
}

// Resume возобновляет приостановленный запрос.
func (r *SavePageRequest) Resume() error {
	if r.State != RequestPaused {
		return fmt.Errorf("запрос %d не приостановлен", r.RequestID)
	}
	return r.transition(RequestAvailable)
}
