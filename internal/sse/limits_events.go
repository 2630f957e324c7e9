package sse

import (
	"context"
	"fmt"
	"sync"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

// SubscribeFunc starts delivering fresh limit lists of an event to onChange
// and returns the function that stops it
type SubscribeFunc func(ctx context.Context, eventID string, onChange func([]models.NumberLimit)) (func(), error)

// LimitsEmitter fans limit snapshots out to SSE clients. It holds one upstream
// subscription per event, opened with the first client and closed with the last.
type LimitsEmitter struct {
	mu          sync.RWMutex
	clients     map[string][]chan []models.NumberLimit
	unsubscribe map[string]func()
	subscribe   SubscribeFunc
	logger      *logger.Logger
}

func NewLimitsEmitter(subscribe SubscribeFunc, log *logger.Logger) *LimitsEmitter {
	return &LimitsEmitter{
		clients:     make(map[string][]chan []models.NumberLimit),
		unsubscribe: make(map[string]func()),
		subscribe:   subscribe,
		logger:      log,
	}
}

// Subscribe registers a client until ctx is done. The returned channel is
// closed when the client is removed.
func (e *LimitsEmitter) Subscribe(ctx context.Context, eventID string) (chan []models.NumberLimit, error) {
	clientChan := make(chan []models.NumberLimit, 10)

	e.mu.Lock()
	if len(e.clients[eventID]) == 0 {
		stop, err := e.subscribe(context.Background(), eventID, func(limits []models.NumberLimit) {
			e.Emit(eventID, limits)
		})
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("subscribe to limits of event %s: %w", eventID, err)
		}
		e.unsubscribe[eventID] = stop
	}
	e.clients[eventID] = append(e.clients[eventID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(eventID, clientChan)
	}()

	return clientChan, nil
}

// Emit never blocks, a client with a full buffer misses the snapshot
func (e *LimitsEmitter) Emit(eventID string, limits []models.NumberLimit) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[eventID] {
		select {
		case clientChan <- limits:
		default:
			e.logger.Debug("SSE", fmt.Sprintf("slow client skipped a limits snapshot for event %s", eventID))
		}
	}
}

// ClientCount is the number of connected clients of an event
func (e *LimitsEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}

func (e *LimitsEmitter) removeClient(eventID string, clientChan chan []models.NumberLimit) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
		if stop, ok := e.unsubscribe[eventID]; ok {
			stop()
			delete(e.unsubscribe, eventID)
		}
	}
}
