// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package testsetup

import (
	"math/rand/v2"
	"sync"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

// StubBroadcaster records everything emitted to sessions and connections, and the game
// each connection is subscribed to.
type StubBroadcaster struct {
	mu            sync.Mutex
	Packets       map[string][]models.TickPacket
	Connections   map[string][]interface{}
	Subscriptions map[string]string
}

func NewStubBroadcaster() *StubBroadcaster {
	return &StubBroadcaster{
		Packets:       make(map[string][]models.TickPacket),
		Connections:   make(map[string][]interface{}),
		Subscriptions: make(map[string]string),
	}
}

func (s *StubBroadcaster) Subscribe(connID, gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscriptions[connID] = gameID
}

func (s *StubBroadcaster) Unsubscribe(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Subscriptions, connID)
}

// SessionOf returns the game the connection is subscribed to.
func (s *StubBroadcaster) SessionOf(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gameID, ok := s.Subscriptions[connID]
	return gameID, ok
}

func (s *StubBroadcaster) EmitToSession(gameID string, packets []models.TickPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Packets[gameID] = append(s.Packets[gameID], packets...)
}

func (s *StubBroadcaster) EmitToConnection(connID string, msg interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Connections[connID] = append(s.Connections[connID], msg)
}

// SessionPackets returns a copy of the packets emitted to the game.
func (s *StubBroadcaster) SessionPackets(gameID string) []models.TickPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TickPacket(nil), s.Packets[gameID]...)
}

// ConnectionMessages returns a copy of the messages emitted to the connection.
func (s *StubBroadcaster) ConnectionMessages(connID string) []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]interface{}(nil), s.Connections[connID]...)
}

// NewRand returns a deterministic random generator for tests.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
