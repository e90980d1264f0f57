// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/testsetup"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Event
	}{
		{
			name:  "join",
			frame: `{"type":"join","payload":{"userId":"u1","name":"ann","rating":1520,"roomId":"r1","category":"PvP","ranked":true}}`,
			want: JoinEvent{
				ConnEvent: ConnEvent{ConnID: "c1"},
				UserID:    "u1", Name: "ann", Rating: 1520, RoomID: "r1", Category: "PvP", Ranked: true,
			},
		},
		{
			name:  "leave_without_payload",
			frame: `{"type":"leave"}`,
			want:  LeaveEvent{ConnEvent{ConnID: "c1"}},
		},
		{
			name:  "take_bot",
			frame: `{"type":"takeBot","payload":{"heroId":"h3"}}`,
			want:  TakeBotEvent{ConnEvent: ConnEvent{ConnID: "c1"}, HeroID: "h3"},
		},
		{
			name:  "party_update",
			frame: `{"type":"party.update","payload":{"partyId":"p1","ready":true,"team":2}}`,
			want:  PartyUpdateEvent{ConnEvent: ConnEvent{ConnID: "c1"}, PartyID: "p1", Ready: true, Team: 2},
		},
		{
			name:  "party_start",
			frame: `{"type":"party.start","payload":{"partyId":"p1"}}`,
			want:  PartyStartEvent{ConnEvent: ConnEvent{ConnID: "c1"}, PartyID: "p1"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			g := testsetup.ParallelWithGomega(t)

			event, err := Decode("c1", []byte(tt.frame))

			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(event).To(Equal(tt.want))
			g.Expect(event.Conn()).To(Equal("c1"))
		})
	}
}

func TestDecode_Action(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	event, err := Decode("c1", []byte(`{"type":"action","payload":{"controlKey":42,"heroId":"h1","type":"spell","spellId":"fireball","target":{"x":1.5,"y":-2}}}`))

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(event.Type()).To(Equal(EventAction))
	action := event.(ActionEvent).Action()
	g.Expect(action).To(Equal(models.Action{
		HeroID:     "h1",
		ControlKey: 42,
		Type:       models.ActionSpell,
		SpellID:    "fireball",
		Target:     &models.Vec2{X: 1.5, Y: -2},
	}))
}

func TestDecode_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{name: "not_json", frame: `hello`, wantErr: ErrMalformedMessage},
		{name: "unknown_type", frame: `{"type":"teleport"}`, wantErr: ErrUnknownEvent},
		{name: "disconnect_is_not_inbound", frame: `{"type":"disconnect"}`, wantErr: ErrUnknownEvent},
		{name: "bad_payload", frame: `{"type":"join","payload":{"rating":"high"}}`, wantErr: ErrMalformedMessage},
		{name: "bad_action_type", frame: `{"type":"action","payload":{"controlKey":1,"type":"dance"}}`, wantErr: ErrMalformedMessage},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			g := testsetup.ParallelWithGomega(t)

			event, err := Decode("c1", []byte(tt.frame))

			g.Expect(err).To(MatchError(tt.wantErr))
			g.Expect(event).To(BeNil())
		})
	}
}
