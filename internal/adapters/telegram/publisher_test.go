package telegram

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func testPublisher() *Publisher {
	return &Publisher{
		routing: ChatRouting{
			PublicChat: -100,
			PaidChat:   -200,
			AdminChat:  300,
			DMChat:     400,
		},
		log: zerolog.Nop(),
	}
}

func TestResolveChats(t *testing.T) {
	p := testPublisher()
	cases := []struct {
		scope string
		want  []int64
	}{
		{ScopePublic, []int64{-100}},
		{ScopePaid, []int64{-200}},
		{ScopeBroadcast, []int64{-100, -200}},
		{ScopeAdmin, []int64{300}},
		{ScopeDM, []int64{400}},
		{ScopeAll, []int64{-100, -200, 300, 400}},
		{"", []int64{-100, -200}},
		{"garbage", []int64{-100}},
	}
	for _, c := range cases {
		if got := p.ResolveChats(c.scope); !reflect.DeepEqual(got, c.want) {
			t.Errorf("scope %q: чаты %v, ожидалось %v", c.scope, got, c.want)
		}
	}
}

func TestResolveChatsSkipsUnsetAndDuplicates(t *testing.T) {
	p := testPublisher()
	p.routing.PaidChat = 0
	if got := p.ResolveChats(ScopeBroadcast); !reflect.DeepEqual(got, []int64{-100}) {
		t.Fatalf("ненастроенный чат должен пропускаться: %v", got)
	}

	p.routing.PaidChat = -100
	if got := p.ResolveChats(ScopeBroadcast); !reflect.DeepEqual(got, []int64{-100}) {
		t.Fatalf("дубликат чата должен схлопываться: %v", got)
	}
}
