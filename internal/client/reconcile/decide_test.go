package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		e    Entry
		want Action
	}{
		{"local only", Entry{ClientUpdate: 10}, Push},
		{"server only", Entry{ServerUpdate: 10}, Pull},
		{"local newer", Entry{ClientUpdate: 20, ServerUpdate: 10}, Push},
		{"server newer", Entry{ClientUpdate: 10, ServerUpdate: 20}, Pull},
		{"in sync", Entry{ClientUpdate: 10, ServerUpdate: 10}, None},

		{"local delete, no server row", Entry{ClientDelete: 5}, PushDelete},
		{"local delete newer than server update", Entry{ClientDelete: 20, ServerUpdate: 10}, PushDelete},
		{"local delete ties server update", Entry{ClientDelete: 10, ServerUpdate: 10}, PushDelete},
		{"server update supersedes local delete", Entry{ClientDelete: 10, ServerUpdate: 20}, DiscardAndPull},

		{"server delete newer than local update", Entry{ClientUpdate: 10, ServerDelete: 20}, ApplyDelete},
		{"server delete ties local update", Entry{ClientUpdate: 10, ServerDelete: 10}, ApplyDelete},
		{"local update supersedes server delete", Entry{ClientUpdate: 20, ServerDelete: 10}, Push},
		{"server delete, nothing local", Entry{ServerDelete: 10}, None},

		{"both deleted", Entry{ClientDelete: 3, ServerDelete: 9}, PurgeTombstone},
		{"empty", Entry{}, None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.e), tt.want.String())
		})
	}
}

func TestBuild_FoldsThreeSources(t *testing.T) {
	a := Key{FileID: 1}
	b := Key{FileID: 2}
	c := Key{FileID: 3, ID: 4}

	tl := Build(
		[]ServerRow{{Key: a, UpdatedAt: 10}, {Key: b, UpdatedAt: 5, DeletedAt: 15}},
		[]Stamp{{Key: c, At: 7}},
		[]Stamp{{Key: a, At: 12}, {Key: a, At: 11}},
	)

	want := Timeline{
		a: {ClientUpdate: 12, ServerUpdate: 10},
		b: {ServerDelete: 15},
		c: {ClientDelete: 7},
	}
	if diff := cmp.Diff(want, tl); diff != "" {
		t.Fatalf("timeline mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_SortedByKey(t *testing.T) {
	tl := Timeline{
		{FileID: 2}:        {ClientUpdate: 1},
		{FileID: 1, ID: 9}: {ServerUpdate: 1},
		{FileID: 1, ID: 3}: {ServerDelete: 1, ClientDelete: 1},
	}

	got := Plan(tl)
	assert.Equal(t, []Key{{FileID: 1, ID: 3}, {FileID: 1, ID: 9}, {FileID: 2}},
		[]Key{got[0].Key, got[1].Key, got[2].Key})
	assert.Equal(t, []Action{PurgeTombstone, Pull, Push},
		[]Action{got[0].Action, got[1].Action, got[2].Action})
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "discard-and-pull", DiscardAndPull.String())
	assert.Equal(t, "unknown", Action(99).String())
}
