package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/model"
)

const samplePolicy = `
rules: [
	{effect: "allow", users: ["root"]},
	{effect: "deny", actions: ["DELETE", "DELETE_PROCESSOR"], kinds: ["processor"], description: "processors are permanent"},
	{effect: "deny", kinds: ["user"]},
]
`

func TestParsePolicy_Defaults(t *testing.T) {
	p, err := ParsePolicy([]byte(samplePolicy), "sample.cue")
	require.NoError(t, err)

	rules := p.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, []string{"*"}, rules[0].Actions)
	assert.Equal(t, []string{"*"}, rules[0].Kinds)
	assert.Equal(t, []string{"*"}, rules[2].Users)
	assert.Equal(t, "processors are permanent", rules[1].Description)
}

func TestCUEPolicy_Evaluate(t *testing.T) {
	p, err := ParsePolicy([]byte(samplePolicy), "sample.cue")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Input
		want bool
	}{
		{"root bypasses", Input{Actor: "id-1", ActorName: "root", Action: model.RightDelete, Resource: Resource{Kind: model.KindUser}}, true},
		{"delete processor", Input{Actor: "id-2", ActorName: "alice", Action: model.RightDelete, Resource: Resource{Kind: model.KindProcessor}}, false},
		{"update processor", Input{Actor: "id-2", ActorName: "alice", Action: model.RightUpdate, Resource: Resource{Kind: model.KindProcessor}}, true},
		{"any user action", Input{Actor: "id-2", ActorName: "alice", Action: model.RightRead, Resource: Resource{Kind: model.KindUser}}, false},
		{"unmatched keeps grant", Input{Actor: "id-2", Action: model.RightRead, Resource: Resource{Kind: model.KindTask}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Evaluate(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePolicy_Empty(t *testing.T) {
	p, err := ParsePolicy([]byte(""), "empty.cue")
	require.NoError(t, err)
	assert.Empty(t, p.Rules())

	ok, err := p.Evaluate(context.Background(), Input{Action: model.RightRead})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParsePolicy_Rejects(t *testing.T) {
	tests := map[string]string{
		"syntax":         `rules: [`,
		"unknown right":  `rules: [{effect: "deny", actions: ["FLY"]}]`,
		"bad effect":     `rules: [{effect: "maybe"}]`,
		"unknown field":  `rules: [{effect: "deny", colour: "red"}]`,
		"missing effect": `rules: [{kinds: ["user"]}]`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(src), name+".cue")
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.cue")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Len(t, p.Rules(), 3)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
