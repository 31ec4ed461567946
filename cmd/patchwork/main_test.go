package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/patchwork"
	"github.com/pboyd/patchwork/manifest"
	"github.com/pboyd/patchwork/vm"
)

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{"10", "-3", "true", "nil", `"quoted"`, "plain"})
	assert.Equal(t, []vm.Value{int64(10), int64(-3), true, nil, "quoted", "plain"}, got)
}

func TestSelectOwners(t *testing.T) {
	m, err := manifest.Load("testdata/game.toml")
	require.NoError(t, err)

	assert.Equal(t, []string{"armor", "guard", "rage"}, selectOwners(m, ""))
	assert.Equal(t, []string{"rage", "guard"}, selectOwners(m, "rage, guard,"))
}

func TestGameManifest(t *testing.T) {
	assert := assert.New(t)
	m, err := manifest.Load("testdata/game.toml")
	require.NoError(t, err)

	host := vm.NewHost()
	require.NoError(t, m.Define(host))
	r := patchwork.New(m, host)
	for _, owner := range selectOwners(m, "") {
		_, err := r.ApplyAll(owner)
		require.NoError(t, err, owner)
	}
	assert.NoError(printRoutines(r))

	v, err := host.Call("hurt", 10, 3)
	require.NoError(t, err)
	assert.Equal(int64(12), v)

	ev, err := host.Call("attack", 5)
	require.NoError(t, err)
	assert.Equal(int64(0), ev, "guard blocks attacks weaker than 6")

	ev, err = host.Call("attack", 9)
	require.NoError(t, err)
	assert.Equal(int64(9), ev)
}
