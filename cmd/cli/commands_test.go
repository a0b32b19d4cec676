package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/amirasaad/microgive/internal/fixtures"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/webapi/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBody(t *testing.T) {
	b, err := readBody(strings.NewReader("ignored"), `{"action":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"action":"x"}`, string(b))

	b, err = readBody(strings.NewReader(`{"action":"stdin"}`), "-")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"stdin"}`, string(b))
}

func TestSeedNeedThenContribute(t *testing.T) {
	h := testutils.NewHarness(t, gateway.Null{}, nil)
	ctx := context.Background()

	n, err := seedNeed(ctx, h.App, "", "school shoes", "60.00")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), fixtures.Get(t, h.Uow, n.ID).GoalAmount)

	var out bytes.Buffer
	err = runAction(ctx, h.App, []byte(fmt.Sprintf(`{"action":"create_checkout","amount":10,"needId":%q}`, n.ID)), &out)
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &env))
	assert.Equal(t, "direct", env["mode"])
	assert.Equal(t, int64(1000), fixtures.Get(t, h.Uow, n.ID).RaisedAmount)
}

func TestRunActionFailure(t *testing.T) {
	h := testutils.NewHarness(t, gateway.Null{}, nil)
	var out bytes.Buffer
	err := runAction(context.Background(), h.App, []byte(`{"action":"nope"}`), &out)
	require.ErrorIs(t, err, errActionFailed)
	assert.Contains(t, out.String(), "unknown_action")
}

func TestSeedNeedValidation(t *testing.T) {
	h := testutils.NewHarness(t, gateway.Null{}, nil)
	ctx := context.Background()

	_, err := seedNeed(ctx, h.App, "not-a-uuid", "x", "10")
	assert.Error(t, err)
	_, err = seedNeed(ctx, h.App, "", "x", "ten")
	assert.Error(t, err)
	_, err = seedNeed(ctx, h.App, "", "x", "0")
	assert.Error(t, err)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"action", "seed-need", "migrate"}, names)
}
