package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markbind/internal/store"
)

func sampleTransaction() *store.Transaction {
	return &store.Transaction{
		ID:    "tx-1",
		Label: "bind bars.x to city",
		Changes: []store.Change{
			{Operation: store.OpUpdate, Kind: store.KindMark, ID: "m1", Name: "bars"},
			{Operation: store.OpCreate, Kind: store.KindScale, ID: "s1", Name: "x"},
			{Operation: store.OpDelete, Kind: store.KindDataset, ID: "d9"},
		},
	}
}

func TestFormatText(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, sampleTransaction(), true)

	want := strings.Join([]string{
		"# bind bars.x to city",
		`  - dataset "d9" deleted`,
		`  + scale "x" created`,
		`  ~ mark "bars" updated`,
		"",
		"Transaction tx-1: 1 created, 1 updated, 1 deleted.",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestFormatText_Colors(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, sampleTransaction(), false)
	out := buf.String()
	assert.Contains(t, out, colorGreen+"+"+colorReset)
	assert.Contains(t, out, colorYellow+"~"+colorReset)
	assert.Contains(t, out, colorRed+"-"+colorReset)
}

func TestFormatText_NoChanges(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, &store.Transaction{ID: "tx-2"}, true)
	assert.Equal(t, "No changes. Document is up-to-date.\n", buf.String())
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatJSON(&buf, sampleTransaction()))

	var got struct {
		ID      string         `json:"id"`
		Changes []store.Change `json:"changes"`
		Summary PlanSummary    `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "tx-1", got.ID)
	assert.Equal(t, PlanSummary{Creates: 1, Updates: 1, Deletes: 1}, got.Summary)
	require.Len(t, got.Changes, 3)
	assert.Equal(t, store.KindDataset, got.Changes[0].Kind, "ordered by dependency layer")
}
