package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Submissions: Colour the panda",
		Columns: []Column{{Key: "child", Label: "Child"}, {Key: "status", Label: "Status"}, {Key: "score"}},
		Rows: []map[string]string{
			{"child": "Ayu", "status": "graded", "score": "90"},
			{"child": "Budi, Jr.", "status": "pending"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Child,Status,score\nAyu,graded,90\n\"Budi, Jr.\",pending,\n", string(out))
}

func TestCSVExporterRequiresColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
