package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "RESOURCE_NODE,UNIT_SUBSTATION\nA_RN,ALPHA\nB_RN,BRAVO\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"RESOURCE_NODE", "UNIT_SUBSTATION"}, rows[0])
	assert.Equal(t, []string{"B_RN", "BRAVO"}, rows[2])
}

func TestStreamCSV_WithHeader(t *testing.T) {
	input := "node_id,substation_name\nA_RN,ALPHA\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"node_id", "substation_name"}, <-headerCh)
}

func TestStreamCSV_StripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFnode_id,substation_name\nA_RN,ALPHA\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "node_id", rows[0][0])
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	input := " a , b \n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, rows)
}

func TestStreamCSV_VariableFields(t *testing.T) {
	input := "a,b,c\n1\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1"}, rows[1])
}

func TestStreamCSV_Empty(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadCSV(t *testing.T) {
	header, rows, err := ReadCSV(context.Background(), strings.NewReader("plant_code, plant_name \n1, Alpha Solar \n2,Bravo\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"plant_code", "plant_name"}, header)
	assert.Equal(t, [][]string{{"1", "Alpha Solar"}, {"2", "Bravo"}}, rows)
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	header, rows, err := ReadCSV(context.Background(), strings.NewReader("node_id,substation_name\n"))
	require.NoError(t, err)
	assert.Len(t, header, 2)
	assert.Empty(t, rows)
}

func TestReadCSV_MissingHeader(t *testing.T) {
	_, _, err := ReadCSV(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header row")
}

func TestColumns_Find(t *testing.T) {
	cols := NewColumns([]string{"RESOURCE_NODE", " Unit_Substation ", "resource_node"})

	assert.Equal(t, 0, cols.Find("node_id", "resource_node"))
	assert.Equal(t, 1, cols.Find("substation_name", "UNIT_SUBSTATION"))
	assert.Equal(t, -1, cols.Find("lat", "latitude"))
}

func TestField(t *testing.T) {
	row := []string{" a ", "b"}
	assert.Equal(t, "a", Field(row, 0))
	assert.Equal(t, "b", Field(row, 1))
	assert.Equal(t, "", Field(row, 2))
	assert.Equal(t, "", Field(row, -1))
}
