package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlacemark struct {
	Name        string `xml:"name"`
	Coordinates string `xml:"Point>coordinates"`
}

func collectXML[T any](t *testing.T, outCh <-chan T, errCh <-chan error) ([]T, error) {
	t.Helper()
	var items []T
	for item := range outCh {
		items = append(items, item)
	}
	for err := range errCh {
		if err != nil {
			return items, err
		}
	}
	return items, nil
}

const testKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Folder>
      <Placemark>
        <name>ALPHA_RN</name>
        <Point><coordinates>-97.5,30.25,0</coordinates></Point>
      </Placemark>
      <Placemark>
        <name>BRAVO_RN</name>
        <Point><coordinates>-98.1,31.0</coordinates></Point>
      </Placemark>
    </Folder>
  </Document>
</kml>`

func TestStreamXML_NamespacedKML(t *testing.T) {
	outCh, errCh := StreamXML[testPlacemark](context.Background(), strings.NewReader(testKML), "Placemark")
	items, err := collectXML(t, outCh, errCh)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ALPHA_RN", items[0].Name)
	assert.Equal(t, "-97.5,30.25,0", items[0].Coordinates)
	assert.Equal(t, "BRAVO_RN", items[1].Name)
}

func TestStreamXML_Latin1Charset(t *testing.T) {
	input := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><kml><Placemark><name>SAN MARCOS \xC9</name></Placemark></kml>"
	outCh, errCh := StreamXML[testPlacemark](context.Background(), strings.NewReader(input), "Placemark")
	items, err := collectXML(t, outCh, errCh)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "SAN MARCOS É", items[0].Name)
}

func TestStreamXML_NoMatchingElements(t *testing.T) {
	outCh, errCh := StreamXML[testPlacemark](context.Background(), strings.NewReader("<kml><Document/></kml>"), "Placemark")
	items, err := collectXML(t, outCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStreamXML_Malformed(t *testing.T) {
	outCh, errCh := StreamXML[testPlacemark](context.Background(), strings.NewReader("<kml><Placemark><name>X</kml>"), "Placemark")
	_, err := collectXML(t, outCh, errCh)
	assert.Error(t, err)
}

func TestStreamXML_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outCh, errCh := StreamXML[testPlacemark](ctx, strings.NewReader(testKML), "Placemark")
	_, err := collectXML(t, outCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
