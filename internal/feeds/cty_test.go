package feeds

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ctyFixture = `# ADIF 260
Monaco: 14: 27: EU: 43.73: 7.40: -1.0: 3A:
    3A,=3A2MD,=3A2MW;
# ADIF 291
United States: 05: 08: NA: 37.53: 91.67: 5.0: K:
    K,AA<40.00/74.00>,=W1AW;
`

func TestCTYDerivesPrefixTable(t *testing.T) {
	c, mock, _ := newTestClient(t)
	mock.AddResponse(200, ctyFixture)

	require.NoError(t, NewCTY(c).Refresh(context.Background()))

	rows := storeLines(t, c.Store, ctyArtifactDir, ctyArtifact)
	require.Len(t, rows, 8)
	assert.Equal(t, "# extracted from CTY_WT_MOD.DAT on Tue Feb 03 12:00:30 2026Z", rows[0])
	assert.Equal(t, "# prefix     lat+N   lng+E  DXCC", rows[1])
	// Source longitudes are west-positive; the table is east-positive.
	assert.Equal(t, "3A             43.73   -7.40  260", rows[2])
	assert.Equal(t, "3A2MD          43.73   -7.40  260", rows[3])
	assert.Equal(t, "3A2MW          43.73   -7.40  260", rows[4])
	assert.Equal(t, "K              37.53  -91.67  291", rows[5])
	// Per-prefix coordinate overrides flip the same way.
	assert.Equal(t, "AA             40.00  -74.00  291", rows[6])
	assert.Equal(t, "W1AW           37.53  -91.67  291", rows[7])
}

func TestCTYFallsBackToDerivedTable(t *testing.T) {
	c, mock, _ := newTestClient(t)
	derived := "# extracted from CTY_WT_MOD.DAT on Mon Feb 02 00:00:00 2026Z\nK              37.53  -91.67  291\n"
	mock.AddResponse(500, "down").
		AddErrorResponse(errors.New("connection refused")).
		AddResponse(200, derived)

	require.NoError(t, NewCTY(c).Refresh(context.Background()))

	assert.Equal(t, 3, mock.RequestCount())
	assert.Contains(t, mock.GetRequest(1).URL.String(), "country-files.com")
	assert.Contains(t, mock.GetRequest(2).URL.String(), "clearskyinstitute.com")

	data, err := c.Store.ReadFile(ctyArtifactDir, ctyArtifact)
	require.NoError(t, err)
	assert.Equal(t, derived, string(data))
}

func TestCTYPreservesArtifactWhenAllSourcesDown(t *testing.T) {
	c, mock, _ := newTestClient(t)
	require.NoError(t, c.Store.WriteFile([]byte("old\n"), ctyArtifactDir, ctyArtifact))
	mock.AddResponse(500, "down").AddResponse(500, "down").AddResponse(500, "down")

	err := NewCTY(c).Refresh(context.Background())

	var fe *FetchError
	require.ErrorAs(t, err, &fe)

	data, readErr := c.Store.ReadFile(ctyArtifactDir, ctyArtifact)
	require.NoError(t, readErr)
	assert.Equal(t, "old\n", string(data))
}
