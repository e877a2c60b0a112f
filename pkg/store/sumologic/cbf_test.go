package sumologic

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/sumocost/pkg/services/config"
	"github.com/de-tools/sumocost/pkg/services/retry"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(config.Config{
		SumoAccessKey:  "access",
		SumoSecretKey:  "secret",
		SumoOrgID:      "0000000123",
		SumoDeployment: "us2",
		CostPerCredit:  0.15,
		QueryTimeHours: 24,
	}, retry.NewPolicy())
	require.NoError(t, err)
	return c
}

func TestParseUsageRow(t *testing.T) {
	// 2024-03-15T00:00:00Z in epoch milliseconds.
	usageStart, credits, err := parseUsageRow(map[string]string{
		"_timeslice": "1710460800000",
		"credits":    "12.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15T00:00:00Z", usageStart)
	assert.Equal(t, 12.5, credits)

	_, _, err = parseUsageRow(map[string]string{"_timeslice": "oops", "credits": "1"})
	require.ErrorContains(t, err, "invalid _timeslice")

	_, _, err = parseUsageRow(map[string]string{"_timeslice": "1710460800000", "credits": ""})
	require.ErrorContains(t, err, "invalid credits")
}

func TestConvertLogRecords(t *testing.T) {
	c := testClient(t)
	logger := zerolog.Nop()

	records := c.convertLogRecords(&logger, []searchRecord{
		{Map: map[string]string{
			"_timeslice":     "1710460800000",
			"credits":        "10",
			"sourcecategory": "Prod/API/Gateway",
			"datatier":       "Continuous",
		}},
		{Map: map[string]string{
			"_timeslice": "bad",
			"credits":    "1",
		}},
	})

	require.Len(t, records, 1, "malformed rows are skipped")
	got := records[0]
	assert.Equal(t, "2024-03-15T00:00:00Z", got.UsageStart)
	assert.Equal(t, "sourcecategory/prod|api|gateway", got.ResourceID)
	assert.Equal(t, "Continuous", got.UsageFamily)
	assert.Equal(t, "Logs continuous ingest", got.Service)
	assert.Equal(t, "0000000123", got.Account)
	assert.Equal(t, "us2", got.Region)
	assert.Equal(t, "10.000000", got.UsageAmount)
	assert.Equal(t, "1.500000", got.Cost)
}

func TestConvertScanRecords(t *testing.T) {
	c := testClient(t)
	logger := zerolog.Nop()

	records := c.convertScanRecords(&logger, []searchRecord{
		{Map: map[string]string{
			"_timeslice": "1710460800000",
			"credits":    "0.25",
			"user_name":  "Jordan@Example.com",
		}},
	})

	require.Len(t, records, 1)
	assert.Equal(t, "username/jordan@example.com", records[0].ResourceID)
	assert.Equal(t, "scan", records[0].Operation)
	assert.Equal(t, "Logs infrequent scan", records[0].Service)
}

func TestConvertStorageRows(t *testing.T) {
	c := testClient(t)
	logger := zerolog.Nop()

	records := c.convertStorageRows(&logger, []map[string]string{
		{
			"Date":                       "2024-03-14",
			"Storage Credits":            "5.5",
			"Infrequent Storage Credits": "2.25",
		},
		{
			"Date":            `"03/14/24"`,
			"Storage Credits": "1",
		},
		{
			"Date":            "2024-03-14",
			"Storage Credits": "0", // non-positive amounts are dropped
		},
		{
			"Date":            "not a date",
			"Storage Credits": "3",
		},
	})

	require.Len(t, records, 3)
	assert.Equal(t, "log storage", records[0].ResourceID)
	assert.Equal(t, "2024-03-14", records[0].UsageStart)
	assert.Equal(t, "5.5", records[0].UsageAmount)
	assert.Equal(t, "0.825000", records[0].Cost)

	assert.Equal(t, "infrequent log storage", records[1].ResourceID)
	assert.Equal(t, "Logs infrequent storage", records[1].Service)

	assert.Equal(t, "2024-03-14", records[2].UsageStart, "quoted US-format dates are accepted")
}

func TestParseStorageDate(t *testing.T) {
	for _, raw := range []string{"2024-03-14", "03/14/24", "03/14/2024", "2024/03/14", ` "2024-03-14" `} {
		got, err := parseStorageDate(raw)
		require.NoError(t, err, "format %q", raw)
		assert.Equal(t, "2024-03-14", got.Format("2006-01-02"))
	}

	_, err := parseStorageDate("14 March 2024")
	require.Error(t, err)
}

func TestSourceCategoryID(t *testing.T) {
	assert.Equal(t, "sourcecategory/prod|api", sourceCategoryID("Prod/API"))
	assert.Equal(t, "sourcecategory/", sourceCategoryID(""))
}

func TestNewClient_UnknownDeployment(t *testing.T) {
	_, err := NewClient(config.Config{SumoDeployment: "mars"}, retry.NewPolicy())
	require.ErrorContains(t, err, "unsupported Sumo Logic deployment")
}
