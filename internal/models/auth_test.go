package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyRefAcceptsStringAndDocument(t *testing.T) {
	var a, b, c Employee
	require.NoError(t, json.Unmarshal([]byte(`{"employeeId":"e1","companyId":"c1"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"employeeId":"e2","companyId":{"_id":"c2","name":"Acme"}}`), &b))
	require.NoError(t, json.Unmarshal([]byte(`{"employeeId":"e3","companyId":null}`), &c))

	assert.Equal(t, CompanyRef("c1"), a.CompanyID)
	assert.Equal(t, CompanyRef("c2"), b.CompanyID)
	assert.Empty(t, c.CompanyID)
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*3600)
	ts := time.Date(2024, 3, 1, 10, 30, 15, 123456789, loc)
	assert.Equal(t, "2024-03-01T04:30:15.123Z", FormatTimestamp(ts))
}

func TestSessionUpdateOmitsEndTimeUntilFinal(t *testing.T) {
	data, err := json.Marshal(SessionUpdate{ActiveTime: 10})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "endTime")

	final := SessionUpdate{ActiveTime: 10, EndTime: "2024-03-01T04:30:15.123Z"}
	assert.True(t, final.IsFinal())
	data, err = json.Marshal(final)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"endTime":"2024-03-01T04:30:15.123Z"`)
}
