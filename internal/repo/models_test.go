package repo

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedFrom(t *testing.T) {
	tests := []struct {
		name string
		from VTpassStatus
		to   VTpassStatus
		want bool
	}{
		{"pending to successful", VTpassPending, VTpassSuccessful, true},
		{"pending to failed", VTpassPending, VTpassFailed, true},
		{"pending to api failure", VTpassPending, VTpassFailedAPICall, true},
		{"pending to malformed", VTpassPending, VTpassFailedMalformed, true},
		{"pending to refunded", VTpassPending, VTpassRefunded, false},
		{"failed to refunded", VTpassFailed, VTpassRefunded, true},
		{"malformed to refunded", VTpassFailedMalformed, VTpassRefunded, true},
		{"successful to failed", VTpassSuccessful, VTpassFailed, false},
		{"successful to refunded", VTpassSuccessful, VTpassRefunded, false},
		{"failed to pending", VTpassFailed, VTpassPending, false},
		{"refunded to successful", VTpassRefunded, VTpassSuccessful, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, slices.Contains(allowedFrom(tt.to), tt.from))
		})
	}
}

func TestParseServiceType(t *testing.T) {
	tests := []struct {
		in   string
		want ServiceType
		ok   bool
	}{
		{"airtime", ServiceAirtime, true},
		{" Internet ", ServiceInternet, true},
		{"data", ServiceInternet, true},
		{"electricity", ServiceElectricity, true},
		{"cable", ServiceTV, true},
		{"tv", ServiceTV, true},
		{"gas", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseServiceType(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListFilterNormalised(t *testing.T) {
	f := ListFilter{Page: 0, Limit: 500, UserAddress: " 0xABC "}.normalised()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.Limit)
	assert.Equal(t, "0xabc", f.UserAddress)
	assert.Equal(t, 0, f.offset())

	f = ListFilter{Page: 3, Limit: 20}.normalised()
	assert.Equal(t, 40, f.offset())

	assert.Equal(t, 3, Page{Total: 101, Limit: 50}.Pages())
}
